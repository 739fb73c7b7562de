package engine

import (
	"testing"

	"github.com/shai-labs/voyager/internal/solana"
)

func buildPrepared(t *testing.T) PreparedTransaction {
	t.Helper()
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	tx, err := solana.NewVersionedTransaction(kp, nil, nil, [32]byte{})
	if err != nil {
		t.Fatalf("NewVersionedTransaction: %v", err)
	}
	return PreparedTransaction{Transaction: tx, Signer: kp}
}

func TestPlannerAllAtOnceCreatesSingleVariant(t *testing.T) {
	planner := NewTxVariantPlanner(0)
	prepared := buildPrepared(t)
	plan := planner.Plan(DispatchAllAtOnce, prepared, 8)
	if plan.Strategy != DispatchAllAtOnce {
		t.Fatalf("strategy = %v", plan.Strategy)
	}
	if len(plan.Variants) != 1 {
		t.Fatalf("len(variants) = %d, want 1", len(plan.Variants))
	}
	if plan.Variants[0].ID != 0 {
		t.Fatalf("variant id = %d, want 0", plan.Variants[0].ID)
	}
}

func TestPlannerOneByOneRespectsBudget(t *testing.T) {
	planner := NewTxVariantPlanner(0)
	prepared := buildPrepared(t)
	plan := planner.Plan(DispatchOneByOne, prepared, 3)
	if plan.Strategy != DispatchOneByOne {
		t.Fatalf("strategy = %v", plan.Strategy)
	}
	if len(plan.Variants) != 3 {
		t.Fatalf("len(variants) = %d, want 3", len(plan.Variants))
	}
	for i, v := range plan.Variants {
		if v.ID != VariantID(i) {
			t.Errorf("variant[%d].ID = %d, want %d", i, v.ID, i)
		}
	}
}

func TestPlannerOneByOneZeroBudgetClampsToOne(t *testing.T) {
	planner := NewTxVariantPlanner(0)
	prepared := buildPrepared(t)
	plan := planner.Plan(DispatchOneByOne, prepared, 0)
	if len(plan.Variants) != 1 {
		t.Fatalf("len(variants) = %d, want 1 (clamped)", len(plan.Variants))
	}
}

func TestPlannerTipStagger(t *testing.T) {
	planner := NewTxVariantPlanner(10)
	prepared := buildPrepared(t)
	prepared.TipLamports = 5
	plan := planner.Plan(DispatchOneByOne, prepared, 3)
	if plan.Variants[0].TipLamports() != 5 {
		t.Fatalf("variant 0 tip = %d, want base 5", plan.Variants[0].TipLamports())
	}
	if plan.Variants[1].TipLamports() != 15 {
		t.Fatalf("variant 1 tip = %d, want 15", plan.Variants[1].TipLamports())
	}
	if plan.Variants[2].TipLamports() != 25 {
		t.Fatalf("variant 2 tip = %d, want 25", plan.Variants[2].TipLamports())
	}
}
