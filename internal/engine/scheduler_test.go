package engine

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shai-labs/voyager/internal/network"
	"github.com/shai-labs/voyager/internal/solana"
)

type fakeQuoter struct {
	kind      AggregatorKind
	forward   QuoteResult
	reverse   QuoteResult
	forwardErr error
	reverseErr error
}

func (f *fakeQuoter) Kind() AggregatorKind { return f.kind }

func (f *fakeQuoter) Quote(ctx context.Context, pair TradePair, amount uint64, direction Direction, knobs QuoteKnobs) (QuoteResult, error) {
	if direction == DirectionForward {
		return f.forward, f.forwardErr
	}
	return f.reverse, f.reverseErr
}

func testAllocator(t *testing.T, n int) *network.Allocator {
	t.Helper()
	slots := make([]*network.Slot, n)
	for i := range slots {
		slots[i] = network.NewSlot(net.IPv4(127, 0, 0, byte(i+1)), network.SlotEphemeral)
	}
	return network.NewAllocator(slots, 4, network.DefaultCooldownConfig())
}

func mustPair(t *testing.T) TradePair {
	t.Helper()
	a, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	b, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return TradePair{InputMint: a.Pubkey(), OutputMint: b.Pubkey()}
}

func TestSchedulePicksMaxNetProfitAcrossAggregators(t *testing.T) {
	pair := mustPair(t)
	evaluator := NewProfitEvaluator(1, NewTipCalculator(TipModeStatic, 0, nil, 1_000_000))

	weak := &fakeQuoter{
		kind:    AggregatorDflow,
		forward: QuoteResult{InputMint: pair.InputMint, OutputMint: pair.OutputMint, InAmount: 1_000_000, OutAmount: 1_000_000, Kind: AggregatorDflow},
	}
	weak.reverse = QuoteResult{InputMint: pair.OutputMint, OutputMint: pair.InputMint, InAmount: weak.forward.OutAmount, OutAmount: 1_000_050, Kind: AggregatorDflow}

	strong := &fakeQuoter{
		kind:    AggregatorJupiter,
		forward: QuoteResult{InputMint: pair.InputMint, OutputMint: pair.OutputMint, InAmount: 1_000_000, OutAmount: 1_000_000, Kind: AggregatorJupiter},
	}
	strong.reverse = QuoteResult{InputMint: pair.OutputMint, OutputMint: pair.InputMint, InAmount: strong.forward.OutAmount, OutAmount: 1_000_500, Kind: AggregatorJupiter}

	sched := NewScheduler([]AggregatorEntry{
		{Quoter: weak},
		{Quoter: strong},
	}, testAllocator(t, 2), evaluator, nil)

	opp, ok, err := sched.Schedule(context.Background(), pair, 1_000_000, NewCycleDeadline(2*time.Second))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !ok {
		t.Fatal("expected an opportunity")
	}
	if opp.MergedQuote.Kind != AggregatorJupiter {
		t.Fatalf("expected jupiter (higher profit) to win, got %v", opp.MergedQuote.Kind)
	}
}

func TestScheduleDropsAggregatorOnQuoteError(t *testing.T) {
	pair := mustPair(t)
	evaluator := NewProfitEvaluator(1, NewTipCalculator(TipModeStatic, 0, nil, 1_000_000))

	broken := &fakeQuoter{kind: AggregatorTitan, forwardErr: NewError(KindAggregatorNetwork, "test", errField("boom"))}
	healthy := &fakeQuoter{
		kind:    AggregatorJupiter,
		forward: QuoteResult{InputMint: pair.InputMint, OutputMint: pair.OutputMint, InAmount: 1_000_000, OutAmount: 1_000_000, Kind: AggregatorJupiter},
	}
	healthy.reverse = QuoteResult{InputMint: pair.OutputMint, OutputMint: pair.InputMint, InAmount: healthy.forward.OutAmount, OutAmount: 1_000_100, Kind: AggregatorJupiter}

	sched := NewScheduler([]AggregatorEntry{{Quoter: broken}, {Quoter: healthy}}, testAllocator(t, 2), evaluator, nil)

	opp, ok, err := sched.Schedule(context.Background(), pair, 1_000_000, NewCycleDeadline(2*time.Second))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !ok || opp.MergedQuote.Kind != AggregatorJupiter {
		t.Fatalf("expected healthy aggregator's opportunity, got ok=%v opp=%+v", ok, opp)
	}
}

func TestScheduleBelowThresholdReturnsNoOpportunity(t *testing.T) {
	pair := mustPair(t)
	evaluator := NewProfitEvaluator(1_000, NewTipCalculator(TipModeStatic, 0, nil, 1_000_000))

	quoter := &fakeQuoter{
		kind:    AggregatorJupiter,
		forward: QuoteResult{InputMint: pair.InputMint, OutputMint: pair.OutputMint, InAmount: 1_000_000, OutAmount: 1_000_000, Kind: AggregatorJupiter},
	}
	quoter.reverse = QuoteResult{InputMint: pair.OutputMint, OutputMint: pair.InputMint, InAmount: quoter.forward.OutAmount, OutAmount: 999_999, Kind: AggregatorJupiter}

	sched := NewScheduler([]AggregatorEntry{{Quoter: quoter}}, testAllocator(t, 1), evaluator, nil)

	_, ok, err := sched.Schedule(context.Background(), pair, 1_000_000, NewCycleDeadline(2*time.Second))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if ok {
		t.Fatal("expected no opportunity below threshold")
	}
}
