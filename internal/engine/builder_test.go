package engine

import (
	"context"
	"testing"

	"github.com/shai-labs/voyager/internal/solana"
)

type fakeChain struct {
	hash [32]byte
	slot uint64
	err  error
}

func (f fakeChain) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	return f.hash, 0, f.err
}

func (f fakeChain) GetSlot(ctx context.Context) (uint64, error) { return f.slot, f.err }

func (f fakeChain) GetAccountData(ctx context.Context, addr solana.Pubkey) ([]byte, error) {
	return nil, nil
}

type fakeAlt struct{}

func (fakeAlt) ResolveMany(ctx context.Context, addrs []solana.Pubkey) ([]solana.LookupTable, error) {
	return nil, nil
}

func (fakeAlt) RefreshMany(ctx context.Context, addrs []solana.Pubkey) ([]solana.LookupTable, error) {
	return nil, nil
}

func TestTransactionBuilderBuildsAndSigns(t *testing.T) {
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	chain := fakeChain{hash: [32]byte{1, 2, 3}, slot: 42}
	builder := NewTransactionBuilder(chain, fakeAlt{}, BuilderConfig{})
	bundle := InstructionBundle{
		Main: []solana.Instruction{{ProgramID: solana.SystemProgramID}},
	}
	prepared, err := builder.Build(context.Background(), kp, bundle, 100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if prepared.Slot != 42 {
		t.Fatalf("slot = %d, want 42", prepared.Slot)
	}
	if prepared.Blockhash != chain.hash {
		t.Fatalf("blockhash mismatch")
	}
	if len(prepared.Transaction.Signatures) != 1 || prepared.Transaction.Signatures[0] == nil {
		t.Fatal("expected exactly one populated signature")
	}
}

func TestTransactionBuilderMemoAppended(t *testing.T) {
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	builder := NewTransactionBuilder(fakeChain{}, fakeAlt{}, BuilderConfig{Memo: "hello"})
	bundle := InstructionBundle{Main: []solana.Instruction{{ProgramID: solana.SystemProgramID}}}
	prepared, err := builder.Build(context.Background(), kp, bundle, 0)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	found := false
	for _, k := range prepared.Transaction.Message.AccountKeys {
		if k == solana.MemoProgramID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected memo program id among account keys when Memo is configured")
	}
}
