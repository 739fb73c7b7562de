package marginfi

import (
	"testing"

	"github.com/shai-labs/voyager/internal/solana"
)

func testAsset(t *testing.T) Asset {
	t.Helper()
	mint, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	bank, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return Asset{
		Mint:         mint.Public,
		Bank:         bank.Public,
		TokenProgram: solana.MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"),
	}
}

func TestWrapLayoutMatchesEndIndex(t *testing.T) {
	asset := testAsset(t)
	account, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	user, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}

	mgr := NewManager(account.Public, NewRegistry([]Asset{asset}))

	prefix := make([]solana.Instruction, 1)
	body := make([]solana.Instruction, 3)
	for i := range prefix {
		prefix[i] = solana.Instruction{ProgramID: solana.SystemProgramID}
	}
	for i := range body {
		body[i] = solana.Instruction{ProgramID: solana.SystemProgramID}
	}

	out, meta, err := mgr.Wrap(user.Public, asset.Mint, prefix, body, 100)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	// indexes: prefix[0]@0, begin@1, borrow@2, body@3..5, repay@6, end@7
	if len(out) != 8 {
		t.Fatalf("len(out) = %d, want 8", len(out))
	}
	if meta == nil {
		t.Fatal("expected metadata")
	}
	if meta.InnerInstructionCount != 3 {
		t.Fatalf("inner_instruction_count = %d, want 3", meta.InnerInstructionCount)
	}
	if meta.BorrowAmount != 100 {
		t.Fatalf("borrow_amount = %d, want 100", meta.BorrowAmount)
	}

	beginIx := out[1]
	endIndexBytes := beginIx.Data[8:16]
	var endIndex uint64
	for i := 7; i >= 0; i-- {
		endIndex = endIndex<<8 | uint64(endIndexBytes[i])
	}
	if endIndex != 7 {
		t.Fatalf("end_index = %d, want 7", endIndex)
	}
}

func TestWrapZeroBorrowSplicesOnly(t *testing.T) {
	asset := testAsset(t)
	account, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	user, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	mgr := NewManager(account.Public, NewRegistry([]Asset{asset}))

	prefix := []solana.Instruction{{ProgramID: solana.SystemProgramID}}
	body := []solana.Instruction{{ProgramID: solana.SystemProgramID}}
	out, meta, err := mgr.Wrap(user.Public, asset.Mint, prefix, body, 0)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if len(out) != 2 || meta != nil {
		t.Fatalf("expected plain splice with no metadata, got len=%d meta=%v", len(out), meta)
	}
}

func TestWrapUnsupportedAsset(t *testing.T) {
	account, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	user, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	other, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	mgr := NewManager(account.Public, NewRegistry(nil))
	_, _, err = mgr.Wrap(user.Public, other.Public, nil, nil, 5)
	if err == nil {
		t.Fatal("expected UnsupportedAsset error")
	}
}
