package solana

import (
	"bytes"
	"testing"
)

func newTestKeypair(t *testing.T) *Keypair {
	t.Helper()
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return kp
}

func TestMessageSerializeDeserializeRoundTrip(t *testing.T) {
	payer := newTestKeypair(t)
	loaded := newTestKeypair(t)
	tableKey := newTestKeypair(t)
	table := LookupTable{Key: tableKey.Pubkey(), Addresses: []Pubkey{loaded.Pubkey()}}

	ix := Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: loaded.Pubkey(), IsWritable: true},
		},
		Data: []byte{1, 2, 3},
	}
	msg, err := CompileMessageV0(payer.Pubkey(), []Instruction{ix}, []LookupTable{table}, [32]byte{7})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}

	wire := msg.Serialize()
	decoded, err := DeserializeMessageV0(wire)
	if err != nil {
		t.Fatalf("DeserializeMessageV0: %v", err)
	}
	if !bytes.Equal(decoded.Serialize(), wire) {
		t.Fatal("re-serialized message differs from the original wire bytes")
	}
	if len(decoded.AddressTableLookups) != 1 || decoded.AddressTableLookups[0].AccountKey != tableKey.Pubkey() {
		t.Fatalf("lookup table reference lost: %+v", decoded.AddressTableLookups)
	}
}

func TestTransactionSerializeDeserializeRoundTrip(t *testing.T) {
	payer := newTestKeypair(t)
	tx, err := NewVersionedTransaction(payer, []Instruction{NewSetComputeUnitLimit(1000)}, nil, [32]byte{9})
	if err != nil {
		t.Fatalf("NewVersionedTransaction: %v", err)
	}
	decoded, err := DeserializeVersionedTransaction(tx.Serialize())
	if err != nil {
		t.Fatalf("DeserializeVersionedTransaction: %v", err)
	}
	if !bytes.Equal(decoded.Serialize(), tx.Serialize()) {
		t.Fatal("transaction round trip changed the wire bytes")
	}
	if len(decoded.Signatures) != 1 || !bytes.Equal(decoded.Signatures[0], tx.Signatures[0]) {
		t.Fatal("signature lost in round trip")
	}
}

func TestLiftInstructionsRecoversCompiledForm(t *testing.T) {
	payer := newTestKeypair(t)
	loaded := newTestKeypair(t)
	tableKey := newTestKeypair(t)
	table := LookupTable{Key: tableKey.Pubkey(), Addresses: []Pubkey{loaded.Pubkey()}}

	ix := Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: loaded.Pubkey()},
		},
		Data: []byte{5, 6},
	}
	msg, err := CompileMessageV0(payer.Pubkey(), []Instruction{ix}, []LookupTable{table}, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}

	lifted, err := LiftInstructions(msg, []LookupTable{table})
	if err != nil {
		t.Fatalf("LiftInstructions: %v", err)
	}
	if len(lifted) != 1 {
		t.Fatalf("len(lifted) = %d, want 1", len(lifted))
	}
	got := lifted[0]
	if got.ProgramID != SystemProgramID || !bytes.Equal(got.Data, ix.Data) {
		t.Fatalf("lifted instruction mismatch: %+v", got)
	}
	if got.Accounts[0].Pubkey != payer.Pubkey() || !got.Accounts[0].IsSigner {
		t.Fatalf("payer account mismatch: %+v", got.Accounts[0])
	}
	if got.Accounts[1].Pubkey != loaded.Pubkey() || got.Accounts[1].IsSigner {
		t.Fatalf("loaded account mismatch: %+v", got.Accounts[1])
	}
}

func TestLiftInstructionsMissingTable(t *testing.T) {
	payer := newTestKeypair(t)
	loaded := newTestKeypair(t)
	tableKey := newTestKeypair(t)
	table := LookupTable{Key: tableKey.Pubkey(), Addresses: []Pubkey{loaded.Pubkey()}}

	ix := Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: loaded.Pubkey()},
		},
	}
	msg, err := CompileMessageV0(payer.Pubkey(), []Instruction{ix}, []LookupTable{table}, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}
	if _, err := LiftInstructions(msg, nil); err == nil {
		t.Fatal("expected error when the referenced table is not supplied")
	}
}

func TestIsWritableIndexStaticLayout(t *testing.T) {
	payer := newTestKeypair(t)
	writable := newTestKeypair(t)
	readonly := newTestKeypair(t)

	ix := Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: payer.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: writable.Pubkey(), IsWritable: true},
			{Pubkey: readonly.Pubkey()},
		},
	}
	msg, err := CompileMessageV0(payer.Pubkey(), []Instruction{ix}, nil, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}

	find := func(pk Pubkey) int {
		for i, k := range msg.AccountKeys {
			if k == pk {
				return i
			}
		}
		t.Fatalf("account %s not in static keys", pk)
		return -1
	}
	if !IsWritableIndex(msg, find(payer.Pubkey())) {
		t.Fatal("payer must be writable")
	}
	if !IsWritableIndex(msg, find(writable.Pubkey())) {
		t.Fatal("unsigned writable account misclassified")
	}
	if IsWritableIndex(msg, find(readonly.Pubkey())) {
		t.Fatal("readonly account misclassified as writable")
	}
	if IsWritableIndex(msg, find(SystemProgramID)) {
		t.Fatal("program id must be readonly")
	}
}

func TestDecodeLookupTableAccountAddresses(t *testing.T) {
	a := newTestKeypair(t)
	b := newTestKeypair(t)
	data := make([]byte, 56)
	data = append(data, a.Public[:]...)
	data = append(data, b.Public[:]...)

	addrs, err := DecodeLookupTableAccountAddresses(data)
	if err != nil {
		t.Fatalf("DecodeLookupTableAccountAddresses: %v", err)
	}
	if len(addrs) != 2 || addrs[0] != a.Public || addrs[1] != b.Public {
		t.Fatalf("unexpected addresses: %+v", addrs)
	}

	if _, err := DecodeLookupTableAccountAddresses([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated header")
	}
	if _, err := DecodeLookupTableAccountAddresses(make([]byte, 56+31)); err == nil {
		t.Fatal("expected error for a misaligned address region")
	}
}

func TestFindAssociatedTokenAddressDeterministic(t *testing.T) {
	owner := newTestKeypair(t)
	mint := newTestKeypair(t)

	ata1, _, err := FindAssociatedTokenAddress(owner.Public, mint.Public, TokenProgramID)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	ata2, _, err := FindAssociatedTokenAddress(owner.Public, mint.Public, TokenProgramID)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress: %v", err)
	}
	if ata1 != ata2 {
		t.Fatal("ATA derivation is not deterministic")
	}
	ata2022, _, err := FindAssociatedTokenAddress(owner.Public, mint.Public, Token2022ProgramID)
	if err != nil {
		t.Fatalf("FindAssociatedTokenAddress (2022): %v", err)
	}
	if ata2022 == ata1 {
		t.Fatal("token-2022 ATA must differ from the legacy one")
	}
}

func TestSystemTransferRoundTrip(t *testing.T) {
	from := newTestKeypair(t)
	to := newTestKeypair(t)

	ix := NewSystemTransfer(from.Public, to.Public, 12345)
	if !IsSystemTransfer(ix, from.Public, to.Public, 12345) {
		t.Fatal("IsSystemTransfer rejected its own construction")
	}
	if IsSystemTransfer(ix, from.Public, to.Public, 12346) {
		t.Fatal("IsSystemTransfer matched a different amount")
	}
	if IsSystemTransfer(ix, to.Public, from.Public, 12345) {
		t.Fatal("IsSystemTransfer matched swapped accounts")
	}
}
