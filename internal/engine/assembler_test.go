package engine

import (
	"context"
	"testing"

	"github.com/shai-labs/voyager/internal/solana"
)

type scriptedAlt struct {
	resolve      []solana.LookupTable
	resolveErr   error
	refresh      []solana.LookupTable
	refreshErr   error
	refreshCalls int
}

func (s *scriptedAlt) ResolveMany(ctx context.Context, addrs []solana.Pubkey) ([]solana.LookupTable, error) {
	return s.resolve, s.resolveErr
}

func (s *scriptedAlt) RefreshMany(ctx context.Context, addrs []solana.Pubkey) ([]solana.LookupTable, error) {
	s.refreshCalls++
	return s.refresh, s.refreshErr
}

type fakeBuildCaller struct {
	artifact BuildArtifact
	err      error
}

func (f fakeBuildCaller) Build(ctx context.Context, merged MergedQuote, user solana.Pubkey) (BuildArtifact, error) {
	return f.artifact, f.err
}

func jupiterOpportunity() SwapOpportunity {
	return SwapOpportunity{MergedQuote: MergedQuote{Kind: AggregatorJupiter}}
}

func mustKeypair(t *testing.T) *solana.Keypair {
	t.Helper()
	kp, err := solana.NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair: %v", err)
	}
	return kp
}

func TestAssembleStructuredArtifactMapsLanes(t *testing.T) {
	swap := solana.Instruction{ProgramID: solana.SystemProgramID, Data: []byte{1}}
	cleanup := solana.Instruction{ProgramID: solana.SystemProgramID, Data: []byte{2}}
	setup := solana.Instruction{ProgramID: solana.SystemProgramID, Data: []byte{3}}
	other := solana.Instruction{ProgramID: solana.SystemProgramID, Data: []byte{4}}
	cb := solana.NewSetComputeUnitLimit(1000)

	artifact := BuildArtifact{
		ComputeBudgetInstructions: []solana.Instruction{cb},
		SetupInstructions:         []solana.Instruction{setup},
		SwapInstruction:           &swap,
		CleanupInstruction:        &cleanup,
		OtherInstructions:         []solana.Instruction{other},
		ComputeUnitLimit:          200_000,
		PrioritizationFeeLamports: 5000,
	}
	a := NewAssembler(map[AggregatorKind]BuildCaller{AggregatorJupiter: fakeBuildCaller{artifact: artifact}}, &scriptedAlt{})

	bundle, hints, err := a.Assemble(context.Background(), jupiterOpportunity(), mustKeypair(t).Pubkey())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.ComputeBudget) != 1 || string(bundle.ComputeBudget[0].Data) != string(cb.Data) {
		t.Fatalf("compute budget lane = %+v", bundle.ComputeBudget)
	}
	if len(bundle.Pre) != 1 || string(bundle.Pre[0].Data) != string(setup.Data) {
		t.Fatalf("pre lane = %+v", bundle.Pre)
	}
	if len(bundle.Main) != 2 || string(bundle.Main[0].Data) != string(swap.Data) || string(bundle.Main[1].Data) != string(other.Data) {
		t.Fatalf("main lane = %+v", bundle.Main)
	}
	if len(bundle.Post) != 1 || string(bundle.Post[0].Data) != string(cleanup.Data) {
		t.Fatalf("post lane = %+v", bundle.Post)
	}
	if hints.ComputeUnitLimit != 200_000 || hints.PrioritizationFeeLamports != 5000 {
		t.Fatalf("hints = %+v", hints)
	}
}

func TestAssembleCompiledMessageRewritesPayer(t *testing.T) {
	reported := mustKeypair(t)
	user := mustKeypair(t)
	counterparty := mustKeypair(t)

	ix := solana.Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: reported.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: counterparty.Pubkey()},
		},
		Data: []byte{9},
	}
	msg, err := solana.CompileMessageV0(reported.Pubkey(), []solana.Instruction{ix}, nil, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}

	artifact := BuildArtifact{CompiledMessage: &msg, ReportedPayer: reported.Pubkey()}
	a := NewAssembler(map[AggregatorKind]BuildCaller{AggregatorJupiter: fakeBuildCaller{artifact: artifact}}, &scriptedAlt{})

	bundle, _, err := a.Assemble(context.Background(), jupiterOpportunity(), user.Pubkey())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.Main) != 1 {
		t.Fatalf("main lane = %+v", bundle.Main)
	}
	got := bundle.Main[0]
	if got.Accounts[0].Pubkey != user.Pubkey() {
		t.Fatalf("payer not rewritten: %s", got.Accounts[0].Pubkey)
	}
	if !got.Accounts[0].IsSigner {
		t.Fatal("rewritten payer must stay a signer")
	}
	if got.Accounts[1].Pubkey != counterparty.Pubkey() {
		t.Fatalf("non-payer account must be untouched, got %s", got.Accounts[1].Pubkey)
	}
}

func TestAssembleSeparatesComputeBudgetLane(t *testing.T) {
	reported := mustKeypair(t)
	user := mustKeypair(t)

	ixs := []solana.Instruction{
		solana.NewSetComputeUnitPrice(7),
		{ProgramID: solana.SystemProgramID, Accounts: []solana.AccountMeta{{Pubkey: reported.Pubkey(), IsSigner: true, IsWritable: true}}},
	}
	msg, err := solana.CompileMessageV0(reported.Pubkey(), ixs, nil, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}

	artifact := BuildArtifact{CompiledMessage: &msg, ReportedPayer: reported.Pubkey()}
	a := NewAssembler(map[AggregatorKind]BuildCaller{AggregatorJupiter: fakeBuildCaller{artifact: artifact}}, &scriptedAlt{})

	bundle, _, err := a.Assemble(context.Background(), jupiterOpportunity(), user.Pubkey())
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(bundle.ComputeBudget) != 1 || !solana.IsSetComputeUnitPrice(bundle.ComputeBudget[0]) {
		t.Fatalf("compute budget lane = %+v", bundle.ComputeBudget)
	}
	if len(bundle.Main) != 1 {
		t.Fatalf("main lane = %+v", bundle.Main)
	}
}

func TestAssembleStaleTableRefreshedOnceOnIndexOOB(t *testing.T) {
	reported := mustKeypair(t)
	user := mustKeypair(t)
	loadedA := mustKeypair(t)
	loadedB := mustKeypair(t)
	tableKey := mustKeypair(t)

	full := solana.LookupTable{Key: tableKey.Pubkey(), Addresses: []solana.Pubkey{loadedA.Pubkey(), loadedB.Pubkey()}}
	stale := solana.LookupTable{Key: tableKey.Pubkey(), Addresses: []solana.Pubkey{loadedA.Pubkey()}}

	ix := solana.Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: reported.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: loadedB.Pubkey()},
		},
	}
	msg, err := solana.CompileMessageV0(reported.Pubkey(), []solana.Instruction{ix}, []solana.LookupTable{full}, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}
	if len(msg.AddressTableLookups) != 1 {
		t.Fatalf("expected the message to reference the lookup table, got %+v", msg.AddressTableLookups)
	}

	alt := &scriptedAlt{refresh: []solana.LookupTable{full}}
	artifact := BuildArtifact{
		CompiledMessage:             &msg,
		ReportedPayer:               reported.Pubkey(),
		AddressLookupTableAddresses: []solana.Pubkey{tableKey.Pubkey()},
		ResolvedLookupTables:        []solana.LookupTable{stale},
	}
	a := NewAssembler(map[AggregatorKind]BuildCaller{AggregatorJupiter: fakeBuildCaller{artifact: artifact}}, alt)

	bundle, _, err := a.Assemble(context.Background(), jupiterOpportunity(), user.Pubkey())
	if err != nil {
		t.Fatalf("Assemble after forced refresh: %v", err)
	}
	if alt.refreshCalls != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", alt.refreshCalls)
	}
	found := false
	for _, acc := range bundle.Main[0].Accounts {
		if acc.Pubkey == loadedB.Pubkey() {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the refreshed table to supply the loaded account")
	}
}

func TestAssembleRefreshFailureIsFatal(t *testing.T) {
	reported := mustKeypair(t)
	user := mustKeypair(t)
	loaded := mustKeypair(t)
	tableKey := mustKeypair(t)

	full := solana.LookupTable{Key: tableKey.Pubkey(), Addresses: []solana.Pubkey{loaded.Pubkey()}}
	ix := solana.Instruction{
		ProgramID: solana.SystemProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: reported.Pubkey(), IsSigner: true, IsWritable: true},
			{Pubkey: loaded.Pubkey()},
		},
	}
	msg, err := solana.CompileMessageV0(reported.Pubkey(), []solana.Instruction{ix}, []solana.LookupTable{full}, [32]byte{1})
	if err != nil {
		t.Fatalf("CompileMessageV0: %v", err)
	}

	// Stale on first expand, still stale after the forced refresh.
	stale := solana.LookupTable{Key: tableKey.Pubkey(), Addresses: nil}
	alt := &scriptedAlt{refresh: []solana.LookupTable{stale}}
	artifact := BuildArtifact{
		CompiledMessage:             &msg,
		ReportedPayer:               reported.Pubkey(),
		AddressLookupTableAddresses: []solana.Pubkey{tableKey.Pubkey()},
		ResolvedLookupTables:        []solana.LookupTable{stale},
	}
	a := NewAssembler(map[AggregatorKind]BuildCaller{AggregatorJupiter: fakeBuildCaller{artifact: artifact}}, alt)

	_, _, err = a.Assemble(context.Background(), jupiterOpportunity(), user.Pubkey())
	if err == nil {
		t.Fatal("expected fatal error after the second resolution attempt")
	}
	if !IsKind(err, KindLookupTableIndexOOB) {
		t.Fatalf("expected LookupTableIndexOOB, got %v", err)
	}
	if alt.refreshCalls != 1 {
		t.Fatalf("refresh calls = %d, want exactly 1", alt.refreshCalls)
	}
}

func TestAssembleNoBuildCallerRegistered(t *testing.T) {
	a := NewAssembler(nil, &scriptedAlt{})
	_, _, err := a.Assemble(context.Background(), jupiterOpportunity(), mustKeypair(t).Pubkey())
	if err == nil {
		t.Fatal("expected error when no build caller is registered")
	}
}
