package solana

// ExpandAccountKeys flattens a compiled message's static keys and its
// resolved address-lookup-table entries (writable first, then
// readonly) into the single index space CompiledInstruction.ProgramIDIndex
// / AccountIndexes reference. Same layout CompileMessageV0 produces.
func ExpandAccountKeys(msg MessageV0, tables []LookupTable) ([]Pubkey, error) {
	keys := append([]Pubkey{}, msg.AccountKeys...)
	byKey := make(map[Pubkey]LookupTable, len(tables))
	for _, t := range tables {
		byKey[t.Key] = t
	}
	for _, lookup := range msg.AddressTableLookups {
		table, ok := byKey[lookup.AccountKey]
		if !ok {
			return nil, ErrMalformedMessage
		}
		for _, idx := range lookup.WritableIndexes {
			if int(idx) >= len(table.Addresses) {
				return nil, ErrMalformedMessage
			}
			keys = append(keys, table.Addresses[idx])
		}
	}
	for _, lookup := range msg.AddressTableLookups {
		table := byKey[lookup.AccountKey]
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) >= len(table.Addresses) {
				return nil, ErrMalformedMessage
			}
			keys = append(keys, table.Addresses[idx])
		}
	}
	return keys, nil
}

// IsWritableIndex reports whether the account at idx (in the expanded
// key space ExpandAccountKeys produces) is writable, per the header
// layout CompileMessageV0 emits: signed-writable, signed-readonly,
// unsigned-writable, unsigned-readonly for the static range, then
// loaded-writable before loaded-readonly for the ALT range.
func IsWritableIndex(msg MessageV0, idx int) bool {
	numStatic := len(msg.AccountKeys)
	if idx < numStatic {
		unsignedWritableEnd := numStatic - int(msg.NumReadonlyUnsignedAccounts)
		numSignedWritable := int(msg.NumRequiredSignatures) - int(msg.NumReadonlySignedAccounts)
		if idx < numSignedWritable {
			return true
		}
		numSigned := int(msg.NumRequiredSignatures)
		return idx >= numSigned && idx < unsignedWritableEnd
	}
	loadedIdx := idx - numStatic
	writableCount := 0
	for _, lookup := range msg.AddressTableLookups {
		writableCount += len(lookup.WritableIndexes)
	}
	return loadedIdx < writableCount
}

// LiftInstructions expands a compiled message's account-index
// instructions back into (program_id, accounts[], data) form, the
// shape the bundle lander needs to filter and append instructions
// before recompiling and resigning.
func LiftInstructions(msg MessageV0, tables []LookupTable) ([]Instruction, error) {
	keys, err := ExpandAccountKeys(msg, tables)
	if err != nil {
		return nil, err
	}
	out := make([]Instruction, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, ErrMalformedMessage
		}
		accounts := make([]AccountMeta, 0, len(ci.AccountIndexes))
		for _, idx := range ci.AccountIndexes {
			if int(idx) >= len(keys) {
				return nil, ErrMalformedMessage
			}
			accounts = append(accounts, AccountMeta{
				Pubkey:     keys[idx],
				IsSigner:   int(idx) < int(msg.NumRequiredSignatures),
				IsWritable: IsWritableIndex(msg, int(idx)),
			})
		}
		out = append(out, Instruction{ProgramID: keys[ci.ProgramIDIndex], Accounts: accounts, Data: ci.Data})
	}
	return out, nil
}
