package solana

import "fmt"

// LookupTable is a resolved address-lookup-table account: its own
// address plus the ordered list of addresses it stores.
type LookupTable struct {
	Key       Pubkey
	Addresses []Pubkey
}

// MessageAddressTableLookup is the compiled v0 message's compact
// reference into a lookup table: which table, and which indices
// within it are read-only vs writable.
type MessageAddressTableLookup struct {
	AccountKey      Pubkey
	WritableIndexes []byte
	ReadonlyIndexes []byte
}

// CompiledInstruction references accounts by index into the message's
// flattened key list (static keys, then loaded writable addresses,
// then loaded readonly addresses).
type CompiledInstruction struct {
	ProgramIDIndex byte
	AccountIndexes []byte
	Data           []byte
}

// MessageV0 is the minimal versioned-message shape the engine compiles
// and signs: a header, static account keys, instructions referencing
// those keys by index, and address-table lookups for everything
// pulled in from an ALT.
type MessageV0 struct {
	NumRequiredSignatures       byte
	NumReadonlySignedAccounts   byte
	NumReadonlyUnsignedAccounts byte
	AccountKeys                 []Pubkey
	RecentBlockhash             [32]byte
	Instructions                []CompiledInstruction
	AddressTableLookups         []MessageAddressTableLookup
}

type accountUse struct {
	signer   bool
	writable bool
}

// CompileMessageV0 compiles instructions into a v0 message: payer is
// always key 0 and a required signer, as is any other account an
// instruction marks as a signer; every other account is
// either a static key or, if it appears in one of the supplied lookup
// tables and is never used as a signer, loaded through that table
// instead.
func CompileMessageV0(
	payer Pubkey,
	instructions []Instruction,
	tables []LookupTable,
	blockhash [32]byte,
) (MessageV0, error) {
	tablePos := make(map[Pubkey]struct{ table, pos int })
	for ti, t := range tables {
		for pi, a := range t.Addresses {
			if _, exists := tablePos[a]; !exists {
				tablePos[a] = struct{ table, pos int }{ti, pi}
			}
		}
	}

	staticUse := map[Pubkey]*accountUse{payer: {signer: true, writable: true}}
	staticOrder := []Pubkey{payer}
	tableWritable := make(map[int]map[int]bool)
	tableReadonly := make(map[int]map[int]bool)

	touch := func(pk Pubkey, signer, writable bool) {
		if ref, ok := tablePos[pk]; ok && !signer {
			if writable {
				if tableWritable[ref.table] == nil {
					tableWritable[ref.table] = make(map[int]bool)
				}
				tableWritable[ref.table][ref.pos] = true
			} else {
				if tableReadonly[ref.table] == nil {
					tableReadonly[ref.table] = make(map[int]bool)
				}
				tableReadonly[ref.table][ref.pos] = true
			}
			return
		}
		if u, ok := staticUse[pk]; ok {
			u.signer = u.signer || signer
			u.writable = u.writable || writable
			return
		}
		staticUse[pk] = &accountUse{signer: signer, writable: writable}
		staticOrder = append(staticOrder, pk)
	}

	for _, ix := range instructions {
		touch(ix.ProgramID, false, false)
		for _, a := range ix.Accounts {
			touch(a.Pubkey, a.IsSigner, a.IsWritable)
		}
	}

	var signedWritable, signedReadonly, unsignedWritable, unsignedReadonly []Pubkey
	for _, k := range staticOrder {
		u := staticUse[k]
		switch {
		case u.signer && u.writable:
			signedWritable = append(signedWritable, k)
		case u.signer && !u.writable:
			signedReadonly = append(signedReadonly, k)
		case !u.signer && u.writable:
			unsignedWritable = append(unsignedWritable, k)
		default:
			unsignedReadonly = append(unsignedReadonly, k)
		}
	}
	ordered := make([]Pubkey, 0, len(staticOrder))
	ordered = append(ordered, signedWritable...)
	ordered = append(ordered, signedReadonly...)
	ordered = append(ordered, unsignedWritable...)
	ordered = append(ordered, unsignedReadonly...)
	if len(ordered) > 256 {
		return MessageV0{}, fmt.Errorf("solana: message exceeds static account key limit")
	}
	staticIndex := make(map[Pubkey]int, len(ordered))
	for i, k := range ordered {
		staticIndex[k] = i
	}

	// Loaded address space: writable entries from every table (in
	// table order, ascending position), then readonly entries, same
	// order the runtime uses to extend the account key space.
	loadedIndex := make(map[Pubkey]int)
	next := len(ordered)
	for ti := range tables {
		positions := sortedKeys(tableWritable[ti])
		for _, pos := range positions {
			loadedIndex[tables[ti].Addresses[pos]] = next
			next++
		}
	}
	for ti := range tables {
		positions := sortedKeys(tableReadonly[ti])
		for _, pos := range positions {
			loadedIndex[tables[ti].Addresses[pos]] = next
			next++
		}
	}
	if next > 256 {
		return MessageV0{}, fmt.Errorf("solana: message exceeds total account key limit")
	}

	resolve := func(pk Pubkey) (byte, error) {
		if idx, ok := staticIndex[pk]; ok {
			return byte(idx), nil
		}
		if idx, ok := loadedIndex[pk]; ok {
			return byte(idx), nil
		}
		return 0, fmt.Errorf("solana: account %s not present in static keys or lookup tables", pk)
	}

	compiled := make([]CompiledInstruction, 0, len(instructions))
	for _, ix := range instructions {
		progIdx, err := resolve(ix.ProgramID)
		if err != nil {
			return MessageV0{}, err
		}
		accIdx := make([]byte, 0, len(ix.Accounts))
		for _, a := range ix.Accounts {
			idx, err := resolve(a.Pubkey)
			if err != nil {
				return MessageV0{}, err
			}
			accIdx = append(accIdx, idx)
		}
		compiled = append(compiled, CompiledInstruction{
			ProgramIDIndex: progIdx,
			AccountIndexes: accIdx,
			Data:           ix.Data,
		})
	}

	lookups := make([]MessageAddressTableLookup, 0, len(tables))
	for ti, t := range tables {
		w := sortedKeys(tableWritable[ti])
		r := sortedKeys(tableReadonly[ti])
		if len(w) == 0 && len(r) == 0 {
			continue
		}
		lookup := MessageAddressTableLookup{AccountKey: t.Key}
		for _, pos := range w {
			lookup.WritableIndexes = append(lookup.WritableIndexes, byte(pos))
		}
		for _, pos := range r {
			lookup.ReadonlyIndexes = append(lookup.ReadonlyIndexes, byte(pos))
		}
		lookups = append(lookups, lookup)
	}

	return MessageV0{
		NumRequiredSignatures:       byte(len(signedWritable) + len(signedReadonly)),
		NumReadonlySignedAccounts:   byte(len(signedReadonly)),
		NumReadonlyUnsignedAccounts: byte(len(unsignedReadonly)),
		AccountKeys:                 ordered,
		RecentBlockhash:             blockhash,
		Instructions:                compiled,
		AddressTableLookups:         lookups,
	}, nil
}

func sortedKeys(m map[int]bool) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// Serialize produces the wire bytes of the v0 message (version prefix
// 0x80 followed by header, keys, blockhash, instructions, and
// lookups), the payload that gets ed25519-signed.
func (m MessageV0) Serialize() []byte {
	buf := make([]byte, 0, 256)
	buf = append(buf, 0x80) // v0 prefix
	buf = append(buf, m.NumRequiredSignatures, m.NumReadonlySignedAccounts, m.NumReadonlyUnsignedAccounts)
	buf = appendCompactArrayLen(buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf = append(buf, k[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	buf = appendCompactArrayLen(buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		buf = appendCompactArrayLen(buf, len(ix.AccountIndexes))
		buf = append(buf, ix.AccountIndexes...)
		buf = appendCompactArrayLen(buf, len(ix.Data))
		buf = append(buf, ix.Data...)
	}
	buf = appendCompactArrayLen(buf, len(m.AddressTableLookups))
	for _, l := range m.AddressTableLookups {
		buf = append(buf, l.AccountKey[:]...)
		buf = appendCompactArrayLen(buf, len(l.WritableIndexes))
		buf = append(buf, l.WritableIndexes...)
		buf = appendCompactArrayLen(buf, len(l.ReadonlyIndexes))
		buf = append(buf, l.ReadonlyIndexes...)
	}
	return buf
}

// appendCompactArrayLen encodes n using Solana's shortvec varint
// scheme, which for the small lengths (<2^16) this engine ever emits
// is byte-identical to the compact-u64 encoding used by the
// balance-guard instructions (PushCompactU64).
func appendCompactArrayLen(buf []byte, n int) []byte {
	return PushCompactU64(buf, uint64(n))
}
