package solana

import "errors"

var ErrMalformedMessage = errors.New("solana: malformed v0 message bytes")

// readCompactArrayLen decodes the compact-u64 length prefix
// CompileMessageV0/appendCompactArrayLen produce, returning the
// decoded value and the number of bytes consumed.
func readCompactArrayLen(buf []byte) (int, int, error) {
	var value uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return int(value), i + 1, nil
		}
		shift += 7
		if shift > 63 {
			return 0, 0, ErrMalformedMessage
		}
	}
	return 0, 0, ErrMalformedMessage
}

// DeserializeMessageV0 is the inverse of MessageV0.Serialize: it lifts
// an Ultra-style aggregator's compiled transaction message bytes back
// into the same MessageV0 shape CompileMessageV0 produces, so the
// assembler can treat either build path uniformly.
func DeserializeMessageV0(buf []byte) (MessageV0, error) {
	if len(buf) < 4 || buf[0] != 0x80 {
		return MessageV0{}, ErrMalformedMessage
	}
	pos := 1
	msg := MessageV0{
		NumRequiredSignatures:       buf[pos],
		NumReadonlySignedAccounts:   buf[pos+1],
		NumReadonlyUnsignedAccounts: buf[pos+2],
	}
	pos += 3

	numKeys, n, err := readCompactArrayLen(buf[pos:])
	if err != nil {
		return MessageV0{}, err
	}
	pos += n
	msg.AccountKeys = make([]Pubkey, numKeys)
	for i := 0; i < numKeys; i++ {
		if pos+32 > len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		copy(msg.AccountKeys[i][:], buf[pos:pos+32])
		pos += 32
	}

	if pos+32 > len(buf) {
		return MessageV0{}, ErrMalformedMessage
	}
	copy(msg.RecentBlockhash[:], buf[pos:pos+32])
	pos += 32

	numIx, n, err := readCompactArrayLen(buf[pos:])
	if err != nil {
		return MessageV0{}, err
	}
	pos += n
	msg.Instructions = make([]CompiledInstruction, numIx)
	for i := 0; i < numIx; i++ {
		if pos >= len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		progIdx := buf[pos]
		pos++
		numAcc, n, err := readCompactArrayLen(buf[pos:])
		if err != nil {
			return MessageV0{}, err
		}
		pos += n
		if pos+numAcc > len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		accIdx := append([]byte(nil), buf[pos:pos+numAcc]...)
		pos += numAcc
		dataLen, n, err := readCompactArrayLen(buf[pos:])
		if err != nil {
			return MessageV0{}, err
		}
		pos += n
		if pos+dataLen > len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		data := append([]byte(nil), buf[pos:pos+dataLen]...)
		pos += dataLen
		msg.Instructions[i] = CompiledInstruction{ProgramIDIndex: progIdx, AccountIndexes: accIdx, Data: data}
	}

	numLookups, n, err := readCompactArrayLen(buf[pos:])
	if err != nil {
		return MessageV0{}, err
	}
	pos += n
	msg.AddressTableLookups = make([]MessageAddressTableLookup, numLookups)
	for i := 0; i < numLookups; i++ {
		if pos+32 > len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		var key Pubkey
		copy(key[:], buf[pos:pos+32])
		pos += 32
		wLen, n, err := readCompactArrayLen(buf[pos:])
		if err != nil {
			return MessageV0{}, err
		}
		pos += n
		if pos+wLen > len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		writable := append([]byte(nil), buf[pos:pos+wLen]...)
		pos += wLen
		rLen, n, err := readCompactArrayLen(buf[pos:])
		if err != nil {
			return MessageV0{}, err
		}
		pos += n
		if pos+rLen > len(buf) {
			return MessageV0{}, ErrMalformedMessage
		}
		readonly := append([]byte(nil), buf[pos:pos+rLen]...)
		pos += rLen
		msg.AddressTableLookups[i] = MessageAddressTableLookup{AccountKey: key, WritableIndexes: writable, ReadonlyIndexes: readonly}
	}

	return msg, nil
}

// DeserializeVersionedTransaction is the inverse of
// VersionedTransaction.Serialize, used by the Ultra-style
// build-artifact decode path.
func DeserializeVersionedTransaction(buf []byte) (VersionedTransaction, error) {
	numSigs, n, err := readCompactArrayLen(buf)
	if err != nil {
		return VersionedTransaction{}, err
	}
	pos := n
	sigs := make([][]byte, numSigs)
	for i := 0; i < numSigs; i++ {
		if pos+64 > len(buf) {
			return VersionedTransaction{}, ErrMalformedMessage
		}
		sigs[i] = append([]byte(nil), buf[pos:pos+64]...)
		pos += 64
	}
	msg, err := DeserializeMessageV0(buf[pos:])
	if err != nil {
		return VersionedTransaction{}, err
	}
	return VersionedTransaction{Signatures: sigs, Message: msg}, nil
}
