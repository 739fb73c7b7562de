// Package guard injects balance guards built on the Lighthouse
// assertion program: a pre-transaction snapshot of a token account's
// amount plus a post-transaction delta assertion.
package guard

import (
	"encoding/binary"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

var (
	ProgramID       = solana.MustPubkeyFromBase58("L2TExMFKdjpN9kozasaurPirfHy9P8sbXoAN1qA3S95")
	systemProgramID solana.Pubkey // zero pubkey: Lighthouse's memory_write treats [0;32] as the system program sentinel
)

const (
	tokenAccountAmountOffset uint16 = 64
	tokenAccountAmountSize   uint16 = 8
)

// IntegerOperator mirrors Lighthouse's comparison enum used by
// assert_account_delta.
type IntegerOperator uint8

const (
	OperatorEqual IntegerOperator = iota
	OperatorNotEqual
	OperatorGreaterThan
	OperatorLessThan
	OperatorGreaterThanOrEqual
	OperatorLessThanOrEqual
	OperatorContains
	OperatorDoesNotContain
)

// LogLevel mirrors Lighthouse's LogLevel enum; guards log only on
// assertion failure.
type LogLevel uint8

const (
	LogLevelSilent LogLevel = iota
	LogLevelPlaintextMessage
	LogLevelEncodedMessage
	LogLevelEncodedNoop
	LogLevelFailedPlaintextMessage
	LogLevelFailedEncodedMessage
	LogLevelFailedEncodedNoop
)

// TokenAmountGuard is the memory_write + assert_delta instruction pair
// enforcing a minimum balance increase on one token account.
type TokenAmountGuard struct {
	MemoryWrite solana.Instruction
	AssertDelta solana.Instruction
	MemoryBump  uint8
}

// FindMemoryPDA derives the Lighthouse memory account for (payer,
// memory_id).
func FindMemoryPDA(payer solana.Pubkey, memoryID uint8) (solana.Pubkey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("memory"), payer[:], {memoryID}}, ProgramID)
}

// BuildTokenAmountGuard derives the memory PDA and builds the snapshot
// and delta-assertion instructions over target's amount field.
func BuildTokenAmountGuard(payer, target solana.Pubkey, memoryID uint8, minDelta uint64) (TokenAmountGuard, error) {
	memory, bump, err := FindMemoryPDA(payer, memoryID)
	if err != nil {
		return TokenAmountGuard{}, engine.NewError(engine.KindTransaction, "guard.BuildTokenAmountGuard", err)
	}

	memoryWrite := buildMemoryWrite(memoryWriteParams{
		payer:              payer,
		memory:             memory,
		memoryID:           memoryID,
		memoryBump:         bump,
		sourceAccount:      target,
		writeOffset:        0,
		accountDataOffset:  tokenAccountAmountOffset,
		accountDataLength:  tokenAccountAmountSize,
	})

	assertDelta := buildAccountDelta(accountDeltaParams{
		memory:            memory,
		targetAccount:     target,
		logLevel:          LogLevelFailedPlaintextMessage,
		snapshotOffset:    0,
		accountDataOffset: uint64(tokenAccountAmountOffset),
		expectedDelta:     int64(minDelta),
		operator:          OperatorGreaterThanOrEqual,
	})

	return TokenAmountGuard{MemoryWrite: memoryWrite, AssertDelta: assertDelta, MemoryBump: bump}, nil
}

// Inject prepends the memory_write to the bundle's pre lane and
// appends the assert_delta to its post lane.
func Inject(bundle engine.InstructionBundle, guard TokenAmountGuard) engine.InstructionBundle {
	bundle.Pre = append([]solana.Instruction{guard.MemoryWrite}, bundle.Pre...)
	bundle.Post = append(bundle.Post, guard.AssertDelta)
	return bundle
}

type memoryWriteParams struct {
	payer, memory                          solana.Pubkey
	memoryID, memoryBump                   uint8
	sourceAccount                          solana.Pubkey
	writeOffset                            uint64
	accountDataOffset, accountDataLength   uint16
}

func buildMemoryWrite(p memoryWriteParams) solana.Instruction {
	data := make([]byte, 0, 9)
	data = append(data, 0, p.memoryID, p.memoryBump)
	data = solana.PushCompactU64(data, p.writeOffset)
	data = append(data, 0) // WriteType::AccountData
	offBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(offBytes, p.accountDataOffset)
	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, p.accountDataLength)
	data = append(data, offBytes...)
	data = append(data, lenBytes...)

	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: ProgramID},
			{Pubkey: systemProgramID},
			{Pubkey: p.payer, IsSigner: true, IsWritable: true},
			{Pubkey: p.memory, IsWritable: true},
			{Pubkey: p.sourceAccount},
		},
		Data: data,
	}
}

type accountDeltaParams struct {
	memory, targetAccount               solana.Pubkey
	logLevel                            LogLevel
	snapshotOffset, accountDataOffset   uint64
	expectedDelta                       int64
	operator                            IntegerOperator
}

func buildAccountDelta(p accountDeltaParams) solana.Instruction {
	data := make([]byte, 0, 32)
	data = append(data, 4, byte(p.logLevel), 1)
	data = solana.PushCompactU64(data, p.snapshotOffset)
	data = solana.PushCompactU64(data, p.accountDataOffset)
	data = append(data, 6) // DataValueDeltaAssertion::U64
	data = appendI128LE(data, p.expectedDelta)
	data = append(data, byte(p.operator))

	return solana.Instruction{
		ProgramID: ProgramID,
		Accounts: []solana.AccountMeta{
			{Pubkey: p.memory},
			{Pubkey: p.targetAccount},
		},
		Data: data,
	}
}

// appendI128LE appends a 16-byte little-endian signed 128-bit integer.
// The int64 input is sign-extended: the high 8 bytes are zero for a
// non-negative v and 0xff for a negative one.
func appendI128LE(buf []byte, v int64) []byte {
	lo := make([]byte, 8)
	binary.LittleEndian.PutUint64(lo, uint64(v))
	hi := make([]byte, 8)
	if v < 0 {
		for i := range hi {
			hi[i] = 0xff
		}
	}
	return append(append(buf, lo...), hi...)
}
