package solana

// AccountMeta describes one account reference inside an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is the lifted (program_id, accounts[], data) form every
// aggregator build artifact is canonicalised into, whether it arrived
// as a structured response or was decoded out of a compiled message.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// ComputeBudget program constants.
var ComputeBudgetProgramID = MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	computeBudgetDiscriminantRequestHeapFrame  = byte(1)
	ComputeBudgetDiscriminantSetUnitLimit       = byte(2)
	ComputeBudgetDiscriminantSetUnitPrice       = byte(3)
	computeBudgetDiscriminantSetLoadedAccountsDataSizeLimit = byte(4)
)

// IsComputeBudgetInstruction reports whether ix targets the
// compute-budget program at all (used to separate the compute_budget
// lane from everything else during decode).
func IsComputeBudgetInstruction(ix Instruction) bool {
	return ix.ProgramID == ComputeBudgetProgramID
}

// IsSetComputeUnitLimit / IsSetComputeUnitPrice identify the two
// instruction kinds the compute-budget normaliser deduplicates.
func IsSetComputeUnitLimit(ix Instruction) bool {
	return IsComputeBudgetInstruction(ix) && len(ix.Data) > 0 && ix.Data[0] == ComputeBudgetDiscriminantSetUnitLimit
}

func IsSetComputeUnitPrice(ix Instruction) bool {
	return IsComputeBudgetInstruction(ix) && len(ix.Data) > 0 && ix.Data[0] == ComputeBudgetDiscriminantSetUnitPrice
}

// NewSetComputeUnitLimit builds the `SetComputeUnitLimit(u32)` instruction.
func NewSetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = ComputeBudgetDiscriminantSetUnitLimit
	putUint32LE(data[1:], units)
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}

// NewSetComputeUnitPrice builds the `SetComputeUnitPrice(u64)` instruction
// (micro-lamports per compute unit).
func NewSetComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = ComputeBudgetDiscriminantSetUnitPrice
	putUint64LE(data[1:], microLamports)
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// PushCompactU64 appends a LEB128-style compact-u64 encoding of v to
// buf, the varint shape the Lighthouse guard program expects for its
// offset fields.
func PushCompactU64(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if v == 0 {
			break
		}
	}
	return buf
}

// Memo program id. The memo itself is cosmetic; downstream observers
// may key on it.
var MemoProgramID = MustPubkeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

func NewMemoInstruction(text string) Instruction {
	return Instruction{ProgramID: MemoProgramID, Data: []byte(text)}
}

// TokenProgramID / Token2022ProgramID are the two SPL token program
// ids the wallet token-account cache scans.
var (
	TokenProgramID     = MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID = MustPubkeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")
	SystemProgramID    = MustPubkeyFromBase58("11111111111111111111111111111111")
)

const systemInstructionDiscriminantTransfer = uint32(2)

// NewSystemTransfer builds the System program's Transfer(lamports)
// instruction, used by the bundle lander to append a Jito-style tip
// transfer.
func NewSystemTransfer(from, to Pubkey, lamports uint64) Instruction {
	data := make([]byte, 12)
	putUint32LE(data[0:4], systemInstructionDiscriminantTransfer)
	putUint64LE(data[4:12], lamports)
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Pubkey: from, IsSigner: true, IsWritable: true},
			{Pubkey: to, IsSigner: false, IsWritable: true},
		},
		Data: data,
	}
}

// IsSystemTransfer reports whether ix is a System-program Transfer
// instruction paying exactly lamports from payer to recipient, as
// built by NewSystemTransfer.
func IsSystemTransfer(ix Instruction, payer, recipient Pubkey, lamports uint64) bool {
	if ix.ProgramID != SystemProgramID || len(ix.Accounts) < 2 {
		return false
	}
	if ix.Accounts[0].Pubkey != payer || ix.Accounts[1].Pubkey != recipient {
		return false
	}
	if len(ix.Data) != 12 {
		return false
	}
	var discriminant uint32
	for i := 0; i < 4; i++ {
		discriminant |= uint32(ix.Data[i]) << (8 * i)
	}
	if discriminant != systemInstructionDiscriminantTransfer {
		return false
	}
	var value uint64
	for i := 0; i < 8; i++ {
		value |= uint64(ix.Data[4+i]) << (8 * i)
	}
	return value == lamports
}
