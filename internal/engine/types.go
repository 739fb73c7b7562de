package engine

import (
	"encoding/json"
	"time"

	"github.com/shai-labs/voyager/internal/solana"
)

// AggregatorKind identifies which third-party swap aggregator produced
// a quote or build artifact. Closed set, known at compile time.
type AggregatorKind string

const (
	AggregatorJupiter AggregatorKind = "jupiter"
	AggregatorDflow    AggregatorKind = "dflow"
	AggregatorTitan    AggregatorKind = "titan"
)

// Direction distinguishes the two legs of a round-trip quote.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionReverse
)

// TradePair is immutable, process-lived configuration.
type TradePair struct {
	InputMint  solana.Pubkey
	OutputMint solana.Pubkey
}

// SwapMode selects which side of a quote is fixed.
type SwapMode string

const (
	SwapModeExactIn  SwapMode = "ExactIn"
	SwapModeExactOut SwapMode = "ExactOut"
)

// QuoteKnobs is the union of tuning knobs recognised across aggregator
// clients; each client sends the subset its wire protocol understands.
// Lives in engine (not the aggregator package that actually sends
// these over the wire) so that AggregatorQuoter, the scheduler's
// dependency interface, never needs to import aggregator.
type QuoteKnobs struct {
	SlippageBps           uint16 // ignored when SlippageAuto is true
	SlippageAuto          bool
	DirectRoutesOnly      bool
	RestrictIntermediates bool
	DexAllowList          []string
	DexDenyList           []string
	PlatformFeeBps        uint16
	MaxAccounts           int
	SwapMode              SwapMode
}

// QuoteTask is transient, cycle-lived input to an aggregator client.
type QuoteTask struct {
	Pair      TradePair
	Amount    uint64
	Kind      AggregatorKind
	Direction Direction
}

// QuoteResult is the normalised view over an aggregator's quote
// response. Raw is the opaque payload retained for the build step;
// aggregator clients populate it with whatever they need to replay a
// build call (e.g. the full JSON quote body).
type QuoteResult struct {
	InputMint    solana.Pubkey
	OutputMint   solana.Pubkey
	InAmount     uint64
	OutAmount    uint64
	ContextSlot  uint64
	TimeTakenMs  float64
	Kind         AggregatorKind
	RoutePlanLen int
	Raw          json.RawMessage
}

// DoubleQuote pairs a forward and reverse QuoteResult whose legs
// chain: forward.OutputMint == reverse.InputMint, reverse.OutputMint
// == forward.InputMint, forward.OutAmount == reverse.InAmount.
type DoubleQuote struct {
	Forward QuoteResult
	Reverse QuoteResult
}

// Validate checks that the two legs are composable: same aggregator
// kind on both, and the mint/amount chaining holds.
func (dq DoubleQuote) Validate() error {
	if dq.Forward.Kind != dq.Reverse.Kind {
		return NewError(KindAggregatorDecode, "engine.DoubleQuote.Validate", ErrCrossAggregatorMerge)
	}
	if dq.Forward.OutputMint != dq.Reverse.InputMint {
		return NewError(KindAggregatorDecode, "engine.DoubleQuote.Validate", errMintChainBroken)
	}
	if dq.Reverse.OutputMint != dq.Forward.InputMint {
		return NewError(KindAggregatorDecode, "engine.DoubleQuote.Validate", errMintChainBroken)
	}
	if dq.Forward.OutAmount != dq.Reverse.InAmount {
		return NewError(KindAggregatorDecode, "engine.DoubleQuote.Validate", errAmountChainBroken)
	}
	return nil
}

// SwapOpportunity is the output of profit evaluation, carrying the
// merged quote payload the assembler builds against.
type SwapOpportunity struct {
	Pair           TradePair
	AmountIn       uint64
	ProfitLamports uint64
	TipLamports    uint64
	MergedQuote    MergedQuote
}

// MergedQuote is the forward payload rewritten to describe the full
// round trip, presented to the assembler as the build request.
type MergedQuote struct {
	Kind             AggregatorKind
	InputMint        solana.Pubkey
	OutputMint       solana.Pubkey
	InAmount         uint64
	OutAmount        uint64
	ContextSlot      uint64
	TimeTakenMs      float64
	PriceImpactPct   float64
	RoutePlanLen     int
	ForwardRaw       json.RawMessage
	ReverseRaw       json.RawMessage
}

// InstructionBundle is the ordered lane layout the assembler builds
// and the normaliser and injectors mutate. LookupAddresses is the
// requested ALT address set; ResolvedTables holds whatever the ALT
// cache has resolved so far.
type InstructionBundle struct {
	ComputeBudget   []solana.Instruction
	Pre             []solana.Instruction
	Main            []solana.Instruction
	Post            []solana.Instruction
	LookupAddresses []solana.Pubkey
	ResolvedTables  []solana.LookupTable
}

// Flatten orders the bundle compute_budget ++ pre ++ main ++ post, the
// layout the transaction builder compiles.
func (b InstructionBundle) Flatten() []solana.Instruction {
	out := make([]solana.Instruction, 0, len(b.ComputeBudget)+len(b.Pre)+len(b.Main)+len(b.Post))
	out = append(out, b.ComputeBudget...)
	out = append(out, b.Pre...)
	out = append(out, b.Main...)
	out = append(out, b.Post...)
	return out
}

// FlashLoanMetadata is present iff flash-loan wrapping was applied.
type FlashLoanMetadata struct {
	Protocol             string
	Mint                 solana.Pubkey
	BorrowAmount          uint64
	InnerInstructionCount int
}

// PreparedTransaction is a signed versioned transaction ready for
// submission.
type PreparedTransaction struct {
	Transaction    solana.VersionedTransaction
	Blockhash      [32]byte
	Slot           uint64
	Signer         solana.Signer
	TipLamports    uint64
	// ResolvedLookupTables carries forward whatever ALTs were resolved
	// while compiling the message, so a lander that needs to rebuild
	// the instruction list (the bundle lander's tip-transfer splice)
	// can lift it back without re-resolving.
	ResolvedLookupTables []solana.LookupTable
}

// LanderReceipt is emitted on first successful lander submission.
type LanderReceipt struct {
	Lander    string
	Endpoint  string
	Slot      uint64
	Blockhash [32]byte
	Signature string
	VariantID VariantID
}

// ComputeHints carries the compute-budget values the assembler records
// for the normaliser to act on.
type ComputeHints struct {
	ComputeUnitLimit          uint32
	ComputeUnitPriceMicroLamports uint64
	PrioritizationFeeLamports uint64
}

var (
	errMintChainBroken   = errField("forward/reverse mint chaining invariant violated")
	errAmountChainBroken = errField("forward.out_amount != reverse.in_amount")
)

type errField string

func (e errField) Error() string { return string(e) }

// CycleDeadline is a shared cancellation token for one opportunity
// cycle.
type CycleDeadline struct {
	deadline time.Time
}

func NewCycleDeadline(d time.Duration) CycleDeadline {
	return CycleDeadline{deadline: time.Now().Add(d)}
}

func (c CycleDeadline) Expired() bool {
	return !c.deadline.IsZero() && time.Now().After(c.deadline)
}

func (c CycleDeadline) Remaining() time.Duration {
	return time.Until(c.deadline)
}

func (c CycleDeadline) Time() time.Time { return c.deadline }
