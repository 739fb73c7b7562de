package engine

import "github.com/shai-labs/voyager/internal/solana"

// DispatchStrategy selects how many submission candidates one
// opportunity yields: AllAtOnce submits a single transaction, OneByOne
// produces variant_budget tip-staggered clones for the lander stack to
// try in sequence.
type DispatchStrategy int

const (
	DispatchAllAtOnce DispatchStrategy = iota
	DispatchOneByOne
)

func (s DispatchStrategy) String() string {
	if s == DispatchOneByOne {
		return "one_by_one"
	}
	return "all_at_once"
}

// ParseDispatchStrategy accepts both CamelCase and snake/kebab-case
// spellings.
func ParseDispatchStrategy(s string) (DispatchStrategy, bool) {
	switch s {
	case "AllAtOnce", "all_at_once", "all-at-once", "allatonce":
		return DispatchAllAtOnce, true
	case "OneByOne", "one_by_one", "one-by-one", "onebyone":
		return DispatchOneByOne, true
	default:
		return DispatchAllAtOnce, false
	}
}

// VariantID identifies one TxVariant within a DispatchPlan.
type VariantID uint32

// TipOverride is a per-variant tip amount/recipient the lander stack
// may use instead of the opportunity's base tip.
type TipOverride struct {
	Lamports  uint64
	Recipient *solana.Pubkey
}

// TxVariant is one candidate submission: variants share signature and
// blockhash; differentiation happens in the lander.
type TxVariant struct {
	ID              VariantID
	Transaction     solana.VersionedTransaction
	Blockhash       [32]byte
	Slot            uint64
	Signer          solana.Signer
	BaseTipLamports uint64
	TipOverride     *TipOverride
	ResolvedLookupTables []solana.LookupTable
}

// TipLamports returns the override amount if present, else the base
// tip shared with the other variants.
func (v TxVariant) TipLamports() uint64 {
	if v.TipOverride != nil {
		return v.TipOverride.Lamports
	}
	return v.BaseTipLamports
}

// DispatchPlan is produced by the variant planner: AllAtOnce yields
// exactly one variant; OneByOne yields 1..=variant_budget, ids 0..N-1.
type DispatchPlan struct {
	Strategy DispatchStrategy
	Variants []TxVariant
}

func (p DispatchPlan) PrimaryVariant() (TxVariant, bool) {
	if len(p.Variants) == 0 {
		return TxVariant{}, false
	}
	return p.Variants[0], true
}

// TxVariantPlanner expands one prepared transaction into a dispatch
// plan.
type TxVariantPlanner struct {
	// TipStep is the per-variant tip stagger amount: variant i requests
	// base_tip + i*TipStep. Zero disables staggering and every OneByOne
	// variant shares the base tip.
	TipStep uint64
}

func NewTxVariantPlanner(tipStep uint64) *TxVariantPlanner {
	return &TxVariantPlanner{TipStep: tipStep}
}

// Plan returns [prepared] for AllAtOnce, or up to variantBudget
// numbered clones for OneByOne.
func (p *TxVariantPlanner) Plan(strategy DispatchStrategy, prepared PreparedTransaction, variantBudget int) DispatchPlan {
	count := 1
	if strategy == DispatchOneByOne {
		if variantBudget < 1 {
			variantBudget = 1
		}
		count = variantBudget
	}
	variants := make([]TxVariant, 0, count)
	for i := 0; i < count; i++ {
		v := TxVariant{
			ID:                   VariantID(i),
			Transaction:          prepared.Transaction,
			Blockhash:            prepared.Blockhash,
			Slot:                 prepared.Slot,
			Signer:               prepared.Signer,
			BaseTipLamports:      prepared.TipLamports,
			ResolvedLookupTables: prepared.ResolvedLookupTables,
		}
		if p.TipStep > 0 && i > 0 {
			v.TipOverride = &TipOverride{Lamports: saturatingAdd(prepared.TipLamports, uint64(i)*p.TipStep)}
		}
		variants = append(variants, v)
	}
	return DispatchPlan{Strategy: strategy, Variants: variants}
}
