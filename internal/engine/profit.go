package engine

import (
	"math/rand"
)

// TipMode selects how TipCalculator sizes a tip; the two modes are
// mutually exclusive.
type TipMode int

const (
	TipModeStatic TipMode = iota
	TipModeRandomPercentage
)

// TipCalculator sizes a tip as a clamped fraction of profit.
type TipCalculator struct {
	Mode               TipMode
	StaticRatio        float64
	RandomRatioChoices []float64
	MaxTipLamports     uint64
	rng                *rand.Rand
}

func NewTipCalculator(mode TipMode, staticRatio float64, randomChoices []float64, maxTip uint64) *TipCalculator {
	return &TipCalculator{
		Mode:               mode,
		StaticRatio:        clampRatio(staticRatio),
		RandomRatioChoices: randomChoices,
		MaxTipLamports:     maxTip,
		rng:                rand.New(rand.NewSource(1)),
	}
}

func clampRatio(r float64) float64 {
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Calculate returns tip = clamp(profit * ratio, 0, max_tip).
func (t *TipCalculator) Calculate(profitLamports uint64) uint64 {
	ratio := t.StaticRatio
	if t.Mode == TipModeRandomPercentage && len(t.RandomRatioChoices) > 0 {
		idx := t.rng.Intn(len(t.RandomRatioChoices))
		ratio = clampRatio(t.RandomRatioChoices[idx])
	}
	tip := uint64(float64(profitLamports) * ratio)
	if tip > profitLamports {
		tip = profitLamports
	}
	if tip > t.MaxTipLamports {
		tip = t.MaxTipLamports
	}
	return tip
}

// ProfitEvaluator applies the profit threshold gate and produces a
// SwapOpportunity.
type ProfitEvaluator struct {
	ThresholdLamports uint64
	Tip               *TipCalculator
}

func NewProfitEvaluator(threshold uint64, tip *TipCalculator) *ProfitEvaluator {
	return &ProfitEvaluator{ThresholdLamports: threshold, Tip: tip}
}

// Evaluate returns (opportunity, true) iff the quotes compose and
// profit meets the threshold.
func (e *ProfitEvaluator) Evaluate(amountIn uint64, dq DoubleQuote, pair TradePair) (SwapOpportunity, bool, error) {
	if err := dq.Validate(); err != nil {
		return SwapOpportunity{}, false, err
	}
	profit := saturatingSub(dq.Reverse.OutAmount, amountIn)
	if profit < e.ThresholdLamports {
		return SwapOpportunity{}, false, nil
	}
	tip := e.Tip.Calculate(profit)
	merged, err := mergeQuotes(dq, amountIn, tip)
	if err != nil {
		return SwapOpportunity{}, false, err
	}
	return SwapOpportunity{
		Pair:           pair,
		AmountIn:       amountIn,
		ProfitLamports: profit,
		TipLamports:    tip,
		MergedQuote:    merged,
	}, true, nil
}

// mergeQuotes rewrites the forward payload to describe the round trip:
// output_mint/out_amount/slot/time replaced, route plans concatenated.
// Merging across aggregator kinds is forbidden (already ruled out by
// DoubleQuote.Validate, but checked again here since mergeQuotes may be
// called directly by other callers).
func mergeQuotes(dq DoubleQuote, amountIn, tip uint64) (MergedQuote, error) {
	if dq.Forward.Kind != dq.Reverse.Kind {
		return MergedQuote{}, NewError(KindAggregatorDecode, "engine.mergeQuotes", ErrCrossAggregatorMerge)
	}
	contextSlot := dq.Forward.ContextSlot
	if dq.Reverse.ContextSlot > contextSlot {
		contextSlot = dq.Reverse.ContextSlot
	}
	timeTaken := dq.Forward.TimeTakenMs
	if dq.Reverse.TimeTakenMs > timeTaken {
		timeTaken = dq.Reverse.TimeTakenMs
	}
	return MergedQuote{
		Kind:           dq.Forward.Kind,
		InputMint:      dq.Forward.InputMint,
		OutputMint:     dq.Reverse.OutputMint,
		InAmount:       dq.Forward.InAmount,
		OutAmount:      saturatingAdd(amountIn, tip),
		ContextSlot:    contextSlot,
		TimeTakenMs:    timeTaken,
		PriceImpactPct: 0,
		RoutePlanLen:   dq.Forward.RoutePlanLen + dq.Reverse.RoutePlanLen,
		ForwardRaw:     dq.Forward.Raw,
		ReverseRaw:     dq.Reverse.Raw,
	}, nil
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}
