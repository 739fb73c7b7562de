// Package computebudget canonicalises a bundle's compute-budget lane
// to at most one SetComputeUnitLimit and one SetComputeUnitPrice while
// preserving any other compute-budget instructions in their original
// relative order.
package computebudget

import "github.com/shai-labs/voyager/internal/solana"

// Config is the configured compute-unit limit/price pair. A zero value
// suppresses emission of that instruction.
type Config struct {
	UnitLimit              uint32
	UnitPriceMicroLamports uint64
}

// Normalise strips any existing limit/price instructions and emits the
// configured pair ahead of the preserved extras.
func Normalise(cfg Config, lane []solana.Instruction) []solana.Instruction {
	preserved := make([]solana.Instruction, 0, len(lane))
	for _, ix := range lane {
		if solana.IsSetComputeUnitLimit(ix) || solana.IsSetComputeUnitPrice(ix) {
			continue
		}
		preserved = append(preserved, ix)
	}

	out := make([]solana.Instruction, 0, len(preserved)+2)
	if cfg.UnitPriceMicroLamports > 0 {
		out = append(out, solana.NewSetComputeUnitPrice(cfg.UnitPriceMicroLamports))
	}
	if cfg.UnitLimit > 0 {
		out = append(out, solana.NewSetComputeUnitLimit(cfg.UnitLimit))
	}
	out = append(out, preserved...)
	return out
}
