package guard

import (
	"context"
	"sync"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

const (
	minMemorySlots = 1
	maxMemorySlots = 128
)

var (
	wsolMint = solana.MustPubkeyFromBase58("So11111111111111111111111111111111111111112")
	usdcMint = solana.MustPubkeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

// denomination is how a guarded mint's threshold amount is expressed.
type denomination int

const (
	denomNative denomination = iota
	denomSolEquivalent
)

type assetConfig struct {
	decimals    uint8
	denomination denomination
}

// inferAssetConfig classifies a guard mint: wSOL guards are expressed
// directly in lamports, everything else (USDC in particular) is
// converted through the SOL/USD feed.
func inferAssetConfig(mint solana.Pubkey) (assetConfig, bool) {
	switch mint {
	case wsolMint:
		return assetConfig{decimals: 9, denomination: denomNative}, true
	case usdcMint:
		return assetConfig{decimals: 6, denomination: denomSolEquivalent}, true
	default:
		return assetConfig{}, false
	}
}

// Runtime holds the guard injector's cross-cycle state: which mints
// get guarded, which Lighthouse memory-account id to use next, and the
// SOL/USD feed non-native guard thresholds are converted through.
type Runtime struct {
	Enabled bool
	Feed    *PriceFeed

	mu           sync.Mutex
	guardAssets  map[solana.Pubkey]assetConfig
	memorySlots  int
	availableIDs []uint8
	cursor       int
}

// NewRuntime builds a Runtime from the configured guard mints and
// existing memory ids. Slot count prefers the configured memory_slots,
// else the count of pre-existing ids, else a hint clamped to [1,128].
func NewRuntime(enable bool, guardMints []solana.Pubkey, existingMemoryIDs []uint8, memorySlots int, ipCapacityHint int, feed *PriceFeed) *Runtime {
	guardAssets := make(map[solana.Pubkey]assetConfig)
	for _, mint := range guardMints {
		if cfg, ok := inferAssetConfig(mint); ok {
			guardAssets[mint] = cfg
		} else {
			guardAssets[mint] = assetConfig{decimals: 9, denomination: denomNative}
		}
	}

	ids := sortDedupUint8(append([]uint8(nil), existingMemoryIDs...))

	derivedSlots := clampInt(ipCapacityHint, minMemorySlots, maxMemorySlots)
	if len(ids) > 0 {
		derivedSlots = len(ids)
	}
	slotCount := derivedSlots
	if memorySlots > 0 {
		slotCount = memorySlots
	}
	if slotCount < len(ids) {
		slotCount = len(ids)
	}
	slotCount = clampInt(slotCount, minMemorySlots, maxMemorySlots)

	return &Runtime{
		Enabled:      enable && len(guardAssets) > 0,
		Feed:         feed,
		guardAssets:  guardAssets,
		memorySlots:  slotCount,
		availableIDs: ids,
	}
}

// ShouldGuard reports whether mint is a configured guard asset.
func (r *Runtime) ShouldGuard(mint solana.Pubkey) bool {
	if !r.Enabled {
		return false
	}
	_, ok := r.guardAssets[mint]
	return ok
}

// NextMemoryID rotates round-robin through the configured
// memory-account ids so concurrent cycles use distinct memory PDAs.
func (r *Runtime) NextMemoryID() uint8 {
	if !r.Enabled {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.availableIDs) == 0 {
		r.availableIDs = append(r.availableIDs, 0)
		return 0
	}
	if len(r.availableIDs) == 1 {
		return r.availableIDs[0]
	}
	idx := r.cursor % len(r.availableIDs)
	r.cursor = (r.cursor + 1) % len(r.availableIDs)
	return r.availableIDs[idx]
}

// GuardAmountFor converts lamportsRequired into mint's native unit,
// routing non-native (SolEquivalent) mints through the price feed.
// Returns (0, false, nil) when mint is not guarded or lamportsRequired
// is zero.
func (r *Runtime) GuardAmountFor(ctx context.Context, mint solana.Pubkey, lamportsRequired uint64) (uint64, bool, error) {
	const op = "guard.Runtime.GuardAmountFor"
	if lamportsRequired == 0 || !r.ShouldGuard(mint) {
		return 0, false, nil
	}
	cfg := r.guardAssets[mint]

	switch cfg.denomination {
	case denomNative:
		return lamportsRequired, true, nil
	case denomSolEquivalent:
		if r.Feed == nil {
			return 0, false, engine.NewError(engine.KindInvalidConfig, op, errNoPriceFeed)
		}
		price, err := r.Feed.Latest(ctx)
		if err != nil {
			return 0, false, err
		}
		return ConvertLamportsToToken(lamportsRequired, cfg.decimals, price), true, nil
	default:
		return 0, false, nil
	}
}

var errNoPriceFeed = noPriceFeedErr{}

type noPriceFeedErr struct{}

func (noPriceFeedErr) Error() string {
	return "guard: sol_usd price feed not configured but a non-native guard mint was requested"
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sortDedupUint8(ids []uint8) []uint8 {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	out := ids[:0]
	var last uint8
	haveLast := false
	for _, id := range ids {
		if haveLast && id == last {
			continue
		}
		out = append(out, id)
		last = id
		haveLast = true
	}
	return out
}
