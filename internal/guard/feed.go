package guard

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shai-labs/voyager/internal/engine"
)

const LamportsPerSol uint64 = 1_000_000_000

// solUsdPrice is a Pyth-shaped price quote: price * 10^expo is the
// actual USD value.
type solUsdPrice struct {
	price int64
	expo  int32
}

// pythPriceResponse decodes the subset of Hermes's /v2/updates/price/latest
// response shape the guard needs.
type pythPriceResponse struct {
	Parsed []struct {
		Price *struct {
			Price string `json:"price"`
			Expo  int32  `json:"expo"`
		} `json:"price"`
	} `json:"parsed"`
}

// PriceFeed is the stable-coin guard's SOL/USD price-feed cache. It
// polls URL at most once per Refresh interval and exposes a lock-free
// read path via an atomic snapshot, rather than the generic
// cache.Backend, because there is exactly one key (the SOL/USD price)
// and no eviction policy is needed.
type PriceFeed struct {
	URL     string
	Refresh time.Duration
	Client  *http.Client

	snapshot atomic.Pointer[priceSnapshot]
}

type priceSnapshot struct {
	price     solUsdPrice
	fetchedAt time.Time
}

func NewPriceFeed(url string, refresh time.Duration, client *http.Client) *PriceFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &PriceFeed{URL: url, Refresh: refresh, Client: client}
}

// Latest returns the cached price, refreshing it first if it is stale
// or has never been fetched. A transient fetch error falls back to the
// last good price.
func (f *PriceFeed) Latest(ctx context.Context) (solUsdPrice, error) {
	const op = "guard.PriceFeed.Latest"

	snap := f.snapshot.Load()
	if snap != nil && time.Since(snap.fetchedAt) < f.Refresh {
		return snap.price, nil
	}

	price, err := f.fetch(ctx)
	if err != nil {
		if snap != nil {
			return snap.price, nil
		}
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, err)
	}

	f.snapshot.Store(&priceSnapshot{price: price, fetchedAt: time.Now()})
	return price, nil
}

func (f *PriceFeed) fetch(ctx context.Context) (solUsdPrice, error) {
	const op = "guard.PriceFeed.fetch"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, statusErr(resp.StatusCode))
	}

	var body pythPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, err)
	}
	if len(body.Parsed) == 0 || body.Parsed[0].Price == nil {
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, errMissingPrice)
	}

	raw := body.Parsed[0].Price
	priceInt, err := strconv.ParseInt(raw.Price, 10, 64)
	if err != nil {
		return solUsdPrice{}, engine.NewError(engine.KindInvalidConfig, op, err)
	}

	return solUsdPrice{price: priceInt, expo: raw.Expo}, nil
}

// ConvertLamportsToToken converts a lamport amount into the equivalent
// quantity of a tokenDecimals-precision, USD-priced token (e.g. USDC),
// rounding any nonzero remainder up so the guard never under-asserts.
func ConvertLamportsToToken(lamports uint64, tokenDecimals uint8, price solUsdPrice) uint64 {
	if lamports == 0 {
		return 0
	}

	numerator := new(big.Int).Mul(big.NewInt(int64(lamports)), big.NewInt(price.price))
	denominator := big.NewInt(int64(LamportsPerSol))
	decimalsFactor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(tokenDecimals)), nil)
	numerator.Mul(numerator, decimalsFactor)

	if price.expo >= 0 {
		numerator.Mul(numerator, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(price.expo)), nil))
	} else {
		denominator.Mul(denominator, new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(-price.expo)), nil))
	}

	if numerator.Sign() <= 0 {
		return 0
	}

	quotient, remainder := new(big.Int).QuoRem(numerator, denominator, new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	if quotient.Sign() < 0 {
		return 0
	}

	maxU64 := new(big.Int).SetUint64(^uint64(0))
	if quotient.Cmp(maxU64) > 0 {
		return ^uint64(0)
	}
	return quotient.Uint64()
}

type statusErr int

func (e statusErr) Error() string { return "guard: price feed returned status " + strconv.Itoa(int(e)) }

var errMissingPrice = missingPriceErr{}

type missingPriceErr struct{}

func (missingPriceErr) Error() string { return "guard: price feed response missing parsed price" }
