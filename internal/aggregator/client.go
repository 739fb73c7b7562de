// Package aggregator implements the per-aggregator wire clients,
// normalised behind one interface: each client speaks its service's
// quote/build protocol and returns the engine's common quote and
// build-artifact shapes.
package aggregator

import (
	"context"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/solana"
)

// SwapMode and Knobs are defined in package engine (QuoteKnobs) rather
// than here: the quote scheduler needs to call Quote on any aggregator
// client without importing this package back, so the knobs type they
// share has to live on the engine side of that boundary. Aliased here
// so call sites keep reading as "aggregator.Knobs"/"aggregator.SwapMode*".
type SwapMode = engine.SwapMode
type Knobs = engine.QuoteKnobs

const (
	SwapModeExactIn  = engine.SwapModeExactIn
	SwapModeExactOut = engine.SwapModeExactOut
)

// Client is the wire-agnostic aggregator contract: quote and build,
// each constrained to the recognised knobs and typed error kinds
// (engine.Kind). It structurally satisfies engine.AggregatorQuoter,
// which the scheduler depends on instead of this interface, to keep
// engine free of an import on aggregator.
type Client interface {
	Kind() engine.AggregatorKind
	Quote(ctx context.Context, pair engine.TradePair, amount uint64, direction engine.Direction, knobs Knobs) (engine.QuoteResult, error)
	Build(ctx context.Context, merged engine.MergedQuote, user solana.Pubkey) (engine.BuildArtifact, error)
}

// RetryConfig bounds the exponential-backoff transport-error retry
// budget. Body deserialisation errors are never retried (wrapped in
// backoff.Permanent at the call site).
type RetryConfig struct {
	MaxElapsedTime time.Duration
	InitialInterval time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxElapsedTime: 3 * time.Second, InitialInterval: 100 * time.Millisecond}
}

func (r RetryConfig) backoffPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxElapsedTime = r.MaxElapsedTime
	return b
}

// doWithRetry runs op under the configured exponential-backoff policy.
// op must wrap non-retryable failures (HTTP 4xx other than 429, body
// decode errors) in backoff.Permanent so they short-circuit the retry
// loop.
func doWithRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	return backoff.Retry(op, backoff.WithContext(cfg.backoffPolicy(), ctx))
}

// classifyStatus maps an HTTP status code to an engine error kind:
// 429/503 are RateLimited (retryable and surfaced for lease-outcome
// accounting), other 5xx are network failures, and remaining non-2xx
// are permanent for this call.
func classifyStatus(op string, status int) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return engine.NewError(engine.KindAggregatorRateLimited, op, httpStatusError(status))
	case status >= 500:
		return engine.NewError(engine.KindAggregatorNetwork, op, httpStatusError(status))
	default:
		return backoff.Permanent(engine.NewError(engine.KindAggregatorDecode, op, httpStatusError(status)))
	}
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return "unexpected http status " + http.StatusText(int(e))
}
