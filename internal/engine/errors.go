// Package engine implements the opportunity pipeline: quote
// scheduling, profit evaluation, instruction assembly, transaction
// building, and variant planning.
package engine

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy surfaced by the pipeline. The
// kind, not the wrapped cause, determines disposition: retry, drop the
// aggregator for the cycle, abandon the opportunity, or abort.
type Kind string

const (
	KindInvalidConfig          Kind = "invalid_config"
	KindRpc                    Kind = "rpc"
	KindAggregatorRateLimited  Kind = "aggregator_rate_limited"
	KindAggregatorNetwork      Kind = "aggregator_network"
	KindAggregatorDecode       Kind = "aggregator_decode"
	KindUnsupportedAsset       Kind = "unsupported_asset"
	KindTransaction            Kind = "transaction"
	KindLookupTableMissing     Kind = "lookup_table_missing"
	KindLookupTableIndexOOB    Kind = "lookup_table_index_oob"
	KindLanderNetwork          Kind = "lander_network"
	KindLanderRejected         Kind = "lander_rejected"
	KindLanderFatal            Kind = "lander_fatal"
)

// Error wraps an underlying cause with the Kind that determines its
// disposition.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err (or any error it wraps, through foreign
// wrappers included) carries kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// Retryable reports whether a caller should retry the operation that
// produced err within the same cycle (Network/Rejected-class errors)
// versus abandoning the opportunity or the cycle outright.
func Retryable(err error) bool {
	return IsKind(err, KindAggregatorRateLimited) ||
		IsKind(err, KindAggregatorNetwork) ||
		IsKind(err, KindLanderNetwork) ||
		IsKind(err, KindLanderRejected)
}

// ErrCrossAggregatorMerge is returned when asked to compose quotes
// from two different aggregator kinds. The two raw payloads use
// incompatible wire formats, so merging them can never produce a valid
// build request; a sentinel error lets the scheduler drop the pair
// instead of crashing the process.
var ErrCrossAggregatorMerge = fmt.Errorf("engine: cannot merge quotes from different aggregator kinds")
