package engine

import (
	"context"
	"sync"

	"github.com/shai-labs/voyager/internal/network"
	"github.com/shai-labs/voyager/internal/telemetry"
)

// AggregatorQuoter is the client surface the scheduler drives. Any
// internal/aggregator.Client satisfies this structurally; engine never
// imports that package, so the dependency only runs one way
// (aggregator → engine).
type AggregatorQuoter interface {
	Kind() AggregatorKind
	Quote(ctx context.Context, pair TradePair, amount uint64, direction Direction, knobs QuoteKnobs) (QuoteResult, error)
}

// AggregatorEntry pairs a quoter with the knobs the scheduler requests
// quotes with. Slice order doubles as the tie-break order between
// equally profitable opportunities.
type AggregatorEntry struct {
	Quoter AggregatorQuoter
	Knobs  QuoteKnobs
}

// Scheduler drives one quote cycle: it fans a (pair, amount) probe out
// across every enabled aggregator and keeps the best opportunity.
type Scheduler struct {
	Aggregators []AggregatorEntry
	Allocator   *network.Allocator
	Evaluator   *ProfitEvaluator
	Sink        telemetry.Sink
}

func NewScheduler(aggregators []AggregatorEntry, allocator *network.Allocator, evaluator *ProfitEvaluator, sink telemetry.Sink) *Scheduler {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Scheduler{Aggregators: aggregators, Allocator: allocator, Evaluator: evaluator, Sink: sink}
}

type aggregatorAttempt struct {
	opp SwapOpportunity
	ok  bool
	err error
}

// Schedule probes one (pair, amount) across every enabled aggregator
// and returns the best opportunity found. ok is false when no
// aggregator produced a profitable opportunity (including the case
// where every aggregator's quote attempt errored or was dropped).
//
// The reverse leg is quoted for the amount the forward leg actually
// returned, so within one aggregator the two legs run back-to-back
// (forward then chained reverse) while every aggregator's two-leg
// attempt races concurrently with every other's.
func (s *Scheduler) Schedule(ctx context.Context, pair TradePair, amount uint64, deadline CycleDeadline) (SwapOpportunity, bool, error) {
	const op = "engine.Scheduler.Schedule"
	if len(s.Aggregators) == 0 {
		return SwapOpportunity{}, false, nil
	}

	cycleCtx := ctx
	var cancel context.CancelFunc
	if t := deadline.Time(); !t.IsZero() {
		cycleCtx, cancel = context.WithDeadline(ctx, t)
		defer cancel()
	}

	attempts := make([]aggregatorAttempt, len(s.Aggregators))
	routeLens := make([]int, len(s.Aggregators))

	var wg sync.WaitGroup
	for i, entry := range s.Aggregators {
		wg.Add(1)
		go func(i int, entry AggregatorEntry) {
			defer wg.Done()
			opp, ok, err := s.runAggregator(cycleCtx, entry, pair, amount)
			attempts[i] = aggregatorAttempt{opp: opp, ok: ok, err: err}
			if ok {
				routeLens[i] = opp.MergedQuote.RoutePlanLen
			}
		}(i, entry)
	}
	wg.Wait()

	if cycleCtx.Err() != nil {
		// Deadline expired: partial results are ignored.
		return SwapOpportunity{}, false, nil
	}

	var (
		best    SwapOpportunity
		haveBest bool
		bestNet  uint64
		bestRoute int
	)
	for i, a := range attempts {
		if a.err != nil {
			s.Sink.ErrorKind(errKindOf(a.err), op, a.err)
			continue
		}
		if !a.ok {
			continue
		}
		net := saturatingSub(a.opp.ProfitLamports, a.opp.TipLamports)
		if !haveBest || net > bestNet || (net == bestNet && routeLens[i] < bestRoute) {
			best = a.opp
			bestNet = net
			bestRoute = routeLens[i]
			haveBest = true
		}
	}
	if !haveBest {
		return SwapOpportunity{}, false, nil
	}
	s.Sink.OpportunityFound(pairLabel(pair), best.ProfitLamports, best.TipLamports, string(best.MergedQuote.Kind))
	return best, true, nil
}

// runAggregator drives one aggregator's two-leg attempt: forward
// quote, chained reverse quote, composability validation, then profit
// evaluation. A non-retryable quote error drops the aggregator for
// this cycle (ok=false, err=nil) rather than failing the whole
// schedule call.
func (s *Scheduler) runAggregator(ctx context.Context, entry AggregatorEntry, pair TradePair, amount uint64) (SwapOpportunity, bool, error) {
	const op = "engine.Scheduler.runAggregator"

	fLease, err := s.Allocator.Acquire(ctx, network.LeaseEphemeral)
	if err != nil {
		return SwapOpportunity{}, false, NewError(KindRpc, op, err)
	}
	forward, ferr := entry.Quoter.Quote(ctx, pair, amount, DirectionForward, entry.Knobs)
	fLease.MarkOutcome(outcomeForErr(ferr))
	forwardIP := fLease.IP()
	fLease.Release()
	if ferr != nil {
		// Both retryable (rate-limited/network) and permanent (decode)
		// kinds just drop this aggregator for the cycle here: retry
		// budget is already exhausted by the client's own backoff
		// policy by the time Quote returns an error at all.
		return SwapOpportunity{}, false, nil
	}

	reversePair := TradePair{InputMint: pair.OutputMint, OutputMint: pair.InputMint}
	rLease, err := s.Allocator.AcquireExcluding(ctx, network.LeaseEphemeral, forwardIP)
	if err != nil {
		return SwapOpportunity{}, false, NewError(KindRpc, op, err)
	}
	reverse, rerr := entry.Quoter.Quote(ctx, reversePair, forward.OutAmount, DirectionReverse, entry.Knobs)
	rLease.MarkOutcome(outcomeForErr(rerr))
	rLease.Release()
	if rerr != nil {
		return SwapOpportunity{}, false, nil
	}

	dq := DoubleQuote{Forward: forward, Reverse: reverse}
	opp, ok, err := s.Evaluator.Evaluate(amount, dq, pair)
	if err != nil {
		if IsKind(err, KindAggregatorDecode) {
			// Legs don't compose: drop this aggregator, don't fail the cycle.
			return SwapOpportunity{}, false, nil
		}
		return SwapOpportunity{}, false, err
	}
	return opp, ok, nil
}

func outcomeForErr(err error) network.LeaseOutcome {
	if err == nil {
		return network.OutcomeSuccess
	}
	switch {
	case IsKind(err, KindAggregatorRateLimited):
		return network.OutcomeRateLimited
	case IsKind(err, KindAggregatorNetwork):
		return network.OutcomeNetworkError
	default:
		return network.OutcomeNetworkError
	}
}

func errKindOf(err error) string {
	if e, ok := err.(*Error); ok {
		return string(e.Kind)
	}
	return "unknown"
}

func pairLabel(pair TradePair) string {
	return pair.InputMint.String() + "->" + pair.OutputMint.String()
}
