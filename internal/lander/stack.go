package lander

import (
	"context"

	"github.com/shai-labs/voyager/internal/engine"
	"github.com/shai-labs/voyager/internal/telemetry"
)

// Stack tries every configured lander in order across max_retries+1
// passes; the first success wins, and submission aborts entirely if
// the deadline expires before an attempt starts.
type Stack struct {
	Landers    []Lander
	MaxRetries int
	Sink       telemetry.Sink
}

func NewStack(landers []Lander, maxRetries int, sink telemetry.Sink) *Stack {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Stack{Landers: landers, MaxRetries: maxRetries, Sink: sink}
}

// Submit drives one variant through the stack. Lander attempts within
// a pass are strictly sequential, producing deterministic attempt
// indices for telemetry.
func (s *Stack) Submit(ctx context.Context, variant engine.TxVariant, deadline engine.CycleDeadline) (engine.LanderReceipt, error) {
	const op = "lander.Stack.Submit"
	if len(s.Landers) == 0 {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderFatal, op, errString("no lander configured"))
	}

	totalPasses := s.MaxRetries + 1
	var lastErr error

	for pass := 0; pass < totalPasses; pass++ {
		for _, l := range s.Landers {
			if deadline.Expired() {
				err := engine.NewError(engine.KindLanderFatal, op, errDeadlineExpired)
				s.Sink.AttemptFailed(l.Name(), "", uint32(variant.ID), err)
				return engine.LanderReceipt{}, err
			}

			s.Sink.AttemptStarted(l.Name(), "", uint32(variant.ID), pass)
			receipt, err := l.Submit(ctx, variant, deadline)
			if err == nil {
				s.Sink.AttemptSucceeded(l.Name(), receipt.Endpoint, uint32(variant.ID), receipt.Signature)
				return receipt, nil
			}
			s.Sink.AttemptFailed(l.Name(), "", uint32(variant.ID), err)
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = engine.NewError(engine.KindLanderFatal, op, errString("all landers failed to submit transaction"))
	}
	return engine.LanderReceipt{}, lastErr
}

// SubmitPlan tries each variant in the plan in order against the
// stack, returning the first receipt any variant's attempt produces.
// AllAtOnce plans carry exactly one variant; OneByOne plans exhaust
// variant 0 first before moving to variant 1.
func (s *Stack) SubmitPlan(ctx context.Context, plan engine.DispatchPlan, deadline engine.CycleDeadline) (engine.LanderReceipt, error) {
	const op = "lander.Stack.SubmitPlan"
	if len(plan.Variants) == 0 {
		return engine.LanderReceipt{}, engine.NewError(engine.KindLanderFatal, op, errString("empty dispatch plan"))
	}
	var lastErr error
	for _, v := range plan.Variants {
		if deadline.Expired() {
			return engine.LanderReceipt{}, engine.NewError(engine.KindLanderFatal, op, errDeadlineExpired)
		}
		receipt, err := s.Submit(ctx, v, deadline)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
	}
	return engine.LanderReceipt{}, lastErr
}
