package network

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// LeaseMode selects how a lease draws on a slot: Ephemeral leases are
// capped by the per-IP semaphore and released back to Idle;
// SharedLongLived leases keep the slot pinned in the LongLived state
// across many callers.
type LeaseMode int

const (
	LeaseEphemeral LeaseMode = iota
	LeaseSharedLongLived
)

// LeaseOutcome is reported once per lease via MarkOutcome and drives
// cooldown. Dropping a lease without marking an outcome counts as
// Success and must not extend cooldown.
type LeaseOutcome int

const (
	OutcomeSuccess LeaseOutcome = iota
	OutcomeRateLimited
	OutcomeTimeout
	OutcomeNetworkError
)

// CooldownConfig is the configured backoff applied per outcome kind.
type CooldownConfig struct {
	RateLimitedStart time.Duration
	TimeoutStart     time.Duration
}

func DefaultCooldownConfig() CooldownConfig {
	return CooldownConfig{
		RateLimitedStart: 500 * time.Millisecond,
		TimeoutStart:     250 * time.Millisecond,
	}
}

var ErrNoEligibleIP = errors.New("network: no eligible ip slot")

type slotState struct {
	slot           *Slot
	sem            *semaphore.Weighted // nil for SharedLongLived-only slots
	cooldownUntil  atomic.Int64        // unix nanos; 0 means no cooldown
}

func newSlotState(slot *Slot, perIPLimit int) *slotState {
	ss := &slotState{slot: slot}
	if perIPLimit > 0 {
		ss.sem = semaphore.NewWeighted(int64(perIPLimit))
	} else if slot.Kind() == SlotEphemeral {
		ss.sem = semaphore.NewWeighted(1 << 30)
	}
	return ss
}

func (ss *slotState) cooldownDelay(now time.Time) (time.Time, bool) {
	v := ss.cooldownUntil.Load()
	if v == 0 {
		return time.Time{}, false
	}
	deadline := time.Unix(0, v)
	if deadline.After(now) {
		return deadline, true
	}
	ss.cooldownUntil.Store(0)
	return time.Time{}, false
}

func (ss *slotState) startCooldown(d time.Duration) {
	if d <= 0 {
		return
	}
	ss.cooldownUntil.Store(time.Now().Add(d).UnixNano())
	ss.slot.setState(StateCoolingDown)
}

func (ss *slotState) clearCooldown() {
	ss.cooldownUntil.Store(0)
	if ss.slot.Inflight() == 0 {
		ss.slot.setState(StateIdle)
	}
}

func (ss *slotState) tryAcquire(mode LeaseMode) (bool, error) {
	switch mode {
	case LeaseEphemeral:
		if ss.sem != nil && !ss.sem.TryAcquire(1) {
			return false, nil
		}
		ss.slot.acquire()
		return true, nil
	case LeaseSharedLongLived:
		ss.slot.acquire()
		ss.slot.setState(StateLongLived)
		return true, nil
	default:
		return false, errors.New("network: unknown lease mode")
	}
}

func (ss *slotState) onRelease(mode LeaseMode) {
	switch mode {
	case LeaseEphemeral:
		if ss.sem != nil {
			ss.sem.Release(1)
		}
		ss.slot.release()
	case LeaseSharedLongLived:
		ss.slot.release()
		if ss.slot.Inflight() == 0 {
			ss.slot.setState(StateIdle)
		}
	}
}

// Allocator hands out egress IP leases round-robin, skipping slots in
// cooldown.
type Allocator struct {
	slots      []*slotState
	rotation   atomic.Uint64
	cooldown   CooldownConfig
	leaseSeq   atomic.Uint64
}

// NewAllocator builds an allocator over the given slots. perIPLimit<=0
// falls back to an effectively-unbounded permit pool for Ephemeral
// slots.
func NewAllocator(slots []*Slot, perIPLimit int, cooldown CooldownConfig) *Allocator {
	states := make([]*slotState, 0, len(slots))
	for _, s := range slots {
		states = append(states, newSlotState(s, perIPLimit))
	}
	return &Allocator{slots: states, cooldown: cooldown}
}

func (a *Allocator) TotalSlots() int { return len(a.slots) }

// Acquire scans slots round-robin: a full pass either yields a lease
// or the earliest cooldown deadline to wait out before the next pass.
func (a *Allocator) Acquire(ctx context.Context, mode LeaseMode) (*Lease, error) {
	if len(a.slots) == 0 {
		return nil, ErrNoEligibleIP
	}
	total := len(a.slots)

	for {
		var earliest time.Time
		haveEarliest := false
		start := int(a.rotation.Add(1) - 1)
		now := time.Now()

		for offset := 0; offset < total; offset++ {
			idx := (start + offset) % total
			ss := a.slots[idx]

			if delay, cooling := ss.cooldownDelay(now); cooling {
				if !haveEarliest || delay.Before(earliest) {
					earliest = delay
					haveEarliest = true
				}
				continue
			}

			ok, err := ss.tryAcquire(mode)
			if err != nil {
				return nil, err
			}
			if ok {
				ss.slot.Stats().recordRequest()
				return newLease(a, ss, mode, a.leaseSeq.Add(1)), nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if haveEarliest {
			wait := time.Until(earliest)
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				}
			}
		}
	}
}

// AcquireExcluding returns a lease whose IP differs from except
// whenever at least two slots exist. With exactly one slot configured
// it degrades to a plain Acquire.
func (a *Allocator) AcquireExcluding(ctx context.Context, mode LeaseMode, except string) (*Lease, error) {
	if len(a.slots) < 2 || except == "" {
		return a.Acquire(ctx, mode)
	}

	for {
		lease, err := a.Acquire(ctx, mode)
		if err != nil {
			return nil, err
		}
		if lease.IP() != except {
			return lease, nil
		}
		lease.Release()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

func (a *Allocator) applyOutcome(ss *slotState, outcome LeaseOutcome) {
	switch outcome {
	case OutcomeSuccess:
		ss.clearCooldown()
	case OutcomeRateLimited:
		ss.startCooldown(a.cooldown.RateLimitedStart)
		ss.slot.Stats().recordRateLimited()
	case OutcomeTimeout:
		ss.startCooldown(a.cooldown.TimeoutStart)
		ss.slot.Stats().recordTimeout()
	case OutcomeNetworkError:
		ss.startCooldown(a.cooldown.TimeoutStart)
		ss.slot.Stats().recordNetworkError()
	}
}

// Lease is a held IP slot. MarkOutcome is idempotent: only the first
// call applies cooldown effects, whether invoked explicitly or
// implicitly via Release (which treats an unmarked lease as Success).
type Lease struct {
	allocator *Allocator
	slot      *slotState
	mode      LeaseMode
	id        uint64

	mu       sync.Mutex
	recorded bool
}

func newLease(a *Allocator, ss *slotState, mode LeaseMode, id uint64) *Lease {
	return &Lease{allocator: a, slot: ss, mode: mode, id: id}
}

func (l *Lease) ID() uint64    { return l.id }
func (l *Lease) IP() string    { return l.slot.slot.IP().String() }
func (l *Lease) Mode() LeaseMode { return l.mode }

// MarkOutcome records the lease's result exactly once.
func (l *Lease) MarkOutcome(outcome LeaseOutcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recorded {
		return
	}
	l.recorded = true
	l.allocator.applyOutcome(l.slot, outcome)
}

// Release returns the permit. If MarkOutcome was never called, the
// lease degrades to Success; a cooldown is never applied
// retroactively.
func (l *Lease) Release() {
	l.MarkOutcome(OutcomeSuccess)
	l.slot.onRelease(l.mode)
}
