// Package network implements the egress IP pool: slot discovery,
// round-robin lease allocation, per-slot concurrency caps, and
// outcome-driven cooldown.
package network

import (
	"net"
	"sync/atomic"
)

// SlotKind distinguishes a rotating ephemeral address from a
// shared, long-lived one (e.g. a sticky staked connection).
type SlotKind int

const (
	SlotEphemeral SlotKind = iota
	SlotLongLived
)

// SlotState is the slot's coarse lifecycle state, exposed for metrics.
type SlotState int32

const (
	StateIdle SlotState = iota
	StateBusy
	StateCoolingDown
	StateLongLived
)

// SlotStats accumulates per-slot outcome counters.
type SlotStats struct {
	totalRequests atomic.Uint64
	rateLimited   atomic.Uint64
	timeouts      atomic.Uint64
	networkErrors atomic.Uint64
}

func (s *SlotStats) recordRequest()      { s.totalRequests.Add(1) }
func (s *SlotStats) recordRateLimited()  { s.rateLimited.Add(1) }
func (s *SlotStats) recordTimeout()      { s.timeouts.Add(1) }
func (s *SlotStats) recordNetworkError() { s.networkErrors.Add(1) }

// StatsSnapshot is a point-in-time copy of a slot's counters.
type StatsSnapshot struct {
	TotalRequests uint64
	RateLimited   uint64
	Timeouts      uint64
	NetworkErrors uint64
}

func (s *SlotStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TotalRequests: s.totalRequests.Load(),
		RateLimited:   s.rateLimited.Load(),
		Timeouts:      s.timeouts.Load(),
		NetworkErrors: s.networkErrors.Load(),
	}
}

// Slot is one egress IP address and its inflight accounting.
type Slot struct {
	ip       net.IP
	kind     SlotKind
	state    atomic.Int32
	inflight atomic.Int64
	stats    SlotStats
}

func NewSlot(ip net.IP, kind SlotKind) *Slot {
	s := &Slot{ip: ip, kind: kind}
	if kind == SlotLongLived {
		s.state.Store(int32(StateLongLived))
	} else {
		s.state.Store(int32(StateIdle))
	}
	return s
}

func (s *Slot) IP() net.IP      { return s.ip }
func (s *Slot) Kind() SlotKind  { return s.kind }
func (s *Slot) State() SlotState { return SlotState(s.state.Load()) }
func (s *Slot) setState(st SlotState) { s.state.Store(int32(st)) }
func (s *Slot) Inflight() int64 { return s.inflight.Load() }
func (s *Slot) Stats() *SlotStats { return &s.stats }

func (s *Slot) acquire() {
	s.inflight.Add(1)
	if s.kind == SlotEphemeral {
		s.setState(StateBusy)
	}
}

func (s *Slot) release() {
	remaining := s.inflight.Add(-1)
	if remaining == 0 && s.kind == SlotEphemeral {
		s.setState(StateIdle)
	}
}

func (s *Slot) KindLabel() string {
	if s.kind == SlotEphemeral {
		return "ephemeral"
	}
	return "long_lived"
}
