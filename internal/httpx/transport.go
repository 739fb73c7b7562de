// Package httpx provides the shared HTTP transport used by the
// aggregator clients, the lander stack, and the egress pool's dialer:
// a single *http.Client per process, tuned for a latency-sensitive
// racing engine rather than general-purpose throughput.
package httpx

import (
	"context"
	"net"
	"net/http"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// DialerConfig controls the low-latency socket options set on every
// egress connection this engine opens.
type DialerConfig struct {
	// LocalAddr pins outbound connections to a specific egress IP,
	// set per-request by the caller that holds an IP lease.
	LocalAddr net.Addr
	// TCPNoDelay disables Nagle's algorithm, trading a few bytes of
	// framing overhead for lower tail latency on small quote/submit
	// payloads.
	TCPNoDelay bool
}

// NewClient builds an *http.Client bound to LocalAddr (when set) with
// TCP_NODELAY applied via a Control callback.
func NewClient(cfg DialerConfig, timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		LocalAddr: cfg.LocalAddr,
		Control: func(network, address string, c syscall.RawConn) error {
			if !cfg.TCPNoDelay {
				return nil
			}
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     60 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{Transport: transport, Timeout: timeout}
}

// ClientForIP returns a client whose egress socket is bound to ip,
// used once a caller holds an IP lease for that address.
func ClientForIP(ip net.IP, timeout time.Duration) *http.Client {
	var local net.Addr
	if ip != nil && !ip.IsUnspecified() {
		local = &net.TCPAddr{IP: ip}
	}
	return NewClient(DialerConfig{LocalAddr: local, TCPNoDelay: true}, timeout)
}

// WithDeadline derives a context bounded by both the caller's ctx and
// an absolute deadline (a cycle's CycleDeadline), whichever is sooner.
func WithDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}
