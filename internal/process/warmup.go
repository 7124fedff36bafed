package process

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultWarmup is the fixed delay applied after spawn when nothing else is configured.
const DefaultWarmup = 2000 * time.Millisecond

// ErrExitedDuringWarmup is returned by probing strategies when the child dies
// before becoming ready.
var ErrExitedDuringWarmup = errors.New("process exited during warm-up")

// Warmup decides when a freshly spawned child may be reported as started.
type Warmup interface {
	Wait(ctx context.Context, c Child) error
	String() string
}

// FixedDelay waits a constant duration. The server exposes no readiness
// signal, so this does not prove the server is accepting connections.
type FixedDelay time.Duration

func (d FixedDelay) Wait(ctx context.Context, _ Child) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d FixedDelay) String() string { return "fixed(" + time.Duration(d).String() + ")" }

// TCPProbe polls a TCP connect to Addr until it succeeds.
type TCPProbe struct {
	Addr     string
	Interval time.Duration
	Timeout  time.Duration

	// Dial defaults to net.Dialer.DialContext.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func (p TCPProbe) Wait(ctx context.Context, c Child) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dial := p.Dial
	if dial == nil {
		d := &net.Dialer{}
		dial = d.DialContext
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		if c != nil && c.Exited() {
			return ErrExitedDuringWarmup
		}
		attemptCtx, attemptCancel := context.WithTimeout(ctx, interval)
		conn, err := dial(attemptCtx, "tcp", p.Addr)
		attemptCancel()
		if err == nil {
			_ = conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("tcp probe %s: %w", p.Addr, ctx.Err())
		case <-tick.C:
		}
	}
}

func (p TCPProbe) String() string { return "tcp(" + p.Addr + ")" }
