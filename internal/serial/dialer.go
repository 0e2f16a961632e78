// Package serial manages the TCP connection that carries the device's
// serial transport (e.g. QEMU's UART exposed on a local port).
package serial

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// logEvery limits connection-attempt logging: the first attempt and every
// logEvery-th attempt thereafter, so an absent device does not flood logs.
const logEvery = 10

// Dialer connects to the serial transport endpoint with retry.
//
// MaxAttempts == 0 retries indefinitely; the emulated device restarts
// independently of the bridge, so the steady-state reconnect path must
// never give up. Bounded values are for one-shot startup probes only.
type Dialer struct {
	Host          string
	Port          int
	RetryInterval time.Duration
	MaxAttempts   int
}

// Addr returns the endpoint in host:port form.
func (d *Dialer) Addr() string {
	return net.JoinHostPort(d.Host, fmt.Sprint(d.Port))
}

// Dial connects to the endpoint, retrying on refusal until it succeeds,
// the attempt budget is exhausted, or ctx is cancelled. The socket is left
// in its default blocking configuration with no deadlines; the bridge only
// reads after readiness is signalled.
func (d *Dialer) Dial(ctx context.Context) (net.Conn, error) {
	addr := d.Addr()
	interval := d.RetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	slog.Info("connecting to serial transport", "addr", addr)

	for attempt := 1; ; attempt++ {
		conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		if err == nil {
			slog.Info("serial transport connected", "addr", addr, "attempts", attempt)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt == 1 || attempt%logEvery == 0 {
			slog.Warn("serial connect failed, retrying",
				"addr", addr, "attempt", attempt, "error", err)
		}

		if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
			return nil, fmt.Errorf("connecting to %s: giving up after %d attempts: %w",
				addr, attempt, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
