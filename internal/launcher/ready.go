package launcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	DefaultReadyTimeout = 30 * time.Second
	DefaultPollInterval = 250 * time.Millisecond
)

var ErrNotReady = errors.New("port did not accept connections in time")

// WaitForPort dials address every interval until a TCP connection succeeds,
// timeout elapses or ctx is cancelled.
func WaitForPort(ctx context.Context, address string, timeout, interval time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	dialer := net.Dialer{Timeout: interval}
	for {
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			return nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s after %s", ErrNotReady, address, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
