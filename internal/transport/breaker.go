package transport

import (
	"context"
	"net"

	"cardrelay/internal/retry"
)

// BreakerDialer guards another dialer with a circuit breaker so that a
// reader which keeps refusing connections is left alone for a while
// instead of being dialed on every retry.
type BreakerDialer struct {
	Dialer  Dialer
	Breaker *retry.CircuitBreaker
}

// NewBreakerDialer wraps d.  A nil cfg uses the breaker defaults.
func NewBreakerDialer(d Dialer, cfg *retry.CircuitBreakerConfig) *BreakerDialer {
	return &BreakerDialer{Dialer: d, Breaker: retry.NewCircuitBreaker(cfg)}
}

// Dial forwards to the wrapped dialer unless the circuit is open, in
// which case it fails with an error matching errors.ErrCircuitOpen.
func (b *BreakerDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	var conn net.Conn
	err := b.Breaker.Execute(func() error {
		c, err := b.Dialer.Dial(ctx, network, address)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	return conn, err
}

// Close closes the wrapped dialer.
func (b *BreakerDialer) Close() error { return b.Dialer.Close() }
