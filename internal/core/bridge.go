package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"cardrelay/internal/capability"
	ncerr "cardrelay/internal/errors"
	"cardrelay/internal/metrics"
	"cardrelay/internal/retry"
	"cardrelay/internal/session"
	"cardrelay/internal/transport"
	"cardrelay/middleman"
	"cardrelay/util"
)

// Bridge joins a card connection to the reader.  For every card it
// dials vpcd (retrying with backoff while vpcd is down), builds a
// session around the pair and runs the capability over it.
type Bridge struct {
	Reader     transport.Dialer
	ReaderAddr string
	Backoff    *retry.Backoff
	Chain      middleman.Middleman
	Capability capability.Capability
	Logger     *util.Logger
	Metrics    *metrics.Collector
}

// Serve relays between card and the reader until either side is done.
// card is closed when Serve returns.
func (b *Bridge) Serve(ctx context.Context, card net.Conn) error {
	defer card.Close()

	reader, err := b.dialReader(ctx)
	if err != nil {
		if ctx.Err() == nil {
			b.Logger.Error("%v", err)
		}
		return err
	}

	sess := session.New(reader, card, b.Chain, b.Logger, b.Metrics)
	defer sess.Close()

	sess.Logger.Info("session started: card %s, reader %s", card.RemoteAddr(), reader.RemoteAddr())
	err = b.Capability.Handle(ctx, sess)
	switch {
	case err == nil:
		sess.Logger.Info("session ended")
	case errors.Is(err, context.Canceled):
		sess.Logger.Verbose("session cancelled")
	default:
		sess.Logger.Error("session failed: %v", err)
	}
	return err
}

func (b *Bridge) dialReader(ctx context.Context) (net.Conn, error) {
	backoff := b.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}
	bo := *backoff
	bo.Retryable = func(err error) bool {
		return ncerr.Is(err, ncerr.ErrCircuitOpen) || ncerr.IsRetryable(err)
	}
	retried := false
	bo.OnRetry = func(attempt int, err error, wait time.Duration) {
		retried = true
		b.Logger.Info("reader %s unavailable (attempt %d): %v; retrying in %v",
			b.ReaderAddr, attempt, err, wait.Truncate(time.Millisecond))
	}

	var conn net.Conn
	err := bo.Do(ctx, func(int) error {
		c, err := b.Reader.Dial(ctx, "tcp", b.ReaderAddr)
		if err != nil {
			return ncerr.Wrap("dial", b.ReaderAddr, err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}
	if retried {
		b.Metrics.ReaderReconnect()
	}
	b.Logger.Verbose("connected to reader %s", b.ReaderAddr)
	return conn, nil
}

// Close releases the reader dialer and the chain's outputs.
func (b *Bridge) Close() error {
	var first error
	if b.Reader != nil {
		first = b.Reader.Close()
	}
	if c, ok := b.Chain.(io.Closer); ok {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
