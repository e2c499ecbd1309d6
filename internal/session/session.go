// Package session binds one relay run: the reader connection, the card
// connection and the middleman chain between them.
//
// Capabilities operate on sessions rather than raw connections, so a
// test can hand them a net.Pipe just as easily as a TCP socket.
package session

import (
	"net"

	"github.com/google/uuid"

	"cardrelay/internal/metrics"
	"cardrelay/middleman"
	"cardrelay/util"
)

// Session encapsulates the runtime context for a single card
// connection.
type Session struct {
	ID      string
	Reader  net.Conn // vpcd side
	Card    net.Conn // vicc side
	Chain   middleman.Middleman
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// New creates a Session with a fresh random ID.  A nil chain relays
// PDUs unchanged.  The logger is prefixed with the short form of the ID.
func New(reader, card net.Conn, chain middleman.Middleman, logger *util.Logger, m *metrics.Collector) *Session {
	if chain == nil {
		chain = middleman.NoOp
	}
	id := uuid.NewString()
	return &Session{
		ID:      id,
		Reader:  reader,
		Card:    card,
		Chain:   chain,
		Logger:  logger.With("[" + id[:8] + "]"),
		Metrics: m,
	}
}

// Close closes both connections and returns the first error.
func (s *Session) Close() error {
	var first error
	for _, c := range []net.Conn{s.Reader, s.Card} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
