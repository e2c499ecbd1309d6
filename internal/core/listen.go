package core

import (
	"context"
	"fmt"
	"net"

	"cardrelay/util"
)

// ListenMode stands in for vpcd: it waits for the card (a vicc pointed
// at the relay instead of at vpcd) to connect, then bridges it to the
// real reader.  With KeepOpen it serves one card after another; the reader
// only has one slot, so cards are never served concurrently.
type ListenMode struct {
	Address  string // ":port"
	KeepOpen bool
	Bridge   *Bridge
	Logger   *util.Logger
}

// Run starts listening and dispatches accepted card connections.
func (m *ListenMode) Run(ctx context.Context) error {
	defer m.Bridge.Close()

	ln, err := net.Listen("tcp", m.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", m.Address, err)
	}
	defer ln.Close()

	m.Logger.Info("waiting for the card on %s", ln.Addr())

	// Shut the listener down when the context expires.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ln.Close()
		case <-done:
		}
	}()

	for {
		card, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		m.Logger.Verbose("card connected from %s", card.RemoteAddr())
		err = m.Bridge.Serve(ctx, card)
		if ctx.Err() != nil {
			return nil
		}
		if !m.KeepOpen {
			return err
		}
	}
}
