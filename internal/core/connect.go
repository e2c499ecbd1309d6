package core

import (
	"context"
	"fmt"

	"cardrelay/internal/transport"
	"cardrelay/util"
)

// ConnectMode dials a card endpoint that is already listening (a vicc
// started with --reversed) and bridges it to the reader.
type ConnectMode struct {
	Card     transport.Dialer
	CardAddr string
	Bridge   *Bridge
	Logger   *util.Logger
}

// Run dials the card, then hands the connection to the bridge.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Card.Close()
	defer m.Bridge.Close()

	m.Logger.Verbose("connecting to card %s", m.CardAddr)

	card, err := m.Card.Dial(ctx, "tcp", m.CardAddr)
	if err != nil {
		return fmt.Errorf("card %s: %w", m.CardAddr, err)
	}

	err = m.Bridge.Serve(ctx, card)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
