package capability

import (
	"context"
	"errors"
	"fmt"
	"io"

	ncerr "cardrelay/internal/errors"
	"cardrelay/internal/session"
	"cardrelay/internal/vpcd"
	"cardrelay/middleman"
)

// Relay shuttles vpcd frames between the reader and the card.  Every
// APDU the reader sends goes through the session chain's HandleInPDU
// before reaching the card, and every card response goes through
// HandleOutPDU before reaching the reader.  Control frames (power,
// reset, ATR) pass untouched.
type Relay struct{}

// Handle runs the request/response loop.  The reader closing its
// connection ends the session with a nil error.  Any other failure,
// including a middleman error, ends it with that error; nothing is
// retried.  Cancelling ctx closes both connections.
func (r *Relay) Handle(ctx context.Context, sess *session.Session) error {
	sess.Metrics.SessionOpened()
	defer sess.Metrics.SessionClosed()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			sess.Close() //nolint:errcheck
		case <-stop:
		}
	}()

	sess.Logger.Verbose("relaying %s <-> %s", sess.Reader.RemoteAddr(), sess.Card.RemoteAddr())

	err := r.loop(sess)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		sess.Metrics.RecordError(err.Error())
		return err
	}
	sess.Logger.Verbose("reader closed the connection")
	return nil
}

func (r *Relay) loop(sess *session.Session) error {
	for {
		frame, err := vpcd.ReadFrame(sess.Reader)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return ncerr.Wrap("read", "reader", err)
		}

		if c, ok := vpcd.IsControl(frame); ok {
			if err := r.control(sess, c); err != nil {
				return err
			}
			continue
		}
		if err := r.exchange(sess, middleman.PDU(frame)); err != nil {
			return err
		}
	}
}

// control forwards a reader command to the card.  GetATR is the only
// command the card answers; its ATR goes back verbatim.
func (r *Relay) control(sess *session.Session, c vpcd.Control) error {
	sess.Metrics.Control()
	sess.Logger.Debug("control %s", c)

	if err := vpcd.WriteControl(sess.Card, c); err != nil {
		return ncerr.Wrap("write", "card", err)
	}
	if c != vpcd.GetATR {
		return nil
	}

	atr, err := readCard(sess)
	if err != nil {
		return err
	}
	sess.Logger.Debug("ATR % X", atr)
	if err := vpcd.WriteFrame(sess.Reader, atr); err != nil {
		return ncerr.Wrap("write ATR", "reader", err)
	}
	return nil
}

func (r *Relay) exchange(sess *session.Session, cmd middleman.PDU) error {
	in, err := sess.Chain.HandleInPDU(cmd)
	if err != nil {
		return fmt.Errorf("command % X: %w", []byte(cmd), err)
	}
	if err := vpcd.WriteFrame(sess.Card, in); err != nil {
		return ncerr.Wrap("write", "card", err)
	}

	resp, err := readCard(sess)
	if err != nil {
		return err
	}

	out, err := sess.Chain.HandleOutPDU(middleman.PDU(resp))
	if err != nil {
		return fmt.Errorf("response % X: %w", resp, err)
	}
	if err := vpcd.WriteFrame(sess.Reader, out); err != nil {
		return ncerr.Wrap("write", "reader", err)
	}
	return nil
}

// readCard reads the card's answer.  A card hanging up while the reader
// waits for it ends the session with ErrSessionClosed.
func readCard(sess *session.Session) ([]byte, error) {
	frame, err := vpcd.ReadFrame(sess.Card)
	if errors.Is(err, io.EOF) {
		err = ncerr.ErrSessionClosed
	}
	if err != nil {
		return nil, ncerr.Wrap("read", "card", err)
	}
	return frame, nil
}
