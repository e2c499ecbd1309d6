// Package vpcd implements the framing used between the virtual smart
// card reader driver (vpcd) and a card emulator (vicc).
//
// Every message is prefixed with its length as a 2-byte big-endian
// integer.  One-byte messages are reader control commands; everything
// else is an APDU.  The only control command that expects an answer is
// GetATR, which the card answers with its ATR in a regular frame.
package vpcd

import (
	"encoding/binary"
	"fmt"
	"io"

	ncerr "cardrelay/internal/errors"
)

// DefaultPort is the TCP port vpcd listens on.
const DefaultPort = 35963

// MaxFrameSize is the largest payload a 2-byte length prefix can carry.
const MaxFrameSize = 0xFFFF

// Control is a one-byte reader command.
type Control byte

const (
	PowerOff Control = 0x00
	PowerOn  Control = 0x01
	Reset    Control = 0x02
	GetATR   Control = 0x04
)

func (c Control) String() string {
	switch c {
	case PowerOff:
		return "power-off"
	case PowerOn:
		return "power-on"
	case Reset:
		return "reset"
	case GetATR:
		return "get-atr"
	default:
		return fmt.Sprintf("control(0x%02x)", byte(c))
	}
}

// IsControl reports whether frame is a control command rather than an
// APDU, and which one.
func IsControl(frame []byte) (Control, bool) {
	if len(frame) != 1 {
		return 0, false
	}
	return Control(frame[0]), true
}

// ReadFrame reads one length-prefixed frame.  A clean EOF before the
// length prefix is returned as io.EOF; EOF inside a frame is
// io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	frame := make([]byte, binary.BigEndian.Uint16(hdr[:]))
	if _, err := io.ReadFull(r, frame); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// WriteFrame writes frame with its length prefix in a single write.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) > MaxFrameSize {
		return &ncerr.ProtocolError{
			Op:      "write frame",
			Message: fmt.Sprintf("%d bytes exceed the %d byte limit", len(frame), MaxFrameSize),
		}
	}
	buf := make([]byte, 2+len(frame))
	binary.BigEndian.PutUint16(buf, uint16(len(frame)))
	copy(buf[2:], frame)
	_, err := w.Write(buf)
	return err
}

// WriteControl sends a control command.
func WriteControl(w io.Writer, c Control) error {
	return WriteFrame(w, []byte{byte(c)})
}
