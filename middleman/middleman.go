// Package middleman defines the interception contract used by the relay.
//
// A Middleman sits between a terminal (the reader) and a smart card and
// sees every PDU that crosses it, once per direction:
//
//	Reader <-> M0 <-> M1 <-> ... <-> Mk <-> Card
//
// HandleInPDU is called for commands travelling from the reader to the
// card, HandleOutPDU for responses travelling back.  Both calls are
// synchronous; the returned PDU is the one that keeps propagating.
//
// Most middlemen are built from a [Configured] value with up to four
// optional slots.  Anything that needs its own state (e.g. pairing a
// command with its response) implements [Middleman] directly.  Chains of
// middlemen collapse into a single one with [Compose].
package middleman

import "fmt"

// PDU is one opaque protocol data unit.  The relay never looks inside
// it.  A nil PDU means "absent"; PDU{} is a valid empty unit.
type PDU []byte

// String renders the PDU as upper-case hex bytes separated by spaces.
func (p PDU) String() string {
	return fmt.Sprintf("% X", []byte(p))
}

// Direction identifies which way a PDU travels.
type Direction int

const (
	// In is the reader -> card direction (command APDUs).
	In Direction = iota
	// Out is the card -> reader direction (response APDUs).
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "In"
	case Out:
		return "Out"
	default:
		return "unknown"
	}
}

// Middleman observes and/or rewrites PDUs in both directions.
//
// Implementations must return exactly one PDU per call unless they
// return an error.  The relay provides no locking: a Middleman that
// keeps mutable state across calls guards it itself.
type Middleman interface {
	// HandleInPDU processes a PDU travelling from the reader to the card.
	HandleInPDU(pdu PDU) (PDU, error)

	// HandleOutPDU processes a PDU travelling from the card to the reader.
	HandleOutPDU(pdu PDU) (PDU, error)
}

// Transformer replaces the in-flight PDU with its result.  It must be
// productive: turning a PDU into nil without an error is reported as
// [ErrNonProductive].  An empty result must be PDU{}, not nil; a
// transformer that builds its output with append onto a nil PDU has
// to return PDU{} when nothing was appended.
type Transformer func(PDU) (PDU, error)

// Observer is called for its side effects only.  It has no way to alter
// the PDU; a non-nil error aborts the call.
type Observer func(PDU) error

// Configured is the slot-based Middleman.  Unset observers are no-ops
// and unset transformers are the identity, so the zero value passes
// every PDU through untouched.
//
// A Configured value is never mutated by the relay after construction.
type Configured struct {
	InTransformer  Transformer
	InObserver     Observer
	OutTransformer Transformer
	OutObserver    Observer
}

// NoOp is the simplest man in the middle: it forwards everything.
var NoOp Middleman = &Configured{}

// HandleInPDU runs the in-observer, then the in-transformer.
func (c *Configured) HandleInPDU(pdu PDU) (PDU, error) {
	return handle(In, c.InObserver, c.InTransformer, pdu)
}

// HandleOutPDU runs the out-observer, then the out-transformer.
func (c *Configured) HandleOutPDU(pdu PDU) (PDU, error) {
	return handle(Out, c.OutObserver, c.OutTransformer, pdu)
}

func handle(dir Direction, observe Observer, transform Transformer, pdu PDU) (PDU, error) {
	if observe != nil {
		if err := observe(pdu); err != nil {
			return nil, err
		}
	}
	if transform == nil {
		return pdu, nil
	}
	out, err := transform(pdu)
	if err != nil {
		return nil, err
	}
	if out == nil && pdu != nil {
		return nil, &NonProductiveError{Direction: dir}
	}
	return out, nil
}

// Funcs adapts a pair of plain functions to the Middleman interface.
// It replaces both handle operations wholesale; a nil field is the
// identity.  Use it for ad-hoc middlemen that don't fit the slot model.
type Funcs struct {
	In  func(PDU) (PDU, error)
	Out func(PDU) (PDU, error)
}

// HandleInPDU calls f.In.
func (f Funcs) HandleInPDU(pdu PDU) (PDU, error) {
	if f.In == nil {
		return pdu, nil
	}
	return f.In(pdu)
}

// HandleOutPDU calls f.Out.
func (f Funcs) HandleOutPDU(pdu PDU) (PDU, error) {
	if f.Out == nil {
		return pdu, nil
	}
	return f.Out(pdu)
}

var (
	_ Middleman = (*Configured)(nil)
	_ Middleman = Funcs{}
)
