package middleman

import (
	"errors"
	"fmt"
)

// Compose collapses a chain of middlemen into one.  chain[0] is the
// member nearest the reader and the last element the one nearest the
// card, so the result behaves like
//
//	Reader <-> chain[0] <-> ... <-> chain[n-1] <-> Card
//
// Commands (HandleInPDU) visit the members front to back, responses
// (HandleOutPDU) back to front.  An empty chain yields the identity.
//
// The chain is copied; later changes to the caller's slice do not
// affect the result.  To change the chain, compose a new one.
//
// A failing member stops the call: its error is returned wrapped in a
// *StageError and no member after it in that direction is invoked.
// When the failing member is itself a composed chain, its *StageError
// is returned as is, so Index counts positions within the innermost
// Compose call that saw the failure.
//
// Every member must be non-nil; Compose panics otherwise.
func Compose(chain ...Middleman) Middleman {
	members := append([]Middleman(nil), chain...)
	for i, m := range members {
		if m == nil {
			panic(fmt.Sprintf("middleman: Compose: chain[%d] is nil", i))
		}
	}

	in := Transformer(identity)
	for i, m := range members {
		in = then(in, stage(i, In, m.HandleInPDU))
	}

	out := Transformer(identity)
	for i := len(members) - 1; i >= 0; i-- {
		out = then(out, stage(i, Out, members[i].HandleOutPDU))
	}

	// Observation already happens inside each member.
	return &Configured{InTransformer: in, OutTransformer: out}
}

func identity(pdu PDU) (PDU, error) { return pdu, nil }

// then applies first, and next to its result.
func then(first, next Transformer) Transformer {
	return func(pdu PDU) (PDU, error) {
		pdu, err := first(pdu)
		if err != nil {
			return nil, err
		}
		return next(pdu)
	}
}

// stage wraps one member's handler with its chain position.
func stage(index int, dir Direction, fn func(PDU) (PDU, error)) Transformer {
	return func(pdu PDU) (PDU, error) {
		out, err := fn(pdu)
		if err != nil {
			var se *StageError
			if errors.As(err, &se) {
				return nil, err
			}
			return nil, &StageError{Index: index, Direction: dir, Err: err}
		}
		if out == nil && pdu != nil {
			return nil, &StageError{Index: index, Direction: dir, Err: &NonProductiveError{Direction: dir}}
		}
		return out, nil
	}
}
