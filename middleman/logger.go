package middleman

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ConsoleLogger returns a middleman that prints every PDU it sees to
// stdout, prefixed with "name-In: " or "name-Out: ".  It never changes
// the data, so it can be dropped anywhere into a chain to debug its
// neighbours:
//
//	Compose(ConsoleLogger("ReaderSide"), suspect, ConsoleLogger("CardSide"))
func ConsoleLogger(name string) *Configured {
	return NewLogger(os.Stdout, name, In.String(), Out.String())
}

// NewLogger is ConsoleLogger with a custom sink and direction labels.
// Empty parts are left out of the prefix together with their separator.
func NewLogger(w io.Writer, name, inLabel, outLabel string) *Configured {
	s := &lineSink{w: w}
	inPrefix := prefix(name, inLabel)
	outPrefix := prefix(name, outLabel)
	return &Configured{
		InObserver:  func(pdu PDU) error { return s.println(inPrefix, pdu) },
		OutObserver: func(pdu PDU) error { return s.println(outPrefix, pdu) },
	}
}

func prefix(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	if len(nonEmpty) == 0 {
		return ""
	}
	return strings.Join(nonEmpty, "-") + ": "
}

// lineSink serialises writes so one logger can serve both directions.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *lineSink) println(prefix string, pdu PDU) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := fmt.Fprintf(s.w, "%s%s\n", prefix, pdu)
	return err
}
