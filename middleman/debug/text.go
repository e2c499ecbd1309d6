package debug

import (
	"fmt"
	"io"
	"sync"

	"cardrelay/middleman"
)

// NewTextTap returns a middleman that hex-dumps commands to commands
// as "-> 00a40400" and responses to responses as "<- 9000".  Both may
// be the same writer.
func NewTextTap(commands, responses io.Writer) *middleman.Configured {
	var mu sync.Mutex
	dump := func(w io.Writer, arrow string, pdu middleman.PDU) error {
		mu.Lock()
		defer mu.Unlock()

		_, err := fmt.Fprintf(w, "%s %x\n", arrow, []byte(pdu))
		return err
	}
	return &middleman.Configured{
		InObserver:  func(pdu middleman.PDU) error { return dump(commands, "->", pdu) },
		OutObserver: func(pdu middleman.PDU) error { return dump(responses, "<-", pdu) },
	}
}
