// Package capability defines what happens over an established pair of
// connections.  The only behaviour today is the APDU relay; it operates
// on a Session rather than raw sockets, which keeps it testable and
// decoupled from how the reader and card were reached.
package capability

import (
	"context"

	"cardrelay/internal/session"
)

// Capability handles a single session.
type Capability interface {
	// Handle runs the capability against the given session.  It blocks
	// until one side is done or the context is cancelled.
	Handle(ctx context.Context, sess *session.Session) error
}
