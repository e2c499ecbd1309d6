// Package core is the orchestration layer.  It composes transports,
// the middleman chain and the relay capability into complete
// operational modes, and provides a builder that selects the right
// mode from a Config.
//
// Architecture layers (bottom → top):
//
//	vpcd/transport  →  capability  →  session  →  core  →  cmd (CLI)
package core

import "context"

// Mode represents a complete operational mode of cardrelay (wait for
// the card, or dial it).  Each mode owns its full lifecycle from
// connection establishment to teardown.
type Mode interface {
	Run(ctx context.Context) error
}
