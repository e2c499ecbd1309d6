// Package transport opens the relay's connection to the reader.  A
// dialer decides how bytes reach vpcd (plain TCP, or through an SSH
// gateway); what flows over the connection is the relay's business.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to the reader.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
