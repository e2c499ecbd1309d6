package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"cardrelay/tunnel"
	"cardrelay/util"
)

// SSHDialer reaches a vpcd that only listens on a remote host's
// loopback by forwarding through an SSH gateway.  The tunnel is
// connected lazily and re-established when it drops, so a relay in
// keep-open mode survives a gateway restart.
type SSHDialer struct {
	tunnel *tunnel.SSHTunnel
	config *tunnel.SSHConfig
	logger *util.Logger
	mu     sync.Mutex
	opened bool
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		tunnel: tunnel.NewSSHTunnel(cfg, logger),
		config: cfg,
		logger: logger,
	}
}

func (d *SSHDialer) connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened && d.tunnel.IsAlive() {
		return nil
	}
	if d.opened {
		d.logger.Info("SSH tunnel to %s lost, reconnecting", d.config.Host)
		d.tunnel.Close() //nolint:errcheck
	}

	d.logger.Verbose("establishing SSH tunnel to %s@%s:%d",
		d.config.User, d.config.Host, d.config.Port)

	if err := d.tunnel.Connect(ctx); err != nil {
		d.opened = false
		return fmt.Errorf("tunnel: %w", err)
	}

	d.opened = true
	d.logger.Verbose("SSH tunnel established")
	return nil
}

// Dial connects to address through the SSH tunnel.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if err := d.connect(ctx); err != nil {
		return nil, err
	}
	return d.tunnel.Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		d.opened = false
		return d.tunnel.Close()
	}
	return nil
}
