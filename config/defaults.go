package config

import (
	"time"

	"cardrelay/internal/vpcd"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, the chain file, and environment variable loading.

const (
	// DefaultReaderHost is where vpcd listens when it runs locally.
	DefaultReaderHost = "127.0.0.1"

	// DefaultReaderPort is vpcd's well-known port.
	DefaultReaderPort = vpcd.DefaultPort

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultKeepAliveInterval is the SSH keepalive interval.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultReaderRetries is how many times a session tries to reach
	// the reader before giving up.
	DefaultReaderRetries = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reader dial attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultBreakerFailures is the number of consecutive reader dial
	// failures that open the circuit.
	DefaultBreakerFailures = 5

	// DefaultBreakerReset is how long an open circuit rejects dials.
	DefaultBreakerReset = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for the metrics
	// server to finish in-flight scrapes.
	DefaultGracePeriod = 5 * time.Second
)

// Default returns a Config populated with the defaults above.
func Default() *Config {
	return &Config{
		ReaderHost:        DefaultReaderHost,
		ReaderPort:        DefaultReaderPort,
		Retries:           DefaultReaderRetries,
		Timeout:           DefaultConnTimeout,
		KeepAliveInterval: DefaultKeepAliveInterval,
	}
}
