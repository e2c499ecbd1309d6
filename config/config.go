// Package config defines the runtime configuration for cardrelay: where
// the reader and the card are, how to reach them, and which middlemen
// sit between them.
package config

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "cardrelay/internal/errors"
	"cardrelay/util"
)

// Config holds every tuneable for a relay process.
type Config struct {
	// ── Reader (vpcd) ────────────────────────────────────────────────
	ReaderHost string
	ReaderPort int
	Retries    int // dial attempts per session, 0 = until cancelled

	// ── Card (vicc) ──────────────────────────────────────────────────
	Listen    bool // wait for the card to connect
	LocalPort int  // -p: listen port for the card
	CardHost  string
	CardPort  int
	KeepOpen  bool // serve one card connection after another
	Timeout   time.Duration

	// ── SSH tunnel to the reader ─────────────────────────────────────
	TunnelSpec        string // raw user@host[:port] from -T
	TunnelEnabled     bool
	TunnelUser        string
	TunnelHost        string
	TunnelPort        int
	SSHKeyPath        string
	SSHPassword       bool // true → prompt interactively
	UseSSHAgent       bool
	StrictHostKey     bool
	KnownHostsPath    string
	KeepAliveInterval time.Duration

	// ── Middleman chain ──────────────────────────────────────────────
	ChainFile string
	Chain     []StageSpec
	Trace     bool   // wrap the chain in ReaderSide/CardSide loggers
	PcapPath  string // shorthand for a trailing pcap stage

	// ── Output ───────────────────────────────────────────────────────
	Verbose     int
	LogFile     string
	MetricsAddr string
	DryRun      bool
}

// ReaderAddress returns the host:port of the reader.
func (c *Config) ReaderAddress() string {
	return util.FormatAddr(c.ReaderHost, c.ReaderPort)
}

// Stages returns the configured chain with the --pcap shorthand
// appended, so the capture sees exactly what the card sees.
func (c *Config) Stages() []StageSpec {
	out := append([]StageSpec(nil), c.Chain...)
	if c.PcapPath != "" {
		out = append(out, StageSpec{Type: StagePcap, Path: c.PcapPath})
	}
	return out
}

// ── Stages ───────────────────────────────────────────────────────────

// Stage types understood by the chain builder.
const (
	StageLog     = "log"
	StageText    = "text"
	StagePcap    = "pcap"
	StageMetrics = "metrics"
	StageRewrite = "rewrite"
)

// StageSpec describes one middleman of the chain, in chain order (the
// first entry is nearest the reader).
type StageSpec struct {
	Type      string `yaml:"type"`
	Name      string `yaml:"name,omitempty"`      // log: logger name
	Path      string `yaml:"path,omitempty"`      // pcap, text: output file ("" or "-" is stdout for text)
	Direction string `yaml:"direction,omitempty"` // rewrite: in, out or both
	Match     string `yaml:"match,omitempty"`     // rewrite: hex bytes
	Replace   string `yaml:"replace,omitempty"`   // rewrite: hex bytes
}

// Validate checks one stage.  index is its position in the chain and
// only used in messages.
func (s StageSpec) Validate(index int) error {
	field := fmt.Sprintf("chain[%d]", index)
	switch s.Type {
	case StageLog, StageMetrics, StageText:
		return nil
	case StagePcap:
		if s.Path == "" {
			return &ncerr.ConfigError{Field: field, Message: "pcap stage needs a path"}
		}
		return nil
	case StageRewrite:
		switch strings.ToLower(s.Direction) {
		case "", "in", "out", "both":
		default:
			return &ncerr.ConfigError{
				Field: field, Value: s.Direction,
				Message: "unknown rewrite direction",
				Hint:    "use in, out or both",
			}
		}
		match, err := ParseHex(s.Match)
		if err != nil {
			return &ncerr.ConfigError{Field: field, Value: s.Match, Message: err.Error()}
		}
		if len(match) == 0 {
			return &ncerr.ConfigError{Field: field, Message: "rewrite stage needs a match"}
		}
		if _, err := ParseHex(s.Replace); err != nil {
			return &ncerr.ConfigError{Field: field, Value: s.Replace, Message: err.Error()}
		}
		return nil
	default:
		return &ncerr.ConfigError{
			Field: field, Value: s.Type,
			Message: "unknown stage type",
			Hint:    "use log, text, pcap, metrics or rewrite",
		}
	}
}

// ParseHex decodes hex bytes, ignoring spaces and colons so that both
// "00A40400" and "00 A4 04 00" work.
func ParseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q", s)
	}
	return b, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "relay@lab-gw.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q, expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec, when set, into the tunnel fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Listen {
		if c.LocalPort == 0 {
			return &ncerr.ConfigError{
				Field:   "port",
				Message: "listen mode requires a port for the card to connect to",
				Hint:    "cardrelay -l -p 35964",
			}
		}
		if c.CardHost != "" {
			return &ncerr.ConfigError{
				Field:   "listen",
				Message: "listening for the card and dialing it are mutually exclusive",
				Hint:    "drop -l to dial " + c.CardHost,
			}
		}
	} else {
		if c.CardHost == "" || c.CardPort == 0 {
			return &ncerr.ConfigError{
				Field:   "card",
				Message: "card endpoint is required",
				Hint:    "cardrelay <card-host> <card-port>, or -l -p <port> to wait for the card",
			}
		}
		if c.KeepOpen {
			return &ncerr.ConfigError{
				Field:   "keep-open",
				Message: "keep-open only applies when listening for the card",
				Hint:    "add -l -p <port>",
			}
		}
	}

	for name, p := range map[string]int{"port": c.LocalPort, "card-port": c.CardPort, "reader": c.ReaderPort} {
		if p < 0 || p > 65535 {
			return &ncerr.ConfigError{Field: name, Value: p, Message: "port out of range 1-65535"}
		}
	}

	if c.ReaderHost == "" || c.ReaderPort == 0 {
		return &ncerr.ConfigError{
			Field:   "reader",
			Message: "reader address is required",
			Hint:    fmt.Sprintf("vpcd listens on %s:%d by default", DefaultReaderHost, DefaultReaderPort),
		}
	}

	if c.Retries < 0 {
		return &ncerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}

	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
	}

	for i, s := range c.Stages() {
		if err := s.Validate(i); err != nil {
			return err
		}
	}
	return nil
}
