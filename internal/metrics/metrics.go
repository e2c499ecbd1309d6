// Package metrics provides lightweight, lock-free counters for the
// relay: sessions, PDUs and bytes per direction, control messages and
// errors.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"cardrelay/middleman"
)

// Collector tracks runtime metrics for a relay process.
// A nil Collector is safe to use; all its methods are no-ops.
type Collector struct {
	sessionsActive   atomic.Int64
	sessionsTotal    atomic.Int64
	commands         atomic.Int64 // PDUs reader -> card
	responses        atomic.Int64 // PDUs card -> reader
	commandBytes     atomic.Int64
	responseBytes    atomic.Int64
	controls         atomic.Int64
	readerReconnects atomic.Int64
	errorsTotal      atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Sessions ─────────────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of relays currently running.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── PDUs ─────────────────────────────────────────────────────────────

// PDU records one PDU of n bytes travelling in dir.
func (c *Collector) PDU(dir middleman.Direction, n int) {
	if c == nil {
		return
	}
	if dir == middleman.In {
		c.commands.Add(1)
		c.commandBytes.Add(int64(n))
	} else {
		c.responses.Add(1)
		c.responseBytes.Add(int64(n))
	}
}

// PDUs returns the number of PDUs seen in dir.
func (c *Collector) PDUs(dir middleman.Direction) int64 {
	if c == nil {
		return 0
	}
	if dir == middleman.In {
		return c.commands.Load()
	}
	return c.responses.Load()
}

// Bytes returns the number of PDU bytes seen in dir.
func (c *Collector) Bytes(dir middleman.Direction) int64 {
	if c == nil {
		return 0
	}
	if dir == middleman.In {
		return c.commandBytes.Load()
	}
	return c.responseBytes.Load()
}

// Control records one reader control message (power, reset, ATR).
func (c *Collector) Control() {
	if c == nil {
		return
	}
	c.controls.Add(1)
}

// Controls returns the number of control messages relayed.
func (c *Collector) Controls() int64 {
	if c == nil {
		return 0
	}
	return c.controls.Load()
}

// Middleman returns an observe-only middleman feeding this collector.
// Place it where the counts should be taken: at the reader end of the
// chain it counts what the reader sent and received.
func (c *Collector) Middleman() *middleman.Configured {
	return &middleman.Configured{
		InObserver: func(pdu middleman.PDU) error {
			c.PDU(middleman.In, len(pdu))
			return nil
		},
		OutObserver: func(pdu middleman.PDU) error {
			c.PDU(middleman.Out, len(pdu))
			return nil
		},
	}
}

// ── Reader link ──────────────────────────────────────────────────────

// ReaderReconnect records a reader dial that succeeded only after the
// reader had been unavailable.
func (c *Collector) ReaderReconnect() {
	if c == nil {
		return
	}
	c.readerReconnects.Add(1)
}

// ReaderReconnects returns the total reader reconnection count.
func (c *Collector) ReaderReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.readerReconnects.Load()
}

// ── Errors ───────────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	Commands         int64  `json:"commands"`
	Responses        int64  `json:"responses"`
	CommandBytes     int64  `json:"command_bytes"`
	ResponseBytes    int64  `json:"response_bytes"`
	Controls         int64  `json:"controls"`
	ReaderReconnects int64  `json:"reader_reconnects"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:   c.sessionsActive.Load(),
		SessionsTotal:    c.sessionsTotal.Load(),
		Commands:         c.commands.Load(),
		Responses:        c.responses.Load(),
		CommandBytes:     c.commandBytes.Load(),
		ResponseBytes:    c.responseBytes.Load(),
		Controls:         c.controls.Load(),
		ReaderReconnects: c.readerReconnects.Load(),
		ErrorsTotal:      c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
