package core

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"cardrelay/internal/capability"
	"cardrelay/internal/metrics"
	"cardrelay/internal/retry"
	"cardrelay/internal/transport"
	"cardrelay/internal/vpcd"
	"cardrelay/middleman"
	"cardrelay/util"
)

var testATR = []byte{0x3B, 0x8A, 0x80, 0x01}

// serveCard plays a vicc: it answers GetATR with testATR and every APDU
// with 90 00.
func serveCard(conn net.Conn) {
	defer conn.Close()
	for {
		frame, err := vpcd.ReadFrame(conn)
		if err != nil {
			return
		}
		if c, ok := vpcd.IsControl(frame); ok {
			if c == vpcd.GetATR {
				vpcd.WriteFrame(conn, testATR) //nolint:errcheck
			}
			continue
		}
		vpcd.WriteFrame(conn, []byte{0x90, 0x00}) //nolint:errcheck
	}
}

// readerScript is what the fake vpcd observed.
type readerScript struct {
	atr  []byte
	resp []byte
	err  error
}

// runReader plays vpcd on conn: power on, fetch the ATR, send one
// SELECT, read the answer and hang up.
func runReader(conn net.Conn) readerScript {
	defer conn.Close()
	var s readerScript
	if s.err = vpcd.WriteControl(conn, vpcd.PowerOn); s.err != nil {
		return s
	}
	if s.err = vpcd.WriteControl(conn, vpcd.GetATR); s.err != nil {
		return s
	}
	if s.atr, s.err = vpcd.ReadFrame(conn); s.err != nil {
		return s
	}
	if s.err = vpcd.WriteFrame(conn, []byte{0x00, 0xA4, 0x04, 0x00}); s.err != nil {
		return s
	}
	s.resp, s.err = vpcd.ReadFrame(conn)
	return s
}

// startReader listens like vpcd and runs runReader on each connection.
func startReader(t *testing.T, ln net.Listener) <-chan readerScript {
	t.Helper()
	out := make(chan readerScript, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			out <- runReader(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return out
}

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	return ln
}

func testBridge(readerAddr string, chain middleman.Middleman, m *metrics.Collector) *Bridge {
	return &Bridge{
		Reader: transport.NewBreakerDialer(&transport.TCPDialer{Timeout: time.Second}, &retry.CircuitBreakerConfig{
			MaxFailures:  2,
			ResetTimeout: 10 * time.Millisecond,
		}),
		ReaderAddr: readerAddr,
		Backoff: &retry.Backoff{
			InitialDelay: 20 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			MaxAttempts:  3,
		},
		Chain:      chain,
		Capability: &capability.Relay{},
		Logger:     util.NewLogger(0),
		Metrics:    m,
	}
}

// dialRetry connects to addr, waiting for the listener to come up.
func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	for {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			return conn, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial %s: %w", addr, ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func listenAt(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
