package core

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardrelay/config"
	"cardrelay/internal/transport"
	"cardrelay/util"
)

func TestBuild_Listen(t *testing.T) {
	cfg := config.Default()
	cfg.Listen, cfg.LocalPort, cfg.KeepOpen = true, 35964, true

	mode, err := Build(cfg, util.NewLogger(0), Options{})
	require.NoError(t, err)

	lm, ok := mode.(*ListenMode)
	require.True(t, ok, "expected *ListenMode, got %T", mode)
	assert.Equal(t, ":35964", lm.Address)
	assert.True(t, lm.KeepOpen)
	assert.Equal(t, "127.0.0.1:35963", lm.Bridge.ReaderAddr)
	assert.Equal(t, config.DefaultReaderRetries, lm.Bridge.Backoff.MaxAttempts)
}

func TestBuild_Connect(t *testing.T) {
	cfg := config.Default()
	cfg.CardHost, cfg.CardPort = "card.lab", 35964
	cfg.ReaderHost, cfg.ReaderPort = "vpcd.lab", 40000

	mode, err := Build(cfg, util.NewLogger(0), Options{})
	require.NoError(t, err)

	cm, ok := mode.(*ConnectMode)
	require.True(t, ok, "expected *ConnectMode, got %T", mode)
	assert.Equal(t, "card.lab:35964", cm.CardAddr)
	assert.Equal(t, "vpcd.lab:40000", cm.Bridge.ReaderAddr)

	bd, ok := cm.Bridge.Reader.(*transport.BreakerDialer)
	require.True(t, ok)
	assert.IsType(t, &transport.TCPDialer{}, bd.Dialer)
}

func TestBuild_Tunnel(t *testing.T) {
	cfg := config.Default()
	cfg.Listen, cfg.LocalPort = true, 35964
	cfg.TunnelSpec = "relay@lab-gw"
	require.NoError(t, cfg.ApplyTunnelSpec())

	mode, err := Build(cfg, util.NewLogger(0), Options{})
	require.NoError(t, err)

	bd := mode.(*ListenMode).Bridge.Reader.(*transport.BreakerDialer)
	assert.IsType(t, &transport.SSHDialer{}, bd.Dialer)
}

func TestBuild_ChainError(t *testing.T) {
	cfg := config.Default()
	cfg.Listen, cfg.LocalPort = true, 35964
	cfg.PcapPath = filepath.Join(t.TempDir(), "no", "such", "dir.pcap")

	_, err := Build(cfg, util.NewLogger(0), Options{})
	require.Error(t, err)
}
