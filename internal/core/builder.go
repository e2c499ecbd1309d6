package core

import (
	"fmt"
	"io"

	"cardrelay/config"
	"cardrelay/internal/capability"
	"cardrelay/internal/metrics"
	"cardrelay/internal/retry"
	"cardrelay/internal/transport"
	"cardrelay/tunnel"
	"cardrelay/util"
)

// Options are the process-level resources a mode is built around.
type Options struct {
	Metrics *metrics.Collector
	Stdout  io.Writer // log/text stages, nil = os.Stdout
}

// Build constructs the appropriate Mode from the given configuration.
// It is the single dispatch point for mode selection.
func Build(cfg *config.Config, logger *util.Logger, opts Options) (Mode, error) {
	bridge, err := buildBridge(cfg, logger, opts)
	if err != nil {
		return nil, err
	}

	if cfg.Listen {
		return &ListenMode{
			Address:  fmt.Sprintf(":%d", cfg.LocalPort),
			KeepOpen: cfg.KeepOpen,
			Bridge:   bridge,
			Logger:   logger,
		}, nil
	}

	return &ConnectMode{
		Card:     &transport.TCPDialer{Timeout: cfg.Timeout},
		CardAddr: util.FormatAddr(cfg.CardHost, cfg.CardPort),
		Bridge:   bridge,
		Logger:   logger,
	}, nil
}

func buildBridge(cfg *config.Config, logger *util.Logger, opts Options) (*Bridge, error) {
	chain, err := BuildChain(cfg.Stages(), ChainOptions{
		Trace:   cfg.Trace,
		Stdout:  opts.Stdout,
		Metrics: opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	backoff := retry.DefaultBackoff()
	backoff.MaxAttempts = cfg.Retries
	backoff.MaxDelay = config.DefaultMaxReconnectBackoff

	return &Bridge{
		Reader:     buildReaderDialer(cfg, logger),
		ReaderAddr: cfg.ReaderAddress(),
		Backoff:    backoff,
		Chain:      chain,
		Capability: &capability.Relay{},
		Logger:     logger,
		Metrics:    opts.Metrics,
	}, nil
}

// buildReaderDialer creates the transport to vpcd: direct TCP or via
// the SSH gateway, behind a circuit breaker either way.
func buildReaderDialer(cfg *config.Config, logger *util.Logger) transport.Dialer {
	var d transport.Dialer = &transport.TCPDialer{Timeout: cfg.Timeout}
	if cfg.TunnelEnabled {
		d = transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     cfg.KeepAliveInterval,
		}, logger)
	}

	return transport.NewBreakerDialer(d, &retry.CircuitBreakerConfig{
		MaxFailures:  config.DefaultBreakerFailures,
		ResetTimeout: config.DefaultBreakerReset,
		OnStateChange: func(from, to retry.State) {
			logger.Verbose("reader circuit %s -> %s", from, to)
		},
	})
}
