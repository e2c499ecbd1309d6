package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Chain file  (file.go)
//   4. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"

	"cardrelay/util"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the CARDRELAY_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// ChainFileFromEnv returns the chain file named in the environment.
func ChainFileFromEnv() string {
	return os.Getenv("CARDRELAY_CHAIN")
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it after LoadFile and
// before CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) error {
	if v := os.Getenv("CARDRELAY_READER"); v != "" {
		host, port, err := util.SplitAddr(v, DefaultReaderPort)
		if err != nil {
			return err
		}
		cfg.ReaderHost, cfg.ReaderPort = host, port
	}
	if v := envInt("CARDRELAY_RETRIES"); v > 0 {
		cfg.Retries = v
	}
	if v := envInt("CARDRELAY_PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if envBool("CARDRELAY_LISTEN") {
		cfg.Listen = true
	}
	if envBool("CARDRELAY_KEEP_OPEN") {
		cfg.KeepOpen = true
	}
	if v := envInt("CARDRELAY_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}

	// SSH tunnel
	if v := os.Getenv("CARDRELAY_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("CARDRELAY_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("CARDRELAY_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("CARDRELAY_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("CARDRELAY_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("CARDRELAY_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}
	if v := envInt("CARDRELAY_KEEP_ALIVE"); v > 0 {
		cfg.KeepAliveInterval = secondsDuration(v)
	}

	// Chain
	if envBool("CARDRELAY_TRACE") {
		cfg.Trace = true
	}
	if v := os.Getenv("CARDRELAY_PCAP"); v != "" {
		cfg.PcapPath = v
	}

	// Output
	if v := envInt("CARDRELAY_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := os.Getenv("CARDRELAY_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("CARDRELAY_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
