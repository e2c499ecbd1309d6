// Package cmd wires up the CLI flags and dispatches to the relay core.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"cardrelay/config"
	"cardrelay/internal/core"
	"cardrelay/internal/metrics"
	"cardrelay/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X cardrelay/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the relay.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout)
}

func execute(ctx context.Context, args []string, stdout io.Writer) error {
	// ── defaults < chain file < environment ──────────────────────
	cfg := config.Default()
	chainFile := chainFileArg(args)
	if chainFile == "" {
		chainFile = config.ChainFileFromEnv()
	}
	if chainFile != "" {
		if err := config.LoadFile(cfg, chainFile); err != nil {
			return err
		}
	}
	if err := config.LoadFromEnv(cfg); err != nil {
		return fmt.Errorf("CARDRELAY_READER: %w", err)
	}

	// ── flags, defaulting to what the layers above produced ──────
	fs := flag.NewFlagSet("cardrelay", flag.ContinueOnError)

	// reader
	readerAddr := cfg.ReaderAddress()
	fs.StringVarP(&readerAddr, "reader", "r", readerAddr, "Reader (vpcd) address host[:port]")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Reader dial attempts per session (0 = until interrupted)")

	// card
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Wait for the card to connect")
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Port to wait for the card on (with -l)")
	fs.BoolVarP(&cfg.KeepOpen, "keep-open", "k", cfg.KeepOpen, "Serve one card after another (with -l)")
	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds")

	// SSH tunnel
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the reader via SSH [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")
	keepAliveSec := int(cfg.KeepAliveInterval / time.Second)
	fs.IntVar(&keepAliveSec, "keep-alive", keepAliveSec, "SSH keepalive interval in seconds (0 = off)")

	// chain
	fs.StringVarP(&chainFile, "chain", "C", chainFile, "Chain file (YAML)")
	fs.BoolVarP(&cfg.Trace, "trace", "t", cfg.Trace, "Log every PDU as the reader and the card see it")
	fs.StringVar(&cfg.PcapPath, "pcap", cfg.PcapPath, "Write the card-side APDU stream to a pcap file")

	// output
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write the log to a size-rotated file")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate the configuration, print the plan and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || (len(args) == 0 && chainFile == "") {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "cardrelay %s\n", version)
		return nil
	}

	if fs.Changed("reader") {
		host, port, err := util.SplitAddr(readerAddr, config.DefaultReaderPort)
		if err != nil {
			return fmt.Errorf("reader: %w", err)
		}
		cfg.ReaderHost, cfg.ReaderPort = host, port
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}
	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	if fs.Changed("keep-alive") {
		cfg.KeepAliveInterval = time.Duration(keepAliveSec) * time.Second
	}

	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		describe(stdout, cfg)
		return nil
	}

	return run(ctx, cfg)
}

// run builds the process-level resources and the mode, then blocks in
// the mode until it finishes or ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	logger := util.NewLogger(cfg.Verbose)
	if cfg.LogFile != "" {
		w := util.OpenLogFile(cfg.LogFile)
		defer w.Close()
		logger.SetOutput(w)
		logger.SetTimestamps(true)
	}

	collector := metrics.New()
	if cfg.MetricsAddr != "" {
		stop, err := serveMetrics(cfg.MetricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	mode, err := core.Build(cfg, logger, core.Options{Metrics: collector})
	if err != nil {
		return err
	}

	err = mode.Run(ctx)
	logger.Debug("metrics: %s", collector.JSON())
	return err
}

// serveMetrics exposes collector on addr and returns a function that
// shuts the server down.
func serveMetrics(addr string, collector *metrics.Collector, logger *util.Logger) (func(), error) {
	reg := metrics.NewRegistry()
	if err := collector.Register(reg); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
	logger.Verbose("serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultGracePeriod)
		defer cancel()
		srv.Shutdown(ctx) //nolint:errcheck
	}, nil
}

// ── helpers ──────────────────────────────────────────────────────────

// chainFileArg finds --chain/-C before the real parse, because the
// chain file supplies the defaults the real flags are declared with.
func chainFileArg(args []string) string {
	pre := flag.NewFlagSet("cardrelay", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}

	var path string
	pre.StringVarP(&path, "chain", "C", "", "")
	pre.Parse(args) //nolint:errcheck // the real parse reports errors
	return path
}

// parsePositional reads the card endpoint: "<host> <port>" or
// "<host:port>".
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
		return nil
	case 1:
		host, port, err := util.SplitAddr(remaining[0], 0)
		if err != nil {
			return fmt.Errorf("card: %w", err)
		}
		cfg.CardHost, cfg.CardPort = host, port
	case 2:
		port, err := strconv.Atoi(remaining[1])
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("card: invalid port %q", remaining[1])
		}
		cfg.CardHost, cfg.CardPort = remaining[0], port
	default:
		return fmt.Errorf("too many arguments: expected <card-host> <card-port>")
	}
	return nil
}

// describe prints what the relay would do.
func describe(w io.Writer, cfg *config.Config) {
	reader := cfg.ReaderAddress()
	if cfg.TunnelEnabled {
		reader += fmt.Sprintf(" via ssh %s@%s:%d", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
	}
	fmt.Fprintf(w, "reader:  %s (%d attempts)\n", reader, cfg.Retries)

	if cfg.Listen {
		card := fmt.Sprintf("listen :%d", cfg.LocalPort)
		if cfg.KeepOpen {
			card += " (keep open)"
		}
		fmt.Fprintf(w, "card:    %s\n", card)
	} else {
		fmt.Fprintf(w, "card:    dial %s\n", util.FormatAddr(cfg.CardHost, cfg.CardPort))
	}

	var stages []string
	if cfg.Trace {
		stages = append(stages, "log(ReaderSide)")
	}
	for _, s := range cfg.Stages() {
		stages = append(stages, stageString(s))
	}
	if cfg.Trace {
		stages = append(stages, "log(CardSide)")
	}
	if len(stages) == 0 {
		stages = []string{"identity"}
	}
	fmt.Fprintf(w, "chain:   reader > %s > card\n", strings.Join(stages, " > "))

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "metrics: %s\n", cfg.MetricsAddr)
	}
	if cfg.LogFile != "" {
		fmt.Fprintf(w, "log:     %s\n", cfg.LogFile)
	}
}

func stageString(s config.StageSpec) string {
	switch s.Type {
	case config.StageLog:
		return fmt.Sprintf("log(%s)", s.Name)
	case config.StageRewrite:
		dir := s.Direction
		if dir == "" {
			dir = "both"
		}
		return fmt.Sprintf("rewrite(%s %s => %s)", dir, s.Match, s.Replace)
	case config.StageText, config.StagePcap:
		path := s.Path
		if path == "" {
			path = "-"
		}
		return fmt.Sprintf("%s(%s)", s.Type, path)
	default:
		return s.Type
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `cardrelay - APDU man-in-the-middle for virtual smart card readers v%s

Sits between vpcd (the reader) and a vicc (the card) and passes every
command and response through a chain of middlemen.

Usage:
  cardrelay -l -p <port> [options]               Wait for the card
  cardrelay [options] <card-host> <card-port>    Dial the card
  cardrelay -C <chain.yaml>                      Everything from a chain file

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  cardrelay -l -p 35964 --trace                  Log every APDU
  cardrelay -l -p 35964 -k --pcap relay.pcap     Capture for Wireshark
  cardrelay -T relay@lab-gw -l -p 35964          Reader behind an SSH gateway
  cardrelay -C lab.yaml --metrics-addr :9464     Chain file plus Prometheus
`)
}
