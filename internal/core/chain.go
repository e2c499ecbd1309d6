package core

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"cardrelay/config"
	"cardrelay/internal/metrics"
	"cardrelay/middleman"
	"cardrelay/middleman/debug"
)

// ChainOptions carries what the stages write to.
type ChainOptions struct {
	// Trace wraps the chain in a ReaderSide and a CardSide logger, so
	// the log shows each PDU as the reader and the card saw it.
	Trace bool
	// Stdout receives log and text stages.  Nil means os.Stdout.
	Stdout io.Writer
	// Metrics, when set, counts PDUs at the reader end unless the chain
	// already has a metrics stage.
	Metrics *metrics.Collector
}

// Chain is a composed middleman chain together with the files its
// stages write to.
type Chain struct {
	middleman.Middleman
	closers []io.Closer
}

// Close closes every file opened for the chain.
func (c *Chain) Close() error {
	var first error
	for _, cl := range c.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}

// BuildChain turns stage specs into middlemen and composes them, the
// first spec nearest the reader.
func BuildChain(specs []config.StageSpec, opts ChainOptions) (*Chain, error) {
	c := &Chain{}
	var members []middleman.Middleman

	hasMetrics := false
	for _, s := range specs {
		if s.Type == config.StageMetrics {
			hasMetrics = true
		}
	}
	if opts.Metrics != nil && !hasMetrics {
		members = append(members, opts.Metrics.Middleman())
	}

	for i, s := range specs {
		m, err := c.stage(s, opts)
		if err != nil {
			c.Close() //nolint:errcheck
			return nil, fmt.Errorf("chain[%d] %s: %w", i, s.Type, err)
		}
		members = append(members, m)
	}

	if opts.Trace {
		members = append([]middleman.Middleman{logger(opts.Stdout, "ReaderSide")}, members...)
		members = append(members, logger(opts.Stdout, "CardSide"))
	}

	c.Middleman = middleman.Compose(members...)
	return c, nil
}

func (c *Chain) stage(s config.StageSpec, opts ChainOptions) (middleman.Middleman, error) {
	switch s.Type {
	case config.StageLog:
		return logger(opts.Stdout, s.Name), nil
	case config.StageText:
		w := opts.Stdout
		if s.Path != "" && s.Path != "-" {
			f, err := c.create(s.Path)
			if err != nil {
				return nil, err
			}
			w = f
		} else if w == nil {
			w = os.Stdout
		}
		return debug.NewTextTap(w, w), nil
	case config.StagePcap:
		f, err := c.create(s.Path)
		if err != nil {
			return nil, err
		}
		return debug.NewPcapTap(f), nil
	case config.StageMetrics:
		return opts.Metrics.Middleman(), nil
	case config.StageRewrite:
		return newRewriter(s)
	default:
		return nil, fmt.Errorf("unknown stage type %q", s.Type)
	}
}

func (c *Chain) create(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, f)
	return f, nil
}

// logger writes to stdout through ConsoleLogger unless the output was
// redirected.
func logger(w io.Writer, name string) middleman.Middleman {
	if w == nil {
		return middleman.ConsoleLogger(name)
	}
	return middleman.NewLogger(w, name, "In", "Out")
}

// newRewriter replaces every occurrence of Match with Replace in the
// configured direction(s).  PDUs without a match pass unchanged.
func newRewriter(s config.StageSpec) (middleman.Middleman, error) {
	match, err := config.ParseHex(s.Match)
	if err != nil {
		return nil, err
	}
	if len(match) == 0 {
		return nil, fmt.Errorf("empty match")
	}
	replace, err := config.ParseHex(s.Replace)
	if err != nil {
		return nil, err
	}

	rewrite := func(pdu middleman.PDU) (middleman.PDU, error) {
		if !bytes.Contains(pdu, match) {
			return pdu, nil
		}
		return bytes.ReplaceAll(pdu, match, replace), nil
	}

	m := &middleman.Configured{}
	switch strings.ToLower(s.Direction) {
	case "in":
		m.InTransformer = rewrite
	case "out":
		m.OutTransformer = rewrite
	case "", "both":
		m.InTransformer = rewrite
		m.OutTransformer = rewrite
	default:
		return nil, fmt.Errorf("unknown direction %q", s.Direction)
	}
	return m, nil
}
