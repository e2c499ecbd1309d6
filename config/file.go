package config

// file.go - the chain file.
//
// A chain file describes the middleman chain and, optionally, the
// endpoints, so that a lab setup can be reproduced with one argument:
//
//	reader: 127.0.0.1:35963
//	listen: 35964
//	keep_open: true
//	chain:
//	  - type: log
//	    name: ReaderSide
//	  - type: rewrite
//	    direction: in
//	    match: 00 A4 04 00
//	    replace: 00 A4 04 0C
//	  - type: pcap
//	    path: relay.pcap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"cardrelay/util"
)

// File is the on-disk form of a chain file.  Unset fields leave the
// corresponding Config value alone.
type File struct {
	Reader      string        `yaml:"reader"`
	Retries     int           `yaml:"retries"`
	Listen      int           `yaml:"listen"`
	Card        string        `yaml:"card"`
	KeepOpen    bool          `yaml:"keep_open"`
	Timeout     time.Duration `yaml:"timeout"`
	Tunnel      string        `yaml:"tunnel"`
	Trace       bool          `yaml:"trace"`
	Pcap        string        `yaml:"pcap"`
	MetricsAddr string        `yaml:"metrics_addr"`
	LogFile     string        `yaml:"log_file"`
	Chain       []StageSpec   `yaml:"chain"`
}

// ParseFile decodes a chain file.  Unknown keys are rejected so a typo
// does not silently drop a stage option.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads path and overlays it onto cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("chain file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return fmt.Errorf("chain file %s: %w", path, err)
	}
	if err := f.Apply(cfg); err != nil {
		return fmt.Errorf("chain file %s: %w", path, err)
	}
	cfg.ChainFile = path
	return nil
}

// Apply overlays the set fields of f onto cfg.
func (f *File) Apply(cfg *Config) error {
	if f.Reader != "" {
		host, port, err := util.SplitAddr(f.Reader, DefaultReaderPort)
		if err != nil {
			return fmt.Errorf("reader: %w", err)
		}
		cfg.ReaderHost, cfg.ReaderPort = host, port
	}
	if f.Retries > 0 {
		cfg.Retries = f.Retries
	}
	if f.Listen > 0 {
		cfg.Listen = true
		cfg.LocalPort = f.Listen
	}
	if f.Card != "" {
		host, port, err := util.SplitAddr(f.Card, 0)
		if err != nil {
			return fmt.Errorf("card: %w", err)
		}
		cfg.CardHost, cfg.CardPort = host, port
	}
	if f.KeepOpen {
		cfg.KeepOpen = true
	}
	if f.Timeout > 0 {
		cfg.Timeout = f.Timeout
	}
	if f.Tunnel != "" {
		cfg.TunnelSpec = f.Tunnel
	}
	if f.Trace {
		cfg.Trace = true
	}
	if f.Pcap != "" {
		cfg.PcapPath = f.Pcap
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if f.LogFile != "" {
		cfg.LogFile = f.LogFile
	}
	if len(f.Chain) > 0 {
		cfg.Chain = append([]StageSpec(nil), f.Chain...)
	}
	return nil
}
