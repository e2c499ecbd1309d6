package config

import (
	"errors"
	"strings"
	"testing"

	ncerr "cardrelay/internal/errors"
)

// TestValidate_ErrorMessages verifies that Validate returns actionable
// error messages with hints.
func TestValidate_ErrorMessages(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantField string
		wantSub   string
	}{
		{
			name:      "listen no port has hint",
			cfg:       Config{Listen: true, ReaderHost: "localhost", ReaderPort: 35963},
			wantField: "port",
			wantSub:   "hint: cardrelay -l -p",
		},
		{
			name:      "missing card has hint",
			cfg:       Config{ReaderHost: "localhost", ReaderPort: 35963},
			wantField: "card",
			wantSub:   "hint:",
		},
		{
			name:      "missing reader",
			cfg:       Config{Listen: true, LocalPort: 35964},
			wantField: "reader",
			wantSub:   "35963",
		},
		{
			name: "unknown stage type",
			cfg: Config{Listen: true, LocalPort: 35964, ReaderHost: "localhost", ReaderPort: 35963,
				Chain: []StageSpec{{Type: "log"}, {Type: "tee"}}},
			wantField: "chain[1]",
			wantSub:   "--chain[1]=tee: unknown stage type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			var ce *ncerr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("error %T is not a *ConfigError", err)
			}
			if ce.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ce.Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantSub)
			}
		})
	}
}

func TestStageSpec_Validate(t *testing.T) {
	tests := []struct {
		spec    StageSpec
		wantErr bool
	}{
		{StageSpec{Type: StageLog}, false},
		{StageSpec{Type: StageLog, Name: "ReaderSide"}, false},
		{StageSpec{Type: StageMetrics}, false},
		{StageSpec{Type: StageText}, false},
		{StageSpec{Type: StagePcap, Path: "x.pcap"}, false},
		{StageSpec{Type: StagePcap}, true},
		{StageSpec{Type: StageRewrite, Match: "00A4", Replace: "00A5"}, false},
		{StageSpec{Type: StageRewrite, Direction: "OUT", Match: "6A82", Replace: "9000"}, false},
		{StageSpec{Type: StageRewrite, Match: "00A4"}, false}, // replace with nothing
		{StageSpec{Type: StageRewrite, Replace: "00"}, true},
		{StageSpec{Type: StageRewrite, Match: "0G"}, true},
		{StageSpec{Type: StageRewrite, Match: "00", Replace: "xyz"}, true},
		{StageSpec{Type: StageRewrite, Direction: "sideways", Match: "00"}, true},
		{StageSpec{Type: ""}, true},
	}

	for _, tt := range tests {
		name := tt.spec.Type + "/" + tt.spec.Direction + "/" + tt.spec.Match
		t.Run(name, func(t *testing.T) {
			err := tt.spec.Validate(0)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}
