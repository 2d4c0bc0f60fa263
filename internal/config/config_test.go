package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pins.Busy != "GPIO24" || cfg.EntryModeByte() != 0x03 || cfg.BorderByte() != 0xC0 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := st.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if again.Pins != cfg.Pins || again.BorderByte() != cfg.BorderByte() || again.RefreshCron != cfg.RefreshCron {
		t.Errorf("reload = %+v, want %+v", again, cfg)
	}
}

func TestLoadPartialNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "pins:\n  cs: GPIO8\nborder: 64\npolarity: inverted\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Pins.CS != "GPIO8" || cfg.Pins.Reset != "GPIO17" {
		t.Errorf("pins = %+v", cfg.Pins)
	}
	if cfg.BorderByte() != 0x40 {
		t.Errorf("border = %#x, want 0x40", cfg.BorderByte())
	}
	if cfg.EntryModeByte() != 0x03 {
		t.Errorf("entry mode = %#x, want default 0x03", cfg.EntryModeByte())
	}
	if cfg.Polarity != PolarityInverted {
		t.Errorf("polarity = %q", cfg.Polarity)
	}
	if cfg.BusyPoll() != 10*time.Millisecond || cfg.BusyTimeout() != 30*time.Second {
		t.Errorf("durations = %v, %v", cfg.BusyPoll(), cfg.BusyTimeout())
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad polarity", "polarity: black\n", "polarity"},
		{"entry mode", "entry_mode: 9\n", "entry_mode"},
		{"border", "border: 300\n", "border"},
		{"syntax", "pins: [\n", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.yaml), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
}
