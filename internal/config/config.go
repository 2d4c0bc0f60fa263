package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Polarity values for Config.Polarity.
const (
	// PolarityFirmware sends frame bytes unchanged; the producer must already
	// use the panel firmware's bit meaning.
	PolarityFirmware = "firmware"
	// PolarityInverted flips every bit before sending.
	PolarityInverted = "inverted"
)

// PinsConfig names the GPIO lines (periph.io gpioreg names, e.g. "GPIO17").
type PinsConfig struct {
	Reset string `yaml:"reset"`
	DC    string `yaml:"dc"`
	// CS is optional; leave empty when spidev drives chip select (CE0/CE1).
	CS   string `yaml:"cs"`
	Busy string `yaml:"busy"`
}

// Config is the top-level application configuration.
type Config struct {
	// SPIPort is the periph.io SPI port name; "" selects the first port.
	SPIPort string `yaml:"spi_port"`
	// SPIHz is the SPI clock frequency.
	SPIHz int64 `yaml:"spi_hz"`

	Pins PinsConfig `yaml:"pins"`

	// BusyPollMs is the busy line polling interval in milliseconds.
	BusyPollMs int `yaml:"busy_poll_ms"`
	// BusyTimeoutSec bounds each wait for the busy line to clear.
	BusyTimeoutSec int `yaml:"busy_timeout_sec"`

	// EntryMode is the RAM data entry mode byte (3 = X+, Y+). Both it and
	// Border are pointers because 0 is a valid value.
	EntryMode *int `yaml:"entry_mode"`
	// Border is the border waveform byte (192 = 0xC0, the controller default).
	Border *int `yaml:"border"`

	// FramePath is the packed frame file produced by an external renderer
	// (stride*height bytes, MSB first).
	FramePath string `yaml:"frame_path"`
	// Polarity is "firmware" or "inverted". There is no safe guess; it has to
	// match what was verified on the actual panel.
	Polarity string `yaml:"polarity"`

	// RefreshCron is a cron-style schedule string (e.g. "*/30 * * * *").
	RefreshCron string `yaml:"refresh"`

	// SleepAfterUpdate puts the panel in deep sleep after each cycle.
	SleepAfterUpdate bool `yaml:"sleep_after_update"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		SPIPort: "",
		SPIHz:   4_000_000,
		Pins: PinsConfig{
			Reset: "GPIO17",
			DC:    "GPIO25",
			Busy:  "GPIO24",
		},
		BusyPollMs:       10,
		BusyTimeoutSec:   30,
		EntryMode:        intPtr(0x03),
		Border:           intPtr(0xC0),
		FramePath:        "/var/lib/epd213/frame.bin",
		Polarity:         PolarityFirmware,
		RefreshCron:      "*/30 * * * *",
		SleepAfterUpdate: true,
		LogLevel:         "info",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.SPIHz <= 0 {
		c.SPIHz = def.SPIHz
	}
	if c.Pins.Reset == "" {
		c.Pins.Reset = def.Pins.Reset
	}
	if c.Pins.DC == "" {
		c.Pins.DC = def.Pins.DC
	}
	if c.Pins.Busy == "" {
		c.Pins.Busy = def.Pins.Busy
	}
	if c.BusyPollMs <= 0 {
		c.BusyPollMs = def.BusyPollMs
	}
	if c.BusyTimeoutSec <= 0 {
		c.BusyTimeoutSec = def.BusyTimeoutSec
	}
	if c.EntryMode == nil {
		c.EntryMode = def.EntryMode
	}
	if c.Border == nil {
		c.Border = def.Border
	}
	if c.FramePath == "" {
		c.FramePath = def.FramePath
	}
	if c.Polarity == "" {
		c.Polarity = def.Polarity
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate rejects values that cannot be sent to the panel.
func (c *Config) Validate() error {
	if c.EntryMode == nil || *c.EntryMode < 0 || *c.EntryMode > 0x07 {
		return fmt.Errorf("config: entry_mode must be in range 0..7")
	}
	if c.Border == nil || *c.Border < 0 || *c.Border > 0xFF {
		return fmt.Errorf("config: border must fit in a byte")
	}
	switch c.Polarity {
	case PolarityFirmware, PolarityInverted:
	default:
		return fmt.Errorf("config: polarity must be %q or %q, got %q", PolarityFirmware, PolarityInverted, c.Polarity)
	}
	return nil
}

// EntryModeByte returns the configured data entry mode.
func (c *Config) EntryModeByte() byte {
	return byte(*c.EntryMode)
}

// BorderByte returns the configured border waveform.
func (c *Config) BorderByte() byte {
	return byte(*c.Border)
}

// BusyPoll returns BusyPollMs as a duration.
func (c *Config) BusyPoll() time.Duration {
	return time.Duration(c.BusyPollMs) * time.Millisecond
}

// BusyTimeout returns BusyTimeoutSec as a duration.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutSec) * time.Second
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshaled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epd213-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

func intPtr(v int) *int { return &v }

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
