package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"epd213/internal/config"
	"epd213/internal/epd"
	"epd213/internal/frame"
	appLog "epd213/internal/log"
	"epd213/internal/refresher"
)

type flagConfig struct {
	configPath string
	framePath  string
	logLevel   string
	once       bool
	clear      bool
	fill       string
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI flags override the config file when set.
	if flags.framePath != "" {
		conf.FramePath = flags.framePath
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level", err)
		os.Exit(2)
	}
	appLog.SetLevel(level)

	polarity, err := frame.ParsePolarity(conf.Polarity)
	if err != nil {
		appLog.Error("invalid polarity", err)
		os.Exit(2)
	}

	appLog.Info("epd213 starting",
		"spi_port", conf.SPIPort,
		"spi_hz", conf.SPIHz,
		"pins", conf.Pins,
		"frame_path", conf.FramePath,
		"polarity", polarity,
		"refresh", conf.RefreshCron,
		"sleep_after_update", conf.SleepAfterUpdate,
		"once", flags.once,
		"clear", flags.clear,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	hw, err := epd.Open(ctx, epd.Wiring{
		SPIPort: conf.SPIPort,
		SPIHz:   conf.SPIHz,
		Reset:   conf.Pins.Reset,
		DC:      conf.Pins.DC,
		CS:      conf.Pins.CS,
		Busy:    conf.Pins.Busy,
	})
	if err != nil {
		appLog.Error("failed to open panel hardware", err)
		cancel()
		os.Exit(1)
	}

	ctrl := epd.New(hw.Lines, hw.Transport, &epd.Opts{
		PollInterval: conf.BusyPoll(),
		BusyTimeout:  conf.BusyTimeout(),
	})
	r := refresher.New(ctrl, refresher.Options{
		EntryMode:  conf.EntryModeByte(),
		Border:     conf.BorderByte(),
		Polarity:   polarity,
		SleepAfter: conf.SleepAfterUpdate,
	})

	code := run(ctx, r, conf, flags)

	// Leave the panel in deep sleep; the image persists without power.
	if err := r.Sleep(); err != nil {
		appLog.Error("failed to put panel to sleep", err)
	}
	if err := hw.Close(); err != nil {
		appLog.Error("failed to close SPI port", err)
	}
	cancel()
	appLog.Info("epd213 exiting", "state", r.State())
	os.Exit(code)
}

func run(ctx context.Context, r *refresher.Refresher, conf *config.Config, flags flagConfig) int {
	if flags.clear {
		fill, err := strconv.ParseUint(flags.fill, 0, 8)
		if err != nil {
			appLog.Error("invalid -fill value", err, "fill", flags.fill)
			return 2
		}
		if err := r.Clear(ctx, byte(fill)); err != nil {
			appLog.Error("clear failed", err)
			return 1
		}
		return 0
	}

	src := refresher.FileSource(conf.FramePath)
	if err := r.Update(ctx, src); err != nil {
		appLog.Error("update failed", err, "frame_path", conf.FramePath)
		if flags.once {
			return 1
		}
	}
	if flags.once {
		return 0
	}

	if err := r.Schedule(ctx, conf.RefreshCron, src); err != nil {
		appLog.Error("scheduler failed", err)
		return 1
	}
	appLog.Info("signal received, shutting down")
	return 0
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/epd213/config.yaml", "Path to config file")
	flag.StringVar(&cfg.framePath, "frame", "", "Packed frame file (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Display the frame once and exit")
	flag.BoolVar(&cfg.clear, "clear", false, "Fill the panel with -fill and exit")
	flag.StringVar(&cfg.fill, "fill", "0xFF", "Fill byte used by -clear")

	flag.Parse()

	return cfg
}
