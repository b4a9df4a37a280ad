package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/integrii/flaggy"
	"go.uber.org/zap"

	"github.com/merovir/lockin"
	"github.com/merovir/lockin/decide"
	"github.com/merovir/lockin/input"

	_ "github.com/merovir/lockin/input/cyton"
	_ "github.com/merovir/lockin/input/synthetic"
)

// AppName is the app name
const AppName = "lockin"

// AppDesc is the app description
const AppDesc = "real-time SSVEP flicker-frequency detector"

// AppSite is the app website
const AppSite = "https://github.com/merovir/lockin"

var version = "unknown"

func main() {
	log.SetFlags(0)

	cfg := newZeroConfig()

	if doFlags(&cfg) {
		return
	}

	runCfg, err := cfg.build()
	chk(err, "invalid config")
	chk(runCfg.Validate(), "invalid config")

	logger := zap.NewNop()
	if runCfg.LoggingEnabled {
		logger, err = newLogger()
		chk(err, "failed to set up logging")
		defer logger.Sync()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sink := decide.SinkFunc(func(ev decide.Event) {
		if ev.None {
			fmt.Println("SELECT none")
			return
		}
		fmt.Printf("SELECT %g (snr=%.2f conf=%.2f)\n", ev.Freq, ev.SNR, ev.Confidence)
	})

	chk(lockin.Run(ctx, runCfg, sink, nil, logger), "failed to run lockin")
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}

func doFlags(cfg *config) bool {

	parser := flaggy.NewParser(AppName)
	parser.Description = AppDesc
	parser.AdditionalHelpPrepend = AppSite
	parser.Version = version

	listBackendsCmd := flaggy.Subcommand{
		Name:        "list-backends",
		ShortName:   "lb",
		Description: "list all supported sources",
	}

	parser.AttachSubcommand(&listBackendsCmd, 1)

	listPortsCmd := flaggy.Subcommand{
		Name:        "list-ports",
		ShortName:   "lp",
		Description: "list serial ports a board could be on",
	}

	parser.AttachSubcommand(&listPortsCmd, 1)

	parser.Float64(&cfg.syntheticHz, "s", "synthetic", "use the synthetic source at this frequency (0 for pure noise)")
	parser.String(&cfg.board, "b", "board", "board source name (default cyton)")
	parser.String(&cfg.port, "p", "port", "serial port of the board dongle")
	parser.Bool(&cfg.daisy, "dy", "daisy", "16-channel Cyton+Daisy mode")
	parser.Float64(&cfg.rate, "r", "rate", "sampling rate hint")
	parser.Float64(&cfg.window, "w", "window", "analysis window in seconds")
	parser.Float64(&cfg.step, "st", "step", "hop between detection ticks in seconds")
	parser.String(&cfg.freqs, "f", "freqs", "comma-separated target frequencies in Hz")
	parser.Int(&cfg.harmonics, "hm", "harmonics", "harmonics per target (1 = fundamental only)")
	parser.Bool(&cfg.occipitalOnly, "o", "occipital-only", "analyze only the occipital channel preset")
	parser.String(&cfg.channels, "ch", "channels", "comma-separated channel indices to analyze")
	parser.Int(&cfg.holdMS, "hd", "hold", "vote hold time in milliseconds")
	parser.Float64(&cfg.minSNR, "m", "min-snr", "minimum SNR for a tick to count")
	parser.Float64(&cfg.notch, "n", "notch", "mains notch frequency (50 or 60, 0 to disable)")
	parser.Float64(&cfg.synthSNR, "ss", "synthetic-snr", "synthetic stimulus-to-noise amplitude ratio")
	parser.UInt64(&cfg.synthSeed, "sd", "seed", "synthetic generator seed")
	parser.String(&cfg.configPath, "c", "config", "YAML config file to overlay")
	parser.Bool(&cfg.quiet, "q", "quiet", "disable per-tick logging")

	chk(parser.Parse(), "failed to parse arguments")

	switch {
	case listBackendsCmd.Used:
		for _, backend := range input.Backends {
			fmt.Printf("- %s\n", backend.Name)
		}

		return true

	case listPortsCmd.Used:
		backend, err := input.InitBackend("cyton")
		chk(err, "failed to init backend")

		devices, err := backend.Devices()
		chk(err, "failed to list serial ports")

		for idx := range devices {
			fmt.Printf("- %v\n", devices[idx])
		}

		return true
	}

	return false
}

func chk(err error, wrap string) {
	if err != nil {
		log.Fatalln(wrap+": ", err)
	}
}
