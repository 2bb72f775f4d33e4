package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

const version = "1.0.0"

func printVersion() {
	fmt.Printf("tapdrumd v%s\n", version)
	fmt.Println("Gesture-driven drum controller daemon")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  tapdrumd [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Turns accelerometer taps and button presses into percussion notes,")
	fmt.Println("  replays stored note sequences with light gating and control-value")
	fmt.Println("  velocity modulation, and publishes the current mode to displays.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        YAML config file (default: built-in two-pad kit)")
	fmt.Println()
	fmt.Println("  -songs string")
	fmt.Println("        YAML song library (overrides songs_file; default: built-in songs)")
	fmt.Println()
	fmt.Println("  -output string")
	fmt.Println("        Note output: log|serial|midi (default \"log\")")
	fmt.Println()
	fmt.Println("  -serial-device string")
	fmt.Println("        Serial device for output kind serial (e.g. /dev/ttyACM0)")
	fmt.Println()
	fmt.Println("  -midi-port string")
	fmt.Println("        MIDI output port name (substring match) for output kind midi")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/tapdrum.sock\")")
	fmt.Println()
	fmt.Println("  -http-listen string")
	fmt.Println("        HTTP/WebSocket listen address (default \":3002\"; empty disables)")
	fmt.Println()
	fmt.Println("  -start-armed")
	fmt.Println("        Start with the controller armed (default true)")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run the built-in kit, logging notes instead of sending them")
	fmt.Println("  tapdrumd")
	fmt.Println()
	fmt.Println("  # Send frames to the synth board over USB serial")
	fmt.Println("  tapdrumd -config /etc/tapdrum.yaml -output serial -serial-device /dev/ttyACM0")
	fmt.Println()
	fmt.Println("  # Drive a software synth")
	fmt.Println("  tapdrumd -output midi -midi-port FluidSynth")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - Requires access to /dev/i2c-*, /dev/gpiochip* and input devices")
	fmt.Println("  - Control tools: tapdrum-ctl (IPC), tapdrum-display (WebSocket)")
	fmt.Println()
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath    = flag.String("config", "", "YAML config file")
		songsFile     = flag.String("songs", "", "YAML song library")
		outputKind    = flag.String("output", "log", "Note output: log|serial|midi")
		serialDevice  = flag.String("serial-device", "", "Serial device for output kind serial")
		midiPort      = flag.String("midi-port", "", "MIDI output port name")
		ipcSocketPath = flag.String("ipc-socket", "/tmp/tapdrum.sock", "Unix domain socket path for IPC")
		httpListen    = flag.String("http-listen", ":3002", "HTTP/WebSocket listen address")
		startArmed    = flag.Bool("start-armed", true, "Start with the controller armed")
		logLevelStr   = flag.String("log-level", "info", "Log level: error, warn, info, debug")
		_             = flag.Bool("version", false, "Print version and exit")
		_             = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		loaded, err := LoadConfigFile(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	// Only flags given on the command line override the file.
	var ov FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "songs":
			ov.SongsFile = songsFile
		case "output":
			ov.OutputKind = outputKind
		case "serial-device":
			ov.SerialDevice = serialDevice
		case "midi-port":
			ov.MIDIPort = midiPort
		case "ipc-socket":
			ov.IPCSocketPath = ipcSocketPath
		case "http-listen":
			ov.HTTPListen = httpListen
		case "start-armed":
			ov.StartArmed = startArmed
		case "log-level":
			ov.LogLevel = logLevelStr
		}
	})
	ov.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("config: %w", err))
	}

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fatal(err)
	}
	logger := setupLogger(logLevel)

	var lib *SongLibrary
	if cfg.SongsFile != "" {
		lib, err = LoadSongFile(cfg.SongsFile)
	} else {
		lib, err = builtinLibrary()
	}
	if err != nil {
		fatal(fmt.Errorf("songs: %w", err))
	}
	if err := cfg.ValidateSequences(lib); err != nil {
		fatal(fmt.Errorf("config: %w", err))
	}

	if code := run(cfg, lib, logger); code != 0 {
		os.Exit(code)
	}
}

// run owns the hardware for the daemon's lifetime and returns the exit code,
// so deferred closes happen before the process exits.
func run(cfg Config, lib *SongLibrary, logger *slog.Logger) int {
	hw, err := openHardware(cfg, logger)
	if err != nil {
		logger.Error("failed to open hardware", "error", err, "tip", "run as root or add user to 'i2c', 'gpio' and 'input' groups")
		return 1
	}
	defer func() {
		if err := hw.Close(); err != nil {
			logger.Warn("hardware close", "error", err)
		}
	}()

	logger.Debug("starting tapdrumd", "version", version)
	logger.Debug("configuration",
		"taps", len(cfg.Taps),
		"buttons", len(cfg.Buttons),
		"light_source", cfg.Light.Source,
		"light_threshold", cfg.Light.Threshold,
		"actuator_pin", cfg.Actuator.Pin,
		"output_kind", cfg.Output.Kind,
		"midi_channel", cfg.Output.Channel,
		"start_armed", cfg.Control.StartArmed,
		"songs", lib.IDs())
	logger.Info("listening", "ipc", cfg.IPC.SocketPath, "http", cfg.HTTP.Listen, "output", cfg.Output.Kind)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newDaemon(cfg, hw, lib, logger).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon stopped", "error", err)
		return 1
	}
	logger.Info("shutting down")
	return 0
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
