package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.uber.org/multierr"
)

// ============================================================================
// Daemon wiring
// ============================================================================
//
// Hardware is opened once at startup (openHardware); everything after that is
// I/O behind small interfaces so the daemon can run against fakes.
//
// Event loop tasks:
//   - inbound pump     (poll.inbox_ms)   inbox -> controller
//   - tap poll         (poll.tap_ms)     classifier -> controller
//   - button debounce  (poll.button_ms)  one task per button
//   - services         ws hub, mode broadcaster, IPC, HTTP, evdev reader
//   - playback         spawned per session by the controller
// ============================================================================

// hardware is the set of opened devices.
type hardware struct {
	taps    []TapChannel
	buttons []*Button
	light   LightSensor
	motor   Motor
	sink    FrameSink
	evdev   *evdevKeys

	closers []io.Closer
}

// Close releases every device, returning the combined error.
func (hw *hardware) Close() error {
	var err error
	for i := len(hw.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, hw.closers[i].Close())
	}
	return err
}

// openHardware opens the devices named by cfg. On error, anything already
// opened is closed.
func openHardware(cfg Config, logger *slog.Logger) (_ *hardware, err error) {
	hw := &hardware{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, hw.Close())
		}
	}()

	for _, t := range cfg.Taps {
		s, err := openAccelSensor(t.Bus, t.Address())
		if err != nil {
			return nil, fmt.Errorf("tap %s: %w", t.ID, err)
		}
		hw.closers = append(hw.closers, s)
		hw.taps = append(hw.taps, TapChannel{ID: t.ID, Sensor: s, Thresholds: t.Thresholds()})
	}

	var evdevDevices []string
	for _, b := range cfg.Buttons {
		if b.Source == "evdev" {
			evdevDevices = append(evdevDevices, b.Device)
		}
	}
	if len(evdevDevices) > 0 {
		keys, err := openEvdevKeys(uniqueStrings(evdevDevices), logger)
		if err != nil {
			return nil, err
		}
		hw.closers = append(hw.closers, keys)
		hw.evdev = keys
	}

	for _, b := range cfg.Buttons {
		var level ButtonLevel
		switch b.Source {
		case "gpio":
			gb, err := openGPIOButton(b.Pin)
			if err != nil {
				return nil, fmt.Errorf("button %s: %w", b.ID, err)
			}
			level = gb
		case "evdev":
			level = hw.evdev.Key(b.Device, uint16(b.Code))
		}
		hw.buttons = append(hw.buttons, &Button{ID: b.ID, Level: level, Action: b.ToAction()})
	}

	if cfg.Light.Source == "iio" {
		ls, err := newIIOLightSensor(cfg.Light.Path, cfg.Light.Bits)
		if err != nil {
			return nil, err
		}
		hw.light = ls
	}

	if cfg.Actuator.Pin != "" {
		m, err := openPWMMotor(cfg.Actuator.Pin, cfg.Actuator.FreqHz)
		if err != nil {
			return nil, fmt.Errorf("actuator: %w", err)
		}
		hw.motor = m
	}

	sink, err := openFrameSink(cfg.Output, logger)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	hw.closers = append(hw.closers, sink)
	hw.sink = sink

	return hw, nil
}

// daemon is the wired controller and its event loop.
type daemon struct {
	cfg    Config
	logger *slog.Logger

	loop       *EventLoop
	inbox      *Inbox
	control    *ControlValueStore
	actuator   *ActuatorArbiter
	modes      *ModeBroadcaster
	player     *Player
	classifier *TapClassifier
	ctrl       *Controller
	display    *DisplayServer
	hw         *hardware
}

func newDaemon(cfg Config, hw *hardware, lib *SongLibrary, logger *slog.Logger) *daemon {
	d := &daemon{
		cfg:    cfg,
		logger: logger,
		hw:     hw,
		loop:   NewEventLoop(logger.With("task", "loop")),
		inbox:  NewInbox(64),
	}

	d.control = NewControlValueStore()
	d.actuator = NewActuatorArbiter(hw.motor, uint16(cfg.Actuator.Intensity), logger)
	d.modes = NewModeBroadcaster(cfg.Display.IdleToken, logger)

	out := NewNoteOutput(hw.sink, uint8(cfg.Output.Channel))
	d.player = NewPlayer(out, d.actuator, hw.light, d.control, d.modes, cfg.ToPlayerConfig(), logger)
	d.classifier = NewTapClassifier(hw.taps, logger)

	d.ctrl = NewController(ControllerDeps{
		Player:   d.player,
		Library:  lib,
		Control:  d.control,
		Actuator: d.actuator,
		Modes:    d.modes,
		Spawner:  d.loop,
		Taps:     cfg.TapBindings(),
	}, cfg.Control.StartArmed, logger)

	d.display = NewDisplayServer(logger, d.modes, d.inbox, HubConfig{})
	return d
}

// Run configures the tap sensors, registers every task and blocks until ctx ends.
func (d *daemon) Run(ctx context.Context) error {
	if err := d.classifier.Configure(); err != nil {
		// Unconfigured sensors still report taps with their power-on tuning.
		d.logger.Warn("tap configuration incomplete", "error", err)
	}

	poll := func(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

	d.loop.Every("inbound", poll(d.cfg.Poll.InboxMS), func(context.Context) {
		for _, msg := range d.inbox.Drain() {
			d.ctrl.HandleInbound(msg)
		}
	})

	d.loop.Every("taps", poll(d.cfg.Poll.TapMS), func(context.Context) {
		for _, ev := range d.classifier.Poll() {
			d.ctrl.HandleTap(ev)
		}
	})

	for _, b := range d.hw.buttons {
		b := b
		d.loop.Every("button:"+b.ID, poll(d.cfg.Poll.ButtonMS), func(context.Context) {
			if b.Sample(d.logger) {
				d.ctrl.HandleButton(b)
			}
		})
	}

	d.loop.Go("ws_hub", func(ctx context.Context) error {
		d.display.Hub().Run(ctx)
		return nil
	})
	d.loop.Go("mode_broadcaster", func(ctx context.Context) error {
		RunModeBroadcaster(ctx, d.display.Hub(), d.modes, d.logger)
		return nil
	})

	if d.hw.evdev != nil {
		d.loop.Go("evdev", d.hw.evdev.Run)
	}

	if d.cfg.IPC.SocketPath != "" {
		ipc := NewIPCServer(d.cfg.IPC.SocketPath, d.inbox, d.ctrl.Status, d.logger)
		d.loop.Go("ipc", ipc.Run)
	}

	if d.cfg.HTTP.Listen != "" {
		router := newRouter(d.ctrl, d.inbox, d.display, d.logger)
		d.loop.Go("http", func(ctx context.Context) error {
			return runHTTPServer(ctx, d.cfg.HTTP.Listen, router, d.logger)
		})
	}

	err := d.loop.Run(ctx)

	// Sessions are gone once the loop returns; leave the motor off.
	d.actuator.Off()
	return err
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
