package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the tapdrum daemon.
//
// Defaults and validation live here so the rest of the code can assume a
// well-formed config.
type Config struct {
	// Accelerometer tap channels
	Taps []TapConfig `yaml:"taps"`

	// Momentary buttons (GPIO or evdev)
	Buttons []ButtonConfig `yaml:"buttons"`

	Light    LightConfig    `yaml:"light"`
	Actuator ActuatorConfig `yaml:"actuator"`
	Output   OutputConfig   `yaml:"output"`
	Control  ControlConfig  `yaml:"control"`
	Display  DisplayConfig  `yaml:"display"`
	IPC      IPCConfig      `yaml:"ipc"`
	HTTP     HTTPConfig     `yaml:"http"`
	Poll     PollConfig     `yaml:"poll"`

	// YAML song library
	SongsFile string `yaml:"songs_file"`

	Logging LoggingConfig `yaml:"logging"`
}

type TapConfig struct {
	ID        string `yaml:"id"`
	Bus       string `yaml:"bus"`            // i2creg bus name, e.g. "1" or "/dev/i2c-1"
	Addr      int    `yaml:"addr,omitempty"` // 0 means the default sensor address
	Note      int    `yaml:"note"`
	DoubleTap string `yaml:"double_tap,omitempty"` // sequence id

	// Detection tuning. Threshold/duration 0 and nil shock/quiet mean defaults.
	Threshold int  `yaml:"threshold,omitempty"`
	Duration  int  `yaml:"duration,omitempty"`
	Shock     *int `yaml:"shock,omitempty"`
	Quiet     *int `yaml:"quiet,omitempty"`
}

type ButtonConfig struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"` // "gpio" or "evdev"

	Pin string `yaml:"pin,omitempty"` // gpio

	Device string `yaml:"device,omitempty"` // evdev
	Code   int    `yaml:"code,omitempty"`   // evdev key code

	Action   string `yaml:"action"`             // "strike" or "play"
	Notes    []int  `yaml:"notes,omitempty"`    // strike
	Velocity int    `yaml:"velocity,omitempty"` // strike; 0 follows the control value
	Sequence string `yaml:"sequence,omitempty"` // play
}

type LightConfig struct {
	Source    string `yaml:"source"` // "" (no sensor, gate always open) or "iio"
	Path      string `yaml:"path,omitempty"`
	Bits      int    `yaml:"bits,omitempty"`
	Threshold int    `yaml:"threshold"`
	RepollMS  int    `yaml:"repoll_ms"`
}

type ActuatorConfig struct {
	Pin       string `yaml:"pin,omitempty"` // empty disables the motor
	FreqHz    int    `yaml:"freq_hz"`
	Intensity int    `yaml:"intensity"` // 16-bit duty
}

type OutputConfig struct {
	Kind         string `yaml:"kind"` // "log", "serial" or "midi"
	SerialDevice string `yaml:"serial_device,omitempty"`
	BaudRate     int    `yaml:"baud_rate,omitempty"`
	MIDIPort     string `yaml:"midi_port,omitempty"`
	Channel      int    `yaml:"channel"`
}

type ControlConfig struct {
	StartArmed bool `yaml:"start_armed"`
}

type DisplayConfig struct {
	IdleToken string `yaml:"idle_token"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Listen string `yaml:"listen"` // empty disables the HTTP/WS surface
}

type PollConfig struct {
	TapMS    int `yaml:"tap_ms"`
	ButtonMS int `yaml:"button_ms"`
	InboxMS  int `yaml:"inbox_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config for the two-pad drum kit.
func DefaultConfig() Config {
	return Config{
		Taps: []TapConfig{
			{ID: "short", Bus: "0", Note: 50},
			{ID: "tall", Bus: "1", Note: 35, DoubleTap: "pirate"},
		},
		Buttons: []ButtonConfig{
			{ID: "bass", Source: "gpio", Pin: "GPIO17", Action: "strike", Notes: []int{36, 49}},
			{ID: "keyboard", Source: "gpio", Pin: "GPIO16", Action: "play", Sequence: "key"},
		},
		Light: LightConfig{
			Bits:      defaultLightBits,
			Threshold: defaultLightThreshold,
			RepollMS:  defaultLightRepollMS,
		},
		Actuator: ActuatorConfig{
			FreqHz:    defaultActuatorFreqHz,
			Intensity: defaultActuatorIntensity,
		},
		Output: OutputConfig{
			Kind:     "log",
			BaudRate: defaultBaudRate,
			Channel:  defaultMIDIChannel,
		},
		Control: ControlConfig{
			StartArmed: true,
		},
		Display: DisplayConfig{
			IdleToken: defaultIdleToken,
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/tapdrum.sock",
		},
		HTTP: HTTPConfig{
			Listen: ":3002",
		},
		Poll: PollConfig{
			TapMS:    defaultTapPollMS,
			ButtonMS: defaultButtonPollMS,
			InboxMS:  defaultInboxPollMS,
		},
		SongsFile: "",
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file over DefaultConfig.
// Unknown fields are rejected.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	var trailing yaml.Node
	if err := dec.Decode(&trailing); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies command-line overrides on top of a loaded config.
// A nil pointer means the flag was not set.
type FlagOverrides struct {
	SongsFile *string

	OutputKind   *string
	SerialDevice *string
	MIDIPort     *string

	IPCSocketPath *string
	HTTPListen    *string

	StartArmed *bool

	LogLevel *string
}

// Apply merges the overrides into cfg. A non-nil pointer is applied even if it
// holds a zero value.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.SongsFile != nil {
		cfg.SongsFile = *o.SongsFile
	}
	if o.OutputKind != nil {
		cfg.Output.Kind = *o.OutputKind
	}
	if o.SerialDevice != nil {
		cfg.Output.SerialDevice = *o.SerialDevice
	}
	if o.MIDIPort != nil {
		cfg.Output.MIDIPort = *o.MIDIPort
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPListen != nil {
		cfg.HTTP.Listen = *o.HTTPListen
	}
	if o.StartArmed != nil {
		cfg.Control.StartArmed = *o.StartArmed
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Taps
	seen := make(map[string]bool)
	for i, t := range c.Taps {
		if t.ID == "" {
			return fmt.Errorf("taps[%d].id must not be empty", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("taps[%d].id %q is duplicated", i, t.ID)
		}
		seen[t.ID] = true
		if t.Bus == "" {
			return fmt.Errorf("taps[%d].bus must not be empty", i)
		}
		if t.Addr < 0 || t.Addr > 0x7F {
			return fmt.Errorf("taps[%d].addr must be a 7-bit I2C address", i)
		}
		if t.Note < 0 || t.Note > maxMIDIValue {
			return fmt.Errorf("taps[%d].note must be between 0 and 127", i)
		}
		if t.Threshold < 0 || t.Threshold > 0x1F {
			return fmt.Errorf("taps[%d].threshold must be between 0 and 31", i)
		}
		if t.Duration < 0 || t.Duration > 0x07 {
			return fmt.Errorf("taps[%d].duration must be between 0 and 7", i)
		}
		if t.Shock != nil && (*t.Shock < 0 || *t.Shock > 1) {
			return fmt.Errorf("taps[%d].shock must be 0 or 1", i)
		}
		if t.Quiet != nil && (*t.Quiet < 0 || *t.Quiet > 1) {
			return fmt.Errorf("taps[%d].quiet must be 0 or 1", i)
		}
	}

	// Buttons
	seen = make(map[string]bool)
	for i, b := range c.Buttons {
		if b.ID == "" {
			return fmt.Errorf("buttons[%d].id must not be empty", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("buttons[%d].id %q is duplicated", i, b.ID)
		}
		seen[b.ID] = true
		switch b.Source {
		case "gpio":
			if b.Pin == "" {
				return fmt.Errorf("buttons[%d].pin must not be empty for source gpio", i)
			}
		case "evdev":
			if b.Device == "" {
				return fmt.Errorf("buttons[%d].device must not be empty for source evdev", i)
			}
			if b.Code <= 0 || b.Code > 0xFFFF {
				return fmt.Errorf("buttons[%d].code must be a key code", i)
			}
		default:
			return fmt.Errorf("buttons[%d].source must be %q or %q", i, "gpio", "evdev")
		}
		for _, n := range b.Notes {
			if n < 0 || n > maxMIDIValue {
				return fmt.Errorf("buttons[%d].notes must be between 0 and 127", i)
			}
		}
		if b.Velocity < 0 || b.Velocity > maxMIDIValue {
			return fmt.Errorf("buttons[%d].velocity must be between 0 and 127", i)
		}
		if err := b.ToAction().validate(); err != nil {
			return fmt.Errorf("buttons[%d]: %w", i, err)
		}
	}

	// Light
	switch c.Light.Source {
	case "":
	case "iio":
		if c.Light.Path == "" {
			return errors.New("light.path must not be empty for source iio")
		}
		if c.Light.Bits <= 0 || c.Light.Bits > 16 {
			return errors.New("light.bits must be between 1 and 16")
		}
	default:
		return fmt.Errorf("light.source must be empty or %q", "iio")
	}
	if c.Light.Threshold < 0 || c.Light.Threshold > 0xFFFF {
		return errors.New("light.threshold must be between 0 and 65535")
	}
	if c.Light.RepollMS <= 0 {
		return errors.New("light.repoll_ms must be > 0")
	}

	// Actuator
	if c.Actuator.FreqHz <= 0 {
		return errors.New("actuator.freq_hz must be > 0")
	}
	if c.Actuator.Intensity < 0 || c.Actuator.Intensity > 0xFFFF {
		return errors.New("actuator.intensity must be between 0 and 65535")
	}

	// Output
	switch c.Output.Kind {
	case "", "log":
	case "serial":
		if c.Output.SerialDevice == "" {
			return errors.New("output.serial_device must not be empty for kind serial")
		}
		if c.Output.BaudRate <= 0 {
			return errors.New("output.baud_rate must be > 0")
		}
	case "midi":
		if c.Output.MIDIPort == "" {
			return errors.New("output.midi_port must not be empty for kind midi")
		}
	default:
		return fmt.Errorf("output.kind must be %q, %q or %q", "log", "serial", "midi")
	}
	if c.Output.Channel < 0 || c.Output.Channel > 15 {
		return errors.New("output.channel must be between 0 and 15")
	}

	// Display
	if c.Display.IdleToken == "" {
		return errors.New("display.idle_token must not be empty")
	}

	// Poll cadence
	if c.Poll.TapMS <= 0 || c.Poll.ButtonMS <= 0 || c.Poll.InboxMS <= 0 {
		return errors.New("poll.tap_ms, poll.button_ms and poll.inbox_ms must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ValidateSequences checks that every sequence referenced by taps and
// buttons exists in lib.
func (c *Config) ValidateSequences(lib *SongLibrary) error {
	for i, t := range c.Taps {
		if t.DoubleTap == "" {
			continue
		}
		if _, err := lib.Lookup(t.DoubleTap); err != nil {
			return fmt.Errorf("taps[%d].double_tap: %w", i, err)
		}
	}
	for i, b := range c.Buttons {
		if b.Action != string(ButtonPlay) {
			continue
		}
		if _, err := lib.Lookup(b.Sequence); err != nil {
			return fmt.Errorf("buttons[%d].sequence: %w", i, err)
		}
	}
	return nil
}

// Thresholds returns the detection tuning with defaults applied.
func (t TapConfig) Thresholds() TapThresholds {
	th := TapThresholds{
		Threshold: defaultTapThr,
		Duration:  defaultTapDur,
		Shock:     defaultTapShk,
		Quiet:     defaultTapQuiet,
	}
	if t.Threshold > 0 {
		th.Threshold = uint8(t.Threshold)
	}
	if t.Duration > 0 {
		th.Duration = uint8(t.Duration)
	}
	if t.Shock != nil {
		th.Shock = uint8(*t.Shock)
	}
	if t.Quiet != nil {
		th.Quiet = uint8(*t.Quiet)
	}
	return th
}

// Address returns the I2C address with the default applied.
func (t TapConfig) Address() uint16 {
	if t.Addr == 0 {
		return defaultAccelAddr
	}
	return uint16(t.Addr)
}

// ToAction converts the YAML action into a ButtonAction.
func (b ButtonConfig) ToAction() ButtonAction {
	notes := make([]uint8, 0, len(b.Notes))
	for _, n := range b.Notes {
		notes = append(notes, uint8(n))
	}
	return ButtonAction{
		Kind:     ButtonActionKind(b.Action),
		Notes:    notes,
		Velocity: uint8(b.Velocity),
		Sequence: b.Sequence,
	}
}

// TapBindings returns the per-channel sounds.
func (c *Config) TapBindings() map[string]TapBinding {
	m := make(map[string]TapBinding, len(c.Taps))
	for _, t := range c.Taps {
		m[t.ID] = TapBinding{Note: uint8(t.Note), DoubleTapSequence: t.DoubleTap}
	}
	return m
}

// ToPlayerConfig converts the light section into player tuning.
func (c *Config) ToPlayerConfig() PlayerConfig {
	return PlayerConfig{
		LightThreshold: uint16(c.Light.Threshold),
		LightRepoll:    time.Duration(c.Light.RepollMS) * time.Millisecond,
	}
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
