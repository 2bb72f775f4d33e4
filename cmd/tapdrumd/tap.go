package main

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// TapKind classifies one accelerometer gesture.
type TapKind int

const (
	TapSingle TapKind = iota + 1
	TapDouble
	TapComboBoth
)

func (k TapKind) String() string {
	switch k {
	case TapSingle:
		return "single"
	case TapDouble:
		return "double"
	case TapComboBoth:
		return "combo"
	default:
		return fmt.Sprintf("TapKind(%d)", int(k))
	}
}

// TapStatus is the decoded interrupt-status register of one accelerometer.
type TapStatus struct {
	Single bool
	Double bool
}

// TapThresholds holds the tap-detection tuning written at startup.
type TapThresholds struct {
	Threshold uint8 // tap threshold (range dependent)
	Duration  uint8 // TAP_DUR, 3 bits
	Shock     uint8 // TAP_SHOCK, 1 bit
	Quiet     uint8 // TAP_QUIET, 1 bit
}

// TapSensor is the capability surface of one accelerometer instance.
// Register layout is a driver concern (see hw_periph.go).
type TapSensor interface {
	ReadStatus() (TapStatus, error)
	ConfigureThresholds(TapThresholds) error
}

// TapChannel is one configured accelerometer. Read-only after initialization.
type TapChannel struct {
	ID         string
	Sensor     TapSensor
	Thresholds TapThresholds
}

// TapEvent is a classified gesture for one poll cycle.
// For TapComboBoth, Channels lists every channel that reported a single tap.
type TapEvent struct {
	Channel  string
	Channels []string
	Kind     TapKind
	At       time.Time
}

// TapClassifier polls every channel once per cycle and classifies gestures.
type TapClassifier struct {
	channels []TapChannel
	logger   *slog.Logger
	now      func() time.Time
}

// NewTapClassifier builds a classifier over the given channels.
func NewTapClassifier(channels []TapChannel, logger *slog.Logger) *TapClassifier {
	return &TapClassifier{
		channels: channels,
		logger:   logger,
		now:      time.Now,
	}
}

// Configure writes thresholds to every channel. All channels are attempted;
// the combined error is returned.
func (c *TapClassifier) Configure() error {
	var err error
	for _, ch := range c.channels {
		if cerr := ch.Sensor.ConfigureThresholds(ch.Thresholds); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("configure tap channel %s: %w", ch.ID, cerr))
			continue
		}
		c.logger.Debug("tap channel configured", "channel", ch.ID, "threshold", ch.Thresholds.Threshold)
	}
	return err
}

// Poll reads every channel's status once and returns the gestures for this cycle.
//
// Two or more channels reporting a single tap in the same cycle collapse into
// one TapComboBoth event; the individual singles are not reported.
// A channel whose status read fails contributes nothing this cycle.
func (c *TapClassifier) Poll() []TapEvent {
	now := c.now()

	var singles []string
	var events []TapEvent

	for _, ch := range c.channels {
		st, err := ch.Sensor.ReadStatus()
		if err != nil {
			c.logger.Warn("tap status read failed", "channel", ch.ID, "error", err)
			continue
		}
		if st.Single {
			singles = append(singles, ch.ID)
		}
		if st.Double {
			events = append(events, TapEvent{Channel: ch.ID, Kind: TapDouble, At: now})
		}
	}

	switch {
	case len(singles) >= 2:
		combo := TapEvent{
			Channel:  strings.Join(singles, "+"),
			Channels: singles,
			Kind:     TapComboBoth,
			At:       now,
		}
		events = append([]TapEvent{combo}, events...)
	case len(singles) == 1:
		single := TapEvent{Channel: singles[0], Channels: singles, Kind: TapSingle, At: now}
		events = append([]TapEvent{single}, events...)
	}

	return events
}
