package main

import (
	"fmt"
	"log/slog"
)

// ButtonLevel samples a momentary button.
type ButtonLevel interface {
	Pressed() (bool, error)
}

// ButtonState is the debounce state of one button.
type ButtonState int

const (
	ButtonReleased ButtonState = iota
	ButtonPressed
)

func (s ButtonState) String() string {
	if s == ButtonPressed {
		return "pressed"
	}
	return "released"
}

// Debouncer is the two-state button machine. It fires once per
// Pressed -> Released transition; holding the button never repeats.
type Debouncer struct {
	state ButtonState
}

// Update feeds one level sample and reports whether the button fired.
func (d *Debouncer) Update(pressed bool) bool {
	switch d.state {
	case ButtonReleased:
		if pressed {
			d.state = ButtonPressed
		}
		return false
	default:
		if !pressed {
			d.state = ButtonReleased
			return true
		}
		return false
	}
}

// State returns the current debounce state.
func (d *Debouncer) State() ButtonState { return d.state }

// ButtonActionKind is what a button does when it fires.
type ButtonActionKind string

const (
	ButtonStrike ButtonActionKind = "strike" // one-shot notes
	ButtonPlay   ButtonActionKind = "play"   // start a sequence session
)

// ButtonAction is the configured behavior of a button.
type ButtonAction struct {
	Kind     ButtonActionKind
	Notes    []uint8 // strike
	Velocity uint8   // strike
	Sequence string  // play
}

// Button is one configured momentary input.
type Button struct {
	ID     string
	Level  ButtonLevel
	Action ButtonAction

	debounce Debouncer
}

// Sample reads the button once and reports whether it fired. Read errors
// count as no sample; the debounce state is left untouched.
func (b *Button) Sample(logger *slog.Logger) bool {
	pressed, err := b.Level.Pressed()
	if err != nil {
		logger.Warn("button read failed", "button", b.ID, "error", err)
		return false
	}
	return b.debounce.Update(pressed)
}

func (a ButtonAction) validate() error {
	switch a.Kind {
	case ButtonStrike:
		if len(a.Notes) == 0 {
			return fmt.Errorf("strike action has no notes")
		}
	case ButtonPlay:
		if a.Sequence == "" {
			return fmt.Errorf("play action has no sequence")
		}
	default:
		return fmt.Errorf("unknown action %q", a.Kind)
	}
	return nil
}
