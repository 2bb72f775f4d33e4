package main

import (
	"log/slog"
	"sync"
)

// Motor is the physical output behind the arbiter (PWM duty, 16-bit).
type Motor interface {
	SetDuty(duty uint16) error
}

// ActuatorState is the last requested actuator output.
type ActuatorState struct {
	On        bool
	Intensity uint16
}

// ActuatorArbiter drives the single shared actuator.
//
// Exactly one logical owner is expected at a time (the active playback session);
// the arbiter does not queue requests, the most recent call wins.
type ActuatorArbiter struct {
	mu    sync.Mutex
	motor Motor
	level uint16 // intensity applied by On
	state ActuatorState

	logger *slog.Logger
}

// NewActuatorArbiter wraps motor. onLevel is the duty used by On.
func NewActuatorArbiter(motor Motor, onLevel uint16, logger *slog.Logger) *ActuatorArbiter {
	if motor == nil {
		motor = nopMotor{}
	}
	return &ActuatorArbiter{
		motor:  motor,
		level:  onLevel,
		logger: logger,
	}
}

// On drives the actuator at its configured intensity.
func (a *ActuatorArbiter) On() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apply(ActuatorState{On: true, Intensity: a.level})
}

// Off stops the actuator.
func (a *ActuatorArbiter) Off() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apply(ActuatorState{})
}

// SetIntensity changes the on-intensity. If the actuator is on, the new level
// is applied immediately.
func (a *ActuatorArbiter) SetIntensity(level uint16) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.level = level
	if a.state.On {
		a.apply(ActuatorState{On: true, Intensity: level})
	}
}

// State returns the last requested state.
func (a *ActuatorArbiter) State() ActuatorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// apply must be called with mu held.
func (a *ActuatorArbiter) apply(next ActuatorState) {
	if next == a.state {
		return
	}
	a.state = next
	if err := a.motor.SetDuty(next.Intensity); err != nil {
		a.logger.Warn("actuator write failed", "on", next.On, "intensity", next.Intensity, "error", err)
	}
}

type nopMotor struct{}

func (nopMotor) SetDuty(uint16) error { return nil }
