package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LightSensor returns an ambient-light sample scaled to 16 bits (0-65535).
type LightSensor interface {
	ReadLight() (uint16, error)
}

// lightGate decides whether timed playback may proceed.
type lightGate struct {
	sensor    LightSensor
	threshold uint16
}

// clear reports whether the reading is above the threshold.
// A read failure is treated as gated.
func (g lightGate) clear() bool {
	if g.sensor == nil {
		return true
	}
	v, err := g.sensor.ReadLight()
	if err != nil {
		return false
	}
	return v > g.threshold
}

// iioLightSensor reads a raw ADC channel exposed by the Linux IIO subsystem,
// e.g. /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type iioLightSensor struct {
	path string
	bits int // ADC resolution
}

func newIIOLightSensor(path string, bits int) (*iioLightSensor, error) {
	if bits <= 0 || bits > 16 {
		return nil, fmt.Errorf("light sensor resolution %d bits out of range 1..16", bits)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("light sensor: %w", err)
	}
	return &iioLightSensor{path: path, bits: bits}, nil
}

func (s *iioLightSensor) ReadLight() (uint16, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return scaleSample(raw, s.bits), nil
}

// scaleSample left-aligns an n-bit sample into 16 bits, clamping out-of-range input.
func scaleSample(raw, bits int) uint16 {
	maxRaw := 1<<bits - 1
	switch {
	case raw < 0:
		raw = 0
	case raw > maxRaw:
		raw = maxRaw
	}
	return uint16(raw << (16 - bits))
}
