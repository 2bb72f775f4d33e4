package main

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ControlValueStore holds the most recent externally supplied control scalar
// (the display's potentiometer). Last write wins.
//
// Writers are the inbound pump; readers are the player and tap strikes.
// The value is a single atomic word so no reader ever sees a torn update.
type ControlValueStore struct {
	v atomic.Int32
}

// NewControlValueStore returns a store holding the neutral mid-scale value.
func NewControlValueStore() *ControlValueStore {
	s := &ControlValueStore{}
	s.v.Store(neutralControlValue)
	return s
}

// Set stores v if it lies within [0, 4095]. Out-of-domain values are ignored.
func (s *ControlValueStore) Set(v int) bool {
	if v < 0 || v > maxControlValue {
		return false
	}
	s.v.Store(int32(v))
	return true
}

// SetPayload parses an ASCII-numeric payload and stores it.
// Anything that is not a plain run of decimal digits leaves the store unchanged.
func (s *ControlValueStore) SetPayload(p []byte) bool {
	v, ok := parseControlPayload(p)
	if !ok {
		return false
	}
	return s.Set(v)
}

// Get returns the last stored value.
func (s *ControlValueStore) Get() int {
	return int(s.v.Load())
}

func parseControlPayload(p []byte) (int, bool) {
	str := strings.TrimSpace(string(p))
	if !isDigits(str) {
		return 0, false
	}
	v, err := strconv.Atoi(str)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// controlToVelocity maps the full control range onto a note velocity.
func controlToVelocity(v int) uint8 {
	return clampVelocity(float64(v) / maxControlValue * maxMIDIValue)
}
