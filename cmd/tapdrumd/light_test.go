package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestLightGate_Threshold(t *testing.T) {
	light := &fakeLight{}
	g := lightGate{sensor: light, threshold: 5000}

	cases := []struct {
		v    uint16
		err  error
		want bool
	}{
		{0, nil, false},
		{5000, nil, false},
		{5001, nil, true},
		{65535, nil, true},
		{65535, errors.New("adc"), false},
	}
	for _, tc := range cases {
		light.set(tc.v, tc.err)
		if got := g.clear(); got != tc.want {
			t.Fatalf("reading %d err=%v: expected clear=%v, got %v", tc.v, tc.err, tc.want, got)
		}
	}

	if !(lightGate{}).clear() {
		t.Fatalf("expected gate without sensor to be open")
	}
}

func TestScaleSample(t *testing.T) {
	cases := []struct {
		raw, bits int
		want      uint16
	}{
		{0, 12, 0},
		{4095, 12, 0xFFF0},
		{5000, 12, 0xFFF0}, // clamped
		{-3, 12, 0},
		{1, 16, 1},
		{512, 10, 0x8000},
	}
	for _, tc := range cases {
		if got := scaleSample(tc.raw, tc.bits); got != tc.want {
			t.Fatalf("scaleSample(%d, %d): expected 0x%04x, got 0x%04x", tc.raw, tc.bits, tc.want, got)
		}
	}
}

func TestIIOLightSensor_ReadsSysfsValue(t *testing.T) {
	p := filepath.Join(t.TempDir(), "in_voltage0_raw")
	if err := os.WriteFile(p, []byte("2048\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := newIIOLightSensor(p, 12)
	if err != nil {
		t.Fatalf("newIIOLightSensor: %v", err)
	}
	v, err := s.ReadLight()
	if err != nil {
		t.Fatalf("ReadLight: %v", err)
	}
	if v != 0x8000 {
		t.Fatalf("expected 0x8000, got 0x%04x", v)
	}

	if err := os.WriteFile(p, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.ReadLight(); err == nil {
		t.Fatalf("expected parse error")
	}

	if _, err := newIIOLightSensor(filepath.Join(t.TempDir(), "missing"), 12); err == nil {
		t.Fatalf("expected error for missing sysfs node")
	}
	if _, err := newIIOLightSensor(p, 0); err == nil {
		t.Fatalf("expected error for 0-bit resolution")
	}
}

func TestWaitUntil(t *testing.T) {
	var calls atomic.Int32
	if err := WaitUntil(context.Background(), time.Hour, func() bool {
		calls.Add(1)
		return true
	}); err != nil {
		t.Fatalf("expected immediate return, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one predicate call, got %d", calls.Load())
	}

	calls.Store(0)
	if err := WaitUntil(context.Background(), 2*time.Millisecond, func() bool {
		return calls.Add(1) >= 3
	}); err != nil {
		t.Fatalf("WaitUntil: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := WaitUntil(ctx, 2*time.Millisecond, func() bool { return false }); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleepCtx did not return promptly")
	}
	if err := sleepCtx(context.Background(), 0); err != nil {
		t.Fatalf("expected nil for zero duration, got %v", err)
	}
}
