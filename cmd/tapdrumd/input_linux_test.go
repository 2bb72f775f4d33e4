//go:build linux

package main

import (
	"context"
	"encoding/binary"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvdevKeys_ApplyTracksLevels(t *testing.T) {
	k := &evdevKeys{pressed: make(map[evdevKeyID]bool), logger: testLogger()}
	dev := "/dev/input/event3"
	key := k.Key(dev, 28)
	other := k.Key("/dev/input/event4", 28)

	steps := []struct {
		ev   inputEvent
		want bool
	}{
		{inputEvent{Type: EV_KEY, Code: 28, Value: evValuePress}, true},
		{inputEvent{Type: EV_KEY, Code: 28, Value: evValueRepeat}, true},
		{inputEvent{Type: 0x00, Code: 28, Value: evValueRelease}, true}, // EV_SYN ignored
		{inputEvent{Type: EV_KEY, Code: 29, Value: evValueRelease}, true},
		{inputEvent{Type: EV_KEY, Code: 28, Value: evValueRelease}, false},
	}
	for i, s := range steps {
		k.apply(dev, s.ev)
		got, err := key.Pressed()
		if err != nil {
			t.Fatalf("step %d: Pressed: %v", i, err)
		}
		if got != s.want {
			t.Fatalf("step %d: expected pressed=%v, got %v", i, s.want, got)
		}
		if p, _ := other.Pressed(); p {
			t.Fatalf("step %d: key on another device reported pressed", i)
		}
	}
}

func TestEvdevKeys_DebouncedThroughButton(t *testing.T) {
	k := &evdevKeys{pressed: make(map[evdevKeyID]bool), logger: testLogger()}
	b := &Button{ID: "pad", Level: k.Key("kbd", 57), Action: ButtonAction{Kind: ButtonPlay, Sequence: "key"}}

	k.apply("kbd", inputEvent{Type: EV_KEY, Code: 57, Value: evValuePress})
	if b.Sample(testLogger()) {
		t.Fatalf("expected no fire on press")
	}
	k.apply("kbd", inputEvent{Type: EV_KEY, Code: 57, Value: evValueRelease})
	if !b.Sample(testLogger()) {
		t.Fatalf("expected fire on release")
	}
}

func TestEvdevKeys_RunWithoutDevices(t *testing.T) {
	k := &evdevKeys{pressed: make(map[evdevKeyID]bool), logger: testLogger()}
	if err := k.Run(context.Background()); err == nil {
		t.Fatalf("expected error without devices")
	}
}

func TestEvdevKeys_HangupDropsDeviceWithoutStoppingLoop(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	k := &evdevKeys{pressed: make(map[evdevKeyID]bool), files: []*os.File{r}, logger: testLogger()}
	defer k.Close()
	key := k.Key(r.Name(), 28)

	var ticks atomic.Int64
	loop := NewEventLoop(testLogger())
	loop.Every("taps", 10*time.Millisecond, func(context.Context) { ticks.Add(1) })
	loop.Go("evdev", k.Run)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	if err := binary.Write(w, binary.LittleEndian, inputEvent{Type: EV_KEY, Code: 28, Value: evValuePress}); err != nil {
		t.Fatalf("write event: %v", err)
	}
	waitUntil(t, time.Second, func() bool {
		p, err := key.Pressed()
		return err == nil && p
	}, "press not observed")

	_ = w.Close()
	waitUntil(t, time.Second, func() bool {
		_, err := key.Pressed()
		return err != nil
	}, "hangup did not fail the key")

	b := &Button{ID: "pad", Level: key}
	if b.Sample(testLogger()) {
		t.Fatalf("expected failed key to yield no sample")
	}

	before := ticks.Load()
	select {
	case err := <-done:
		t.Fatalf("loop stopped after device hangup: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	if ticks.Load() <= before {
		t.Fatalf("tap task stopped ticking after device hangup")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for loop to stop")
	}
}
