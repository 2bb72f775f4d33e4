package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

// fakeTapSensor is a TapSensor with scripted status reads.
type fakeTapSensor struct {
	mu         sync.Mutex
	status     TapStatus
	readErr    error
	cfgErr     error
	configured []TapThresholds
}

func (f *fakeTapSensor) ReadStatus() (TapStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.readErr
}

func (f *fakeTapSensor) ConfigureThresholds(t TapThresholds) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, t)
	return f.cfgErr
}

// fakeLight is a LightSensor whose reading can change while a session runs.
type fakeLight struct {
	mu  sync.Mutex
	v   uint16
	err error
}

func (f *fakeLight) ReadLight() (uint16, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v, f.err
}

func (f *fakeLight) set(v uint16, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v, f.err = v, err
}

// emitted is one note recorded by recordingEmitter.
type emitted struct {
	kind     NoteKind
	pitch    uint8
	velocity uint8
	at       time.Time
}

// recordingEmitter is a NoteEmitter that records every call. When failOn is
// set, NoteOn calls return it (after recording).
type recordingEmitter struct {
	mu     sync.Mutex
	notes  []emitted
	failOn error
}

func (r *recordingEmitter) NoteOn(pitch, velocity uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, emitted{kind: NoteOn, pitch: pitch, velocity: velocity, at: time.Now()})
	return r.failOn
}

func (r *recordingEmitter) NoteOff(pitch uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, emitted{kind: NoteOff, pitch: pitch, at: time.Now()})
	return nil
}

func (r *recordingEmitter) snapshot() []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitted(nil), r.notes...)
}

func (r *recordingEmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

// recordingSink is a FrameSink that keeps every frame.
type recordingSink struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

func (s *recordingSink) SendFrame(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) snapshot() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// fakeMotor records every duty written.
type fakeMotor struct {
	mu   sync.Mutex
	duty []uint16
	err  error
}

func (m *fakeMotor) SetDuty(d uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duty = append(m.duty, d)
	return m.err
}

func (m *fakeMotor) writes() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16(nil), m.duty...)
}

// goSpawner runs spawned tasks on plain goroutines with ctx.
type goSpawner struct {
	ctx  context.Context
	wg   sync.WaitGroup
	fail bool
}

func (s *goSpawner) Spawn(_ string, fn func(ctx context.Context)) error {
	if s.fail {
		return errors.New("spawner closed")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return nil
}

// playerRig wires a Player against fakes.
type playerRig struct {
	out      *recordingEmitter
	motor    *fakeMotor
	light    *fakeLight
	control  *ControlValueStore
	actuator *ActuatorArbiter
	modes    *ModeBroadcaster
	player   *Player
}

func newPlayerRig(t *testing.T) *playerRig {
	t.Helper()
	logger := testLogger()
	r := &playerRig{
		out:     &recordingEmitter{},
		motor:   &fakeMotor{},
		light:   &fakeLight{v: 0xFFFF},
		control: NewControlValueStore(),
		modes:   NewModeBroadcaster("drums", logger),
	}
	r.actuator = NewActuatorArbiter(r.motor, defaultActuatorIntensity, logger)
	r.player = NewPlayer(r.out, r.actuator, r.light, r.control, r.modes, PlayerConfig{
		LightThreshold: defaultLightThreshold,
		LightRepoll:    5 * time.Millisecond,
	}, logger)
	return r
}

func mustLibrary(t *testing.T, seqs ...NoteSequence) *SongLibrary {
	t.Helper()
	lib, err := NewSongLibrary(seqs...)
	if err != nil {
		t.Fatalf("NewSongLibrary: %v", err)
	}
	return lib
}
