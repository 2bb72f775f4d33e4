package main

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSessionActive is returned when playback is requested while another session runs.
	ErrSessionActive = errors.New("playback session already active")

	errSessionNotActive = errors.New("playback session is not the active session")
)

// NoteEmitter is the note-oriented output channel.
type NoteEmitter interface {
	NoteOn(pitch, velocity uint8) error
	NoteOff(pitch uint8) error
}

// PlayerConfig tunes the light gate.
type PlayerConfig struct {
	LightThreshold uint16        // at or below this reading playback holds
	LightRepoll    time.Duration // re-sample interval while held
}

// PlaybackSession is one in-progress traversal of a sequence.
// At most one exists at a time; it is owned by the Player.
type PlaybackSession struct {
	seq       NoteSequence
	source    string
	startedAt time.Time

	// guarded by Player.mu; written only by the Run goroutine
	cursor      time.Duration
	prevControl int

	// Run goroutine only
	sounding map[uint8]int
}

// SessionInfo is a snapshot of the active session.
type SessionInfo struct {
	SequenceID  string
	Source      string
	StartedAt   time.Time
	Cursor      time.Duration
	PrevControl int
}

// Player replays note sequences against wall-clock offsets.
//
// A session exclusively owns the actuator and the note timeline until it ends.
// Tap strikes (Strike) only use the output and never touch the session or actuator.
type Player struct {
	out      NoteEmitter
	actuator *ActuatorArbiter
	gate     lightGate
	control  *ControlValueStore
	modes    *ModeBroadcaster
	cfg      PlayerConfig
	logger   *slog.Logger

	mu      sync.Mutex
	session *PlaybackSession
}

// NewPlayer wires a player. light may be nil (gate always open).
func NewPlayer(
	out NoteEmitter,
	actuator *ActuatorArbiter,
	light LightSensor,
	control *ControlValueStore,
	modes *ModeBroadcaster,
	cfg PlayerConfig,
	logger *slog.Logger,
) *Player {
	if cfg.LightRepoll <= 0 {
		cfg.LightRepoll = time.Duration(defaultLightRepollMS) * time.Millisecond
	}
	return &Player{
		out:      out,
		actuator: actuator,
		gate:     lightGate{sensor: light, threshold: cfg.LightThreshold},
		control:  control,
		modes:    modes,
		cfg:      cfg,
		logger:   logger,
	}
}

// Play runs seq to completion (or until ctx ends) as a new session.
func (p *Player) Play(ctx context.Context, seq NoteSequence, source string) error {
	s, err := p.Begin(seq, source)
	if err != nil {
		return err
	}
	return p.Run(ctx, s)
}

// Begin claims the single playback slot for seq and announces Playing.
// It fails with ErrSessionActive if a session already exists; the existing
// session is not affected.
func (p *Player) Begin(seq NoteSequence, source string) (*PlaybackSession, error) {
	p.mu.Lock()
	if p.session != nil {
		active := p.session.seq.ID
		p.mu.Unlock()
		p.logger.Warn("playback rejected", "sequence", seq.ID, "source", source, "active_sequence", active)
		return nil, ErrSessionActive
	}
	s := &PlaybackSession{
		seq:         seq,
		source:      source,
		startedAt:   time.Now(),
		prevControl: p.control.Get(),
		sounding:    make(map[uint8]int),
	}
	p.session = s
	p.mu.Unlock()

	p.modes.Publish(PlayingMode(seq))
	return s, nil
}

// Run executes a session claimed by Begin. Whatever the exit path, sounding
// notes are released, the actuator is switched off, the session is released
// and Idle is announced. Returns ctx.Err() when interrupted.
func (p *Player) Run(ctx context.Context, s *PlaybackSession) error {
	if !p.owns(s) {
		return errSessionNotActive
	}

	var err error
	defer func() { p.finish(s, err) }()

	p.logger.Info("playback started", "sequence", s.seq.ID, "source", s.source, "events", len(s.seq.Events))
	err = p.run(ctx, s)
	return err
}

func (p *Player) run(ctx context.Context, s *PlaybackSession) error {
	gateOpen := p.gateCheck(s)

	for _, ev := range s.seq.Events {
		if err := ctx.Err(); err != nil {
			return err
		}

		if wait := ev.Offset - s.cursor; wait > 0 {
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}

		// The whole timeline pauses while the gate is closed.
		if err := WaitUntil(ctx, p.cfg.LightRepoll, gateOpen); err != nil {
			return err
		}

		switch ev.Kind {
		case NoteOn:
			vel := p.modulate(s, ev.Velocity)
			if err := p.out.NoteOn(ev.Pitch, vel); err != nil {
				p.logger.Warn("note on send failed", "sequence", s.seq.ID, "pitch", ev.Pitch, "error", err)
			}
			s.sounding[ev.Pitch]++
			p.actuator.On()
			p.logger.Debug("note on", "sequence", s.seq.ID, "pitch", ev.Pitch, "velocity", vel, "offset", ev.Offset)

		case NoteOff:
			if err := p.out.NoteOff(ev.Pitch); err != nil {
				p.logger.Warn("note off send failed", "sequence", s.seq.ID, "pitch", ev.Pitch, "error", err)
			}
			if s.sounding[ev.Pitch] > 0 {
				s.sounding[ev.Pitch]--
			}
			p.actuator.Off()
			p.logger.Debug("note off", "sequence", s.seq.ID, "pitch", ev.Pitch, "offset", ev.Offset)
		}

		p.advance(s, ev.Offset)
	}
	return nil
}

// gateCheck returns the light-gate predicate for one session. While the gate
// is closed the actuator is forced idle.
func (p *Player) gateCheck(s *PlaybackSession) func() bool {
	held := false
	return func() bool {
		if p.gate.clear() {
			if held {
				p.logger.Info("light gate cleared", "sequence", s.seq.ID, "cursor", s.cursor)
				held = false
			}
			return true
		}
		if !held {
			p.logger.Info("light gate holding playback", "sequence", s.seq.ID, "cursor", s.cursor)
			held = true
		}
		p.actuator.Off()
		return false
	}
}

// modulate samples the control value once for this NoteOn and shifts the
// velocity by the change since the previous NoteOn.
func (p *Player) modulate(s *PlaybackSession, base uint8) uint8 {
	cur := p.control.Get()

	p.mu.Lock()
	delta := cur - s.prevControl
	s.prevControl = cur
	p.mu.Unlock()

	return adjustVelocity(base, delta)
}

func (p *Player) advance(s *PlaybackSession, offset time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if offset > s.cursor {
		s.cursor = offset
	}
}

func (p *Player) owns(s *PlaybackSession) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return s != nil && p.session == s
}

func (p *Player) finish(s *PlaybackSession, err error) {
	pitches := make([]int, 0, len(s.sounding))
	for pitch, n := range s.sounding {
		if n > 0 {
			pitches = append(pitches, int(pitch))
		}
	}
	sort.Ints(pitches)
	for _, pitch := range pitches {
		if sendErr := p.out.NoteOff(uint8(pitch)); sendErr != nil {
			p.logger.Warn("note release failed", "sequence", s.seq.ID, "pitch", pitch, "error", sendErr)
		}
	}
	p.actuator.Off()

	p.mu.Lock()
	if p.session == s {
		p.session = nil
	}
	cursor := s.cursor
	p.mu.Unlock()

	p.modes.PublishIdle()

	if err != nil {
		p.logger.Info("playback interrupted", "sequence", s.seq.ID, "cursor", cursor, "released_notes", len(pitches), "reason", err)
		return
	}
	p.logger.Info("playback finished", "sequence", s.seq.ID, "elapsed", time.Since(s.startedAt).Round(time.Millisecond))
}

// Session returns a snapshot of the active session, if any.
func (p *Player) Session() (SessionInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return SessionInfo{}, false
	}
	s := p.session
	return SessionInfo{
		SequenceID:  s.seq.ID,
		Source:      s.source,
		StartedAt:   s.startedAt,
		Cursor:      s.cursor,
		PrevControl: s.prevControl,
	}, true
}

// Strike emits an immediate NoteOn+NoteOff pair for each note.
func (p *Player) Strike(notes []uint8, velocity uint8) {
	for _, n := range notes {
		if err := p.out.NoteOn(n, velocity); err != nil {
			p.logger.Warn("strike note on failed", "pitch", n, "error", err)
		}
	}
	for _, n := range notes {
		if err := p.out.NoteOff(n); err != nil {
			p.logger.Warn("strike note off failed", "pitch", n, "error", err)
		}
	}
	p.logger.Debug("strike", "notes", notes, "velocity", velocity)
}

// adjustVelocity shifts base by delta control units scaled onto the MIDI range.
func adjustVelocity(base uint8, delta int) uint8 {
	return clampVelocity(float64(base) + float64(delta)*maxMIDIValue/maxControlValue)
}

// clampVelocity clamps v to [0,127], truncating toward zero.
func clampVelocity(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= maxMIDIValue:
		return maxMIDIValue
	default:
		return uint8(v)
	}
}
