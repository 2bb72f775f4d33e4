package main

import (
	"log/slog"
	"sync"
)

// Mode is the controller's playback mode: Idle, or Playing a sequence.
type Mode struct {
	Playing    bool
	SequenceID string
	Token      string // display token
}

// PlayingMode is the mode announced while seq plays.
func PlayingMode(seq NoteSequence) Mode {
	token := seq.Token
	if token == "" {
		token = seq.ID
	}
	return Mode{Playing: true, SequenceID: seq.ID, Token: token}
}

func (m Mode) String() string {
	if !m.Playing {
		return "idle"
	}
	return "playing(" + m.SequenceID + ")"
}

// ModeBroadcaster holds the current mode and fans out every transition to
// subscribers. Publishing the current mode again is a no-op.
//
// Subscriber channels are buffered; a subscriber that falls behind misses
// transitions rather than blocking the publisher (the display only needs the latest).
type ModeBroadcaster struct {
	mu      sync.Mutex
	current Mode
	idle    Mode
	subs    map[int]chan Mode
	nextID  int

	logger *slog.Logger
}

// NewModeBroadcaster starts in Idle, announced with idleToken.
func NewModeBroadcaster(idleToken string, logger *slog.Logger) *ModeBroadcaster {
	if idleToken == "" {
		idleToken = defaultIdleToken
	}
	idle := Mode{Token: idleToken}
	return &ModeBroadcaster{
		current: idle,
		idle:    idle,
		subs:    make(map[int]chan Mode),
		logger:  logger,
	}
}

// Current returns the current mode.
func (b *ModeBroadcaster) Current() Mode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// PublishIdle announces a transition back to Idle.
func (b *ModeBroadcaster) PublishIdle() bool {
	return b.Publish(b.idle)
}

// Publish records m and notifies subscribers if it differs from the current mode.
func (b *ModeBroadcaster) Publish(m Mode) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m == b.current {
		return false
	}
	prev := b.current
	b.current = m

	for id, ch := range b.subs {
		select {
		case ch <- m:
		default:
			b.logger.Warn("mode subscriber full, dropping transition", "subscriber", id, "mode", m.String())
		}
	}
	b.logger.Info("mode changed", "from", prev.String(), "to", m.String(), "token", m.Token)
	return true
}

// Subscribe returns a channel of mode transitions and a cancel func that
// unregisters and closes it.
func (b *ModeBroadcaster) Subscribe(buf int) (<-chan Mode, func()) {
	if buf <= 0 {
		buf = 8
	}
	ch := make(chan Mode, buf)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
