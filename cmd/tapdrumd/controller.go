package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrDisarmed is returned when playback is requested while the controller is disarmed.
var ErrDisarmed = errors.New("controller disarmed")

// Spawner starts one-shot tasks (playback sessions) on the event loop.
type Spawner interface {
	Spawn(name string, fn func(ctx context.Context)) error
}

// TapBinding maps a tap channel to its sounds.
type TapBinding struct {
	Note              uint8  // struck by a single tap (and by combos)
	DoubleTapSequence string // played by a double tap; empty ignores double taps
}

// Controller owns the armed flag and the cancel handle of the active session.
// Gestures, buttons and inbound messages all enter here.
//
// While disarmed, gestures and buttons are ignored, no playback may start and
// the actuator is held off.
type Controller struct {
	player   *Player
	library  *SongLibrary
	control  *ControlValueStore
	actuator *ActuatorArbiter
	modes    *ModeBroadcaster
	spawner  Spawner
	taps     map[string]TapBinding
	logger   *slog.Logger

	mu     sync.Mutex
	armed  bool
	active *activeSession
	nextID uint64
}

type activeSession struct {
	id     uint64
	seq    string
	cancel context.CancelFunc
}

// ControllerDeps groups the collaborators of a Controller.
type ControllerDeps struct {
	Player   *Player
	Library  *SongLibrary
	Control  *ControlValueStore
	Actuator *ActuatorArbiter
	Modes    *ModeBroadcaster
	Spawner  Spawner
	Taps     map[string]TapBinding
}

func NewController(deps ControllerDeps, armed bool, logger *slog.Logger) *Controller {
	taps := deps.Taps
	if taps == nil {
		taps = map[string]TapBinding{}
	}
	return &Controller{
		player:   deps.Player,
		library:  deps.Library,
		control:  deps.Control,
		actuator: deps.Actuator,
		modes:    deps.Modes,
		spawner:  deps.Spawner,
		taps:     taps,
		armed:    armed,
		logger:   logger,
	}
}

// Armed reports whether gestures and playback are currently enabled.
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Arm enables gestures and playback.
func (c *Controller) Arm() {
	c.mu.Lock()
	was := c.armed
	c.armed = true
	c.mu.Unlock()
	if !was {
		c.logger.Info("controller armed")
	}
}

// Disarm disables gestures, cancels the active session and switches the actuator off.
func (c *Controller) Disarm() {
	c.mu.Lock()
	was := c.armed
	c.armed = false
	active := c.active
	if active != nil {
		active.cancel()
	}
	c.mu.Unlock()

	c.actuator.Off()
	if was {
		attrs := []any{}
		if active != nil {
			attrs = append(attrs, "cancelled_sequence", active.seq)
		}
		c.logger.Info("controller disarmed", attrs...)
	}
}

// PlaySequence starts a playback session for the sequence id.
// The session runs on a spawned task; the call returns once it is claimed.
// Errors: ErrDisarmed, ErrUnknownSequence, ErrSessionActive.
func (c *Controller) PlaySequence(id, source string) error {
	seq, err := c.library.Lookup(id)
	if err != nil {
		c.logger.Warn("playback request for unknown sequence", "sequence", id, "source", source)
		return err
	}

	c.mu.Lock()
	if !c.armed {
		c.mu.Unlock()
		c.logger.Debug("playback ignored (disarmed)", "sequence", id, "source", source)
		return ErrDisarmed
	}
	sess, err := c.player.Begin(seq, source)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	// Cancelled by Disarm, by release, or by loop shutdown (linked in the task).
	sessCtx, cancel := context.WithCancel(context.Background())
	c.nextID++
	active := &activeSession{id: c.nextID, seq: seq.ID, cancel: cancel}
	c.active = active
	c.mu.Unlock()

	run := func(loopCtx context.Context) {
		stop := context.AfterFunc(loopCtx, cancel)
		defer stop()
		defer c.release(active)
		_ = c.player.Run(sessCtx, sess)
	}

	if err := c.spawner.Spawn("play:"+seq.ID, run); err != nil {
		// Release the claimed session without playing anything.
		cancel()
		_ = c.player.Run(sessCtx, sess)
		c.release(active)
		return fmt.Errorf("spawn playback %s: %w", seq.ID, err)
	}
	return nil
}

func (c *Controller) release(a *activeSession) {
	a.cancel()
	c.mu.Lock()
	if c.active == a {
		c.active = nil
	}
	c.mu.Unlock()
}

// HandleTap reacts to one classified gesture.
func (c *Controller) HandleTap(ev TapEvent) {
	if !c.Armed() {
		c.logger.Debug("tap ignored (disarmed)", "channel", ev.Channel, "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case TapSingle, TapComboBoth:
		channels := ev.Channels
		if len(channels) == 0 {
			channels = []string{ev.Channel}
		}
		notes := make([]uint8, 0, len(channels))
		for _, id := range channels {
			if b, ok := c.taps[id]; ok {
				notes = append(notes, b.Note)
			}
		}
		if len(notes) == 0 {
			return
		}
		vel := controlToVelocity(c.control.Get())
		c.logger.Info("tap strike", "channel", ev.Channel, "kind", ev.Kind.String(), "velocity", vel)
		c.player.Strike(notes, vel)

	case TapDouble:
		b, ok := c.taps[ev.Channel]
		if !ok || b.DoubleTapSequence == "" {
			return
		}
		c.logger.Info("double tap", "channel", ev.Channel, "sequence", b.DoubleTapSequence)
		_ = c.PlaySequence(b.DoubleTapSequence, "tap:"+ev.Channel)
	}
}

// HandleButton reacts to one debounced button press.
func (c *Controller) HandleButton(b *Button) {
	if !c.Armed() {
		c.logger.Debug("button ignored (disarmed)", "button", b.ID)
		return
	}
	switch b.Action.Kind {
	case ButtonStrike:
		vel := b.Action.Velocity
		if vel == 0 {
			vel = controlToVelocity(c.control.Get())
		}
		c.logger.Info("button strike", "button", b.ID, "notes", b.Action.Notes, "velocity", vel)
		c.player.Strike(b.Action.Notes, vel)
	case ButtonPlay:
		c.logger.Info("button play", "button", b.ID, "sequence", b.Action.Sequence)
		_ = c.PlaySequence(b.Action.Sequence, "button:"+b.ID)
	}
}

// HandleInbound applies one inbound payload:
//   - "start" / "stop" arm and disarm
//   - "play <id>" starts a session
//   - an ASCII number updates the control value
//
// Anything else is discarded.
func (c *Controller) HandleInbound(msg InboundMessage) {
	text := strings.TrimSpace(string(msg.Payload))
	switch {
	case text == tokenArm:
		c.Arm()
	case text == tokenDisarm:
		c.Disarm()
	case strings.HasPrefix(text, tokenPlay+" "):
		id := strings.TrimSpace(strings.TrimPrefix(text, tokenPlay+" "))
		_ = c.PlaySequence(id, msg.Source)
	default:
		if !c.control.SetPayload(msg.Payload) {
			c.logger.Debug("inbound payload discarded", "source", msg.Source, "bytes", len(msg.Payload))
			return
		}
		c.logger.Debug("control value updated", "source", msg.Source, "value", c.control.Get())
	}
}

// StatusSnapshot is the externally visible controller state.
type StatusSnapshot struct {
	Armed     bool     `json:"armed"`
	Mode      string   `json:"mode"`
	Playing   bool     `json:"playing"`
	Sequence  string   `json:"sequence,omitempty"`
	Source    string   `json:"source,omitempty"`
	CursorMS  int64    `json:"cursor_ms,omitempty"`
	Control   int      `json:"control"`
	Actuator  bool     `json:"actuator_on"`
	Intensity uint16   `json:"actuator_intensity"`
	Sequences []string `json:"sequences"`
}

// Status returns a point-in-time snapshot.
func (c *Controller) Status() StatusSnapshot {
	mode := c.modes.Current()
	act := c.actuator.State()
	st := StatusSnapshot{
		Armed:     c.Armed(),
		Mode:      mode.Token,
		Control:   c.control.Get(),
		Actuator:  act.On,
		Intensity: act.Intensity,
		Sequences: c.library.IDs(),
	}
	if s, ok := c.player.Session(); ok {
		st.Playing = true
		st.Sequence = s.SequenceID
		st.Source = s.Source
		st.CursorMS = s.Cursor.Milliseconds()
	}
	return st
}
