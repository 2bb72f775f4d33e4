package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSequence is returned when a trigger names a sequence that was never loaded.
var ErrUnknownSequence = errors.New("unknown sequence")

// NoteKind is NoteOn or NoteOff.
type NoteKind int

const (
	NoteOn NoteKind = iota + 1
	NoteOff
)

func (k NoteKind) String() string {
	switch k {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	default:
		return fmt.Sprintf("NoteKind(%d)", int(k))
	}
}

// NoteEvent is one timed note in a sequence. Offset is measured from sequence start.
type NoteEvent struct {
	Kind     NoteKind
	Pitch    uint8
	Velocity uint8 // NoteOn only
	Offset   time.Duration
}

// NoteSequence is an ordered, immutable list of note events.
// Token is the mode token announced to the display while it plays.
type NoteSequence struct {
	ID     string
	Token  string
	Events []NoteEvent
}

// Validate checks offsets are non-negative and non-decreasing and note data is 7-bit.
func (s NoteSequence) Validate() error {
	if s.ID == "" {
		return errors.New("sequence id must not be empty")
	}
	var prev time.Duration
	for i, ev := range s.Events {
		if ev.Kind != NoteOn && ev.Kind != NoteOff {
			return fmt.Errorf("sequence %s event %d: invalid kind %v", s.ID, i, ev.Kind)
		}
		if ev.Pitch > maxMIDIValue {
			return fmt.Errorf("sequence %s event %d: pitch %d out of range", s.ID, i, ev.Pitch)
		}
		if ev.Velocity > maxMIDIValue {
			return fmt.Errorf("sequence %s event %d: velocity %d out of range", s.ID, i, ev.Velocity)
		}
		if ev.Offset < 0 {
			return fmt.Errorf("sequence %s event %d: negative offset", s.ID, i)
		}
		if ev.Offset < prev {
			return fmt.Errorf("sequence %s event %d: offset %v before previous %v", s.ID, i, ev.Offset, prev)
		}
		prev = ev.Offset
	}
	return nil
}

// Duration is the offset of the last event.
func (s NoteSequence) Duration() time.Duration {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].Offset
}

// SongLibrary is the in-memory set of pre-computed sequences, keyed by ID.
type SongLibrary struct {
	songs map[string]NoteSequence
}

// NewSongLibrary validates and indexes sequences.
func NewSongLibrary(seqs ...NoteSequence) (*SongLibrary, error) {
	lib := &SongLibrary{songs: make(map[string]NoteSequence, len(seqs))}
	for _, s := range seqs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := lib.songs[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sequence id %q", s.ID)
		}
		if s.Token == "" {
			s.Token = s.ID
		}
		lib.songs[s.ID] = s
	}
	return lib, nil
}

// Lookup returns the sequence with the given ID.
func (l *SongLibrary) Lookup(id string) (NoteSequence, error) {
	if l != nil {
		if s, ok := l.songs[id]; ok {
			return s, nil
		}
	}
	return NoteSequence{}, fmt.Errorf("%w: %q", ErrUnknownSequence, id)
}

// IDs returns the sorted sequence IDs.
func (l *SongLibrary) IDs() []string {
	if l == nil {
		return nil
	}
	ids := make([]string, 0, len(l.songs))
	for id := range l.songs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// songFile is the YAML representation of a song file.
//
//	songs:
//	  - id: pirate
//	    token: pirate
//	    events:
//	      - {type: note_on, note: 62, velocity: 80, time: 0.0}
//	      - {type: note_off, note: 62, time: 0.25}
type songFile struct {
	Songs []songFileEntry `yaml:"songs"`
}

type songFileEntry struct {
	ID     string          `yaml:"id"`
	Token  string          `yaml:"token,omitempty"`
	Events []songFileEvent `yaml:"events"`
}

type songFileEvent struct {
	Type     string  `yaml:"type"` // note_on or note_off
	Note     int     `yaml:"note"`
	Velocity int     `yaml:"velocity,omitempty"`
	Time     float64 `yaml:"time"` // seconds from sequence start
}

// LoadSongFile reads a YAML song file into a SongLibrary.
func LoadSongFile(path string) (*SongLibrary, error) {
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("read song file: %w", err)
	}

	var f songFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode song file: %w", err)
	}

	seqs := make([]NoteSequence, 0, len(f.Songs))
	for _, entry := range f.Songs {
		seq, err := entry.toSequence()
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return NewSongLibrary(seqs...)
}

func (e songFileEntry) toSequence() (NoteSequence, error) {
	seq := NoteSequence{ID: e.ID, Token: e.Token, Events: make([]NoteEvent, 0, len(e.Events))}
	for i, fe := range e.Events {
		var kind NoteKind
		switch fe.Type {
		case "note_on":
			kind = NoteOn
		case "note_off":
			kind = NoteOff
		default:
			return NoteSequence{}, fmt.Errorf("song %s event %d: unknown type %q", e.ID, i, fe.Type)
		}
		if fe.Note < 0 || fe.Note > maxMIDIValue || fe.Velocity < 0 || fe.Velocity > maxMIDIValue {
			return NoteSequence{}, fmt.Errorf("song %s event %d: note/velocity out of range", e.ID, i)
		}
		if fe.Time < 0 {
			return NoteSequence{}, fmt.Errorf("song %s event %d: negative time", e.ID, i)
		}
		seq.Events = append(seq.Events, NoteEvent{
			Kind:     kind,
			Pitch:    uint8(fe.Note),
			Velocity: uint8(fe.Velocity),
			Offset:   time.Duration(fe.Time * float64(time.Second)),
		})
	}
	return seq, nil
}
