package main

import "time"

// builtinLibrary is used when no songs_file is configured.
func builtinLibrary() (*SongLibrary, error) {
	return NewSongLibrary(
		phrase("pirate", "pirate", 80, 250*time.Millisecond,
			57, 60, 62, 62, 62, 64, 65, 65, 65, 67, 64, 64, 62, 60, 60, 62),
		phrase("key", "key", 72, 300*time.Millisecond,
			62, 65, 67, 69, 69, 70, 72, 70, 69, 67, 65),
	)
}

// phrase lays out evenly spaced notes, each held for 80% of a step.
func phrase(id, token string, velocity uint8, step time.Duration, pitches ...uint8) NoteSequence {
	hold := step * 4 / 5
	events := make([]NoteEvent, 0, 2*len(pitches))
	for i, p := range pitches {
		at := time.Duration(i) * step
		events = append(events,
			NoteEvent{Kind: NoteOn, Pitch: p, Velocity: velocity, Offset: at},
			NoteEvent{Kind: NoteOff, Pitch: p, Offset: at + hold},
		)
	}
	return NoteSequence{ID: id, Token: token, Events: events}
}
