package main

import (
	"errors"
	"testing"
)

func TestDebouncer_FiresOnReleaseOnly(t *testing.T) {
	var d Debouncer
	samples := []struct {
		pressed bool
		fire    bool
		state   ButtonState
	}{
		{false, false, ButtonReleased},
		{true, false, ButtonPressed},
		{true, false, ButtonPressed}, // held: no repeat
		{true, false, ButtonPressed},
		{false, true, ButtonReleased},
		{false, false, ButtonReleased},
		{true, false, ButtonPressed},
		{false, true, ButtonReleased},
	}
	for i, s := range samples {
		if got := d.Update(s.pressed); got != s.fire {
			t.Fatalf("sample %d: expected fire=%v, got %v", i, s.fire, got)
		}
		if d.State() != s.state {
			t.Fatalf("sample %d: expected state %v, got %v", i, s.state, d.State())
		}
	}
}

type scriptedLevel struct {
	levels []bool
	errAt  int
	i      int
}

func (s *scriptedLevel) Pressed() (bool, error) {
	i := s.i
	s.i++
	if i == s.errAt {
		return false, errors.New("gpio read")
	}
	if i >= len(s.levels) {
		return false, nil
	}
	return s.levels[i], nil
}

func TestButton_ReadErrorLeavesStateUntouched(t *testing.T) {
	// pressed, error (would look like a release), pressed, released
	lvl := &scriptedLevel{levels: []bool{true, false, true, false}, errAt: 1}
	b := &Button{ID: "bass", Level: lvl}

	fired := 0
	for i := 0; i < 4; i++ {
		if b.Sample(testLogger()) {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("expected exactly one fire, got %d", fired)
	}
}

func TestButtonAction_Validate(t *testing.T) {
	cases := []struct {
		name string
		a    ButtonAction
		ok   bool
	}{
		{"strike", ButtonAction{Kind: ButtonStrike, Notes: []uint8{36, 49}}, true},
		{"strike_no_notes", ButtonAction{Kind: ButtonStrike}, false},
		{"play", ButtonAction{Kind: ButtonPlay, Sequence: "key"}, true},
		{"play_no_sequence", ButtonAction{Kind: ButtonPlay}, false},
		{"unknown", ButtonAction{Kind: "juggle"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.a.validate(); (err == nil) != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, err)
			}
		})
	}
}
