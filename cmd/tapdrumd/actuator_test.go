package main

import "testing"

func TestActuatorArbiter_LastCallWins(t *testing.T) {
	m := &fakeMotor{}
	a := NewActuatorArbiter(m, 50000, testLogger())

	a.On()
	a.On()
	a.SetIntensity(30000)
	a.Off()
	a.SetIntensity(40000) // off: recorded, not applied
	a.On()

	want := []uint16{50000, 30000, 0, 40000}
	got := m.writes()
	if len(got) != len(want) {
		t.Fatalf("expected writes %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected writes %v, got %v", want, got)
		}
	}
	if st := a.State(); !st.On || st.Intensity != 40000 {
		t.Fatalf("unexpected state %+v", st)
	}

	// A nil motor is accepted.
	NewActuatorArbiter(nil, 1, testLogger()).On()
}
