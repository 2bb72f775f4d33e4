package main

import (
	"errors"
	"strings"
	"testing"
)

func newTestClassifier(sensors map[string]*fakeTapSensor, order ...string) *TapClassifier {
	channels := make([]TapChannel, 0, len(order))
	for _, id := range order {
		channels = append(channels, TapChannel{ID: id, Sensor: sensors[id], Thresholds: TapThresholds{Threshold: 3, Duration: 7}})
	}
	return NewTapClassifier(channels, testLogger())
}

func TestTapClassifier_SingleTap(t *testing.T) {
	sensors := map[string]*fakeTapSensor{
		"short": {status: TapStatus{Single: true}},
		"tall":  {},
	}
	c := newTestClassifier(sensors, "short", "tall")

	events := c.Poll()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d: %+v", len(events), events)
	}
	if events[0].Kind != TapSingle || events[0].Channel != "short" {
		t.Fatalf("expected single on short, got %+v", events[0])
	}
}

func TestTapClassifier_BothSinglesCollapseIntoCombo(t *testing.T) {
	sensors := map[string]*fakeTapSensor{
		"short": {status: TapStatus{Single: true}},
		"tall":  {status: TapStatus{Single: true}},
	}
	c := newTestClassifier(sensors, "short", "tall")

	events := c.Poll()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d: %+v", len(events), events)
	}
	ev := events[0]
	if ev.Kind != TapComboBoth {
		t.Fatalf("expected combo, got %v", ev.Kind)
	}
	if len(ev.Channels) != 2 || ev.Channels[0] != "short" || ev.Channels[1] != "tall" {
		t.Fatalf("expected channels [short tall], got %v", ev.Channels)
	}
	for _, e := range events {
		if e.Kind == TapSingle {
			t.Fatalf("single reported alongside combo")
		}
	}
}

func TestTapClassifier_DoubleTapReportedWithCombo(t *testing.T) {
	sensors := map[string]*fakeTapSensor{
		"short": {status: TapStatus{Single: true}},
		"tall":  {status: TapStatus{Single: true, Double: true}},
	}
	c := newTestClassifier(sensors, "short", "tall")

	events := c.Poll()
	if len(events) != 2 {
		t.Fatalf("expected combo + double, got %+v", events)
	}
	if events[0].Kind != TapComboBoth {
		t.Fatalf("expected combo first, got %v", events[0].Kind)
	}
	if events[1].Kind != TapDouble || events[1].Channel != "tall" {
		t.Fatalf("expected double on tall, got %+v", events[1])
	}
}

func TestTapClassifier_ReadErrorYieldsNoEvent(t *testing.T) {
	sensors := map[string]*fakeTapSensor{
		"short": {status: TapStatus{Single: true}, readErr: errors.New("i2c nack")},
		"tall":  {status: TapStatus{Single: true}},
	}
	c := newTestClassifier(sensors, "short", "tall")

	events := c.Poll()
	if len(events) != 1 || events[0].Kind != TapSingle || events[0].Channel != "tall" {
		t.Fatalf("expected only tall single, got %+v", events)
	}

	sensors["tall"].readErr = errors.New("i2c nack")
	if events := c.Poll(); len(events) != 0 {
		t.Fatalf("expected no events when every read fails, got %+v", events)
	}
}

func TestTapClassifier_ConfigureAttemptsEveryChannel(t *testing.T) {
	sensors := map[string]*fakeTapSensor{
		"short": {cfgErr: errors.New("bus busy")},
		"tall":  {},
	}
	c := newTestClassifier(sensors, "short", "tall")

	err := c.Configure()
	if err == nil || !strings.Contains(err.Error(), "short") {
		t.Fatalf("expected error naming short, got %v", err)
	}
	if len(sensors["tall"].configured) != 1 {
		t.Fatalf("expected tall configured despite short failing")
	}
	if got := sensors["tall"].configured[0]; got.Threshold != 3 || got.Duration != 7 {
		t.Fatalf("unexpected thresholds %+v", got)
	}
}

func TestDecodeTapStatus(t *testing.T) {
	cases := []struct {
		v    byte
		want TapStatus
	}{
		{0x00, TapStatus{}},
		{0x20, TapStatus{Single: true}},
		{0x10, TapStatus{Double: true}},
		{0x30, TapStatus{Single: true, Double: true}},
		{0xCF, TapStatus{}},
	}
	for _, tc := range cases {
		if got := decodeTapStatus(tc.v); got != tc.want {
			t.Fatalf("decodeTapStatus(0x%02x): expected %+v, got %+v", tc.v, tc.want, got)
		}
	}
}
