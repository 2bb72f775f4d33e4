package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Status(t *testing.T) {
	r := newControllerRig(t, true)
	router := newRouter(r.ctrl, NewInbox(4), nil, testLogger())

	rec := doRequest(t, router, http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st StatusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Armed || st.Mode != "drums" || st.Control != neutralControlValue {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRouter_ControlQueuesValidValues(t *testing.T) {
	r := newControllerRig(t, true)
	inbox := NewInbox(1)
	router := newRouter(r.ctrl, inbox, nil, testLogger())

	if rec := doRequest(t, router, http.MethodPost, "/control", "abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodPost, "/control", "5000"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodPost, "/control", "1024"); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodPost, "/control", "1025"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on full inbox, got %d", rec.Code)
	}

	msgs := inbox.Drain()
	if len(msgs) != 1 || string(msgs[0].Payload) != "1024" || msgs[0].Source != "http" {
		t.Fatalf("unexpected inbox contents %+v", msgs)
	}
}

func TestRouter_ArmDisarmAndPlay(t *testing.T) {
	r := newControllerRig(t, true)
	router := newRouter(r.ctrl, NewInbox(4), nil, testLogger())

	if rec := doRequest(t, router, http.MethodPost, "/play/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sequence, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodPost, "/play/pirate", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if rec := doRequest(t, router, http.MethodPost, "/play/key", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while playing, got %d", rec.Code)
	}

	rec := doRequest(t, router, http.MethodPost, "/disarm", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st StatusSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Armed {
		t.Fatalf("expected disarmed status")
	}
	if rec := doRequest(t, router, http.MethodPost, "/play/key", ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while disarmed, got %d", rec.Code)
	}

	if rec := doRequest(t, router, http.MethodPost, "/arm", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !r.ctrl.Armed() {
		t.Fatalf("expected armed after POST /arm")
	}
}

func TestRouter_NoDisplayRoute(t *testing.T) {
	r := newControllerRig(t, true)
	router := newRouter(r.ctrl, NewInbox(4), nil, testLogger())
	if rec := doRequest(t, router, http.MethodGet, "/ws", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without display handler, got %d", rec.Code)
	}
}
