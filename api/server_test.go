package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/api"
	"github.com/trackline/trackline/render"
	"github.com/trackline/trackline/session"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}

func newServer(t *testing.T) (*api.Server, *session.Session, string) {
	t.Helper()
	log := quietLogger()
	enginer := render.NewEnginer(render.WithSampleRate(8000), render.WithBitDepth(16), render.WithLogger(log))
	s, err := session.New("api", enginer, session.WithLogger(log))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	dir := t.TempDir()
	return api.NewServer(s, dir, api.WithLogger(log), api.WithAllowedOrigins("http://localhost:3000")), s, dir
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusCodes(t *testing.T) {
	h, _, _ := newServer(t)
	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"create track", http.MethodPost, "/tracks", `{"name":"drums"}`, http.StatusCreated},
		{"bad body", http.MethodPost, "/tracks", `{"nam":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/tracks", `{"colour":"red"}`, http.StatusBadRequest},
		{"get track", http.MethodGet, "/tracks/1", "", http.StatusOK},
		{"unknown track", http.MethodGet, "/tracks/99", "", http.StatusNotFound},
		{"midi clip", http.MethodPost, "/tracks/1/clips", `{"kind":"midi","start":0,"length":1}`, http.StatusCreated},
		{"zero length clip", http.MethodPost, "/tracks/1/clips", `{"kind":"midi","start":0,"length":0}`, http.StatusBadRequest},
		{"clip on unknown track", http.MethodPost, "/tracks/99/clips", `{"length":1}`, http.StatusNotFound},
		{"unknown clip kind", http.MethodPost, "/tracks/1/clips", `{"kind":"video","length":1}`, http.StatusBadRequest},
		{"add note", http.MethodPost, "/clips/1/notes", `{"note":36,"start":0,"length":1,"velocity":100}`, http.StatusCreated},
		{"note on unknown clip", http.MethodPost, "/clips/99/notes", `{"note":36,"start":0,"length":1,"velocity":100}`, http.StatusNotFound},
		{"invalid note", http.MethodPost, "/clips/1/notes", `{"note":200,"start":0,"length":1,"velocity":100}`, http.StatusBadRequest},
		{"remove missing note", http.MethodDelete, "/clips/1/notes?note=37&start=0", "", http.StatusNotFound},
		{"zero tempo", http.MethodPut, "/session/tempo", `{"bpm":0}`, http.StatusBadRequest},
		{"tempo", http.MethodPut, "/session/tempo", `{"bpm":140}`, http.StatusNoContent},
		{"click", http.MethodPut, "/session/click", `{"enabled":true}`, http.StatusNoContent},
		{"instrument", http.MethodPut, "/tracks/1/instrument", `{"name":"kit","samples":[{"path":"kick.wav","note":36}]}`, http.StatusNoContent},
		{"bad instrument", http.MethodPut, "/tracks/1/instrument", `{"name":"kit","samples":[{"path":"","note":36}]}`, http.StatusBadRequest},
		{"no export yet", http.MethodGet, "/exports/current", "", http.StatusNotFound},
		{"delete clip", http.MethodDelete, "/tracks/1/clips/1", "", http.StatusNoContent},
		{"delete clip again", http.MethodDelete, "/tracks/1/clips/1", "", http.StatusNotFound},
		{"remove track", http.MethodDelete, "/tracks/1", "", http.StatusNoContent},
		{"remove track again", http.MethodDelete, "/tracks/1", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s: got %d, want %d, body: %s", tt.name, rec.Code, tt.want, strings.TrimSpace(rec.Body.String()))
		}
	}
}

func TestNotesAndSession(t *testing.T) {
	h, s, _ := newServer(t)
	do(t, h, http.MethodPost, "/tracks", `{"name":"keys"}`)
	do(t, h, http.MethodPost, "/tracks/1/clips", `{"length":8}`)
	rec := do(t, h, http.MethodPut, "/clips/1/notes", `[{"note":60,"start":0,"length":1,"velocity":110},{"note":64,"start":1,"length":1,"velocity":90}]`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("replace notes: %d %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, h, http.MethodDelete, "/clips/1/notes?note=60&start=0", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("remove note: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodGet, "/clips/1/notes", "")
	var notes []trackline.Note
	if err := json.NewDecoder(rec.Body).Decode(&notes); err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].Number != 64 || notes[0].Velocity != 90 {
		t.Fatalf("notes = %+v", notes)
	}
	if rec := do(t, h, http.MethodPost, "/session/start", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("start: %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/session", "")
	var resp struct {
		Name  string  `json:"name"`
		State string  `json:"state"`
		BPM   float64 `json:"bpm"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Name != "api" || resp.State != "running" || resp.BPM != 120 {
		t.Fatalf("session = %+v", resp)
	}
	rec = do(t, h, http.MethodGet, "/session/project", "")
	if !strings.Contains(rec.Body.String(), "kind: midi") {
		t.Fatalf("project document:\n%s", rec.Body.String())
	}
	s.Close()
	if rec := do(t, h, http.MethodPost, "/tracks", `{}`); rec.Code != http.StatusGone {
		t.Fatalf("after close: %d", rec.Code)
	}
}

func TestExport(t *testing.T) {
	h, _, dir := newServer(t)
	do(t, h, http.MethodPost, "/tracks", `{}`)
	do(t, h, http.MethodPost, "/tracks/1/clips", `{"length":1}`)
	rec := do(t, h, http.MethodPost, "/exports", `{"file":"../outside/mix.wav"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start export: %d %s", rec.Code, rec.Body.String())
	}
	deadline := time.Now().Add(10 * time.Second)
	var state struct {
		State       string  `json:"state"`
		Progress    float64 `json:"progress"`
		Destination string  `json:"destination"`
	}
	for {
		rec = do(t, h, http.MethodGet, "/exports/current", "")
		json.NewDecoder(rec.Body).Decode(&state)
		if state.State != "running" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("export did not finish")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if state.State != "completed" || state.Progress != 1 {
		t.Fatalf("export = %+v", state)
	}
	if want := filepath.Join(dir, "mix.wav"); state.Destination != want {
		t.Fatalf("destination %q, want %q", state.Destination, want)
	}
	if _, err := os.Stat(state.Destination); err != nil {
		t.Fatal(err)
	}
	// the file exists now, so a second export to it fails
	rec = do(t, h, http.MethodPost, "/exports", `{"file":"mix.wav"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("second export: %d", rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/exports/current", "")
	json.NewDecoder(rec.Body).Decode(&state)
	if state.State != "failed" && state.State != "cancelled" {
		t.Fatalf("second export = %+v", state)
	}
}

func TestCORS(t *testing.T) {
	h, _, _ := newServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/tracks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("Access-Control-Allow-Origin = %q", got)
	}
}
