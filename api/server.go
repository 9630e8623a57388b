// Package api exposes a session over HTTP with a small JSON API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/session"
)

// Server routes HTTP requests to one session.
type Server struct {
	session   *session.Session
	router    *mux.Router
	handler   http.Handler
	log       logrus.FieldLogger
	exportDir string

	mu  sync.Mutex
	job *session.ExportJob // latest export, guarded by mu
}

type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Server) { s.log = l }
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.handler = cors.New(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type"},
		}).Handler(s.router)
	}
}

// NewServer returns a server for sess. Exports are written into exportDir;
// clients only choose the file name.
func NewServer(sess *session.Session, exportDir string, opts ...Option) *Server {
	s := &Server{
		session:   sess,
		router:    mux.NewRouter().StrictSlash(true),
		log:       logrus.StandardLogger(),
		exportDir: exportDir,
	}
	s.handler = s.router
	s.routes()
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/session", s.getSession).Methods(http.MethodGet)
	r.HandleFunc("/session/project", s.getProject).Methods(http.MethodGet)
	r.HandleFunc("/session/start", s.start).Methods(http.MethodPost)
	r.HandleFunc("/session/stop", s.stop).Methods(http.MethodPost)
	r.HandleFunc("/session/tempo", s.setTempo).Methods(http.MethodPut)
	r.HandleFunc("/session/click", s.setClick).Methods(http.MethodPut)

	r.HandleFunc("/tracks", s.listTracks).Methods(http.MethodGet)
	r.HandleFunc("/tracks", s.createTrack).Methods(http.MethodPost)
	r.HandleFunc("/tracks/{track:[0-9]+}", s.getTrack).Methods(http.MethodGet)
	r.HandleFunc("/tracks/{track:[0-9]+}", s.removeTrack).Methods(http.MethodDelete)
	r.HandleFunc("/tracks/{track:[0-9]+}/instrument", s.bindInstrument).Methods(http.MethodPut)
	r.HandleFunc("/tracks/{track:[0-9]+}/instrument", s.unbindInstrument).Methods(http.MethodDelete)
	r.HandleFunc("/tracks/{track:[0-9]+}/clips", s.createClip).Methods(http.MethodPost)
	r.HandleFunc("/tracks/{track:[0-9]+}/clips/{clip:[0-9]+}", s.deleteClip).Methods(http.MethodDelete)

	r.HandleFunc("/clips/{clip:[0-9]+}", s.getClip).Methods(http.MethodGet)
	r.HandleFunc("/clips/{clip:[0-9]+}", s.moveClip).Methods(http.MethodPut)
	r.HandleFunc("/clips/{clip:[0-9]+}/notes", s.getNotes).Methods(http.MethodGet)
	r.HandleFunc("/clips/{clip:[0-9]+}/notes", s.addNote).Methods(http.MethodPost)
	r.HandleFunc("/clips/{clip:[0-9]+}/notes", s.replaceNotes).Methods(http.MethodPut)
	r.HandleFunc("/clips/{clip:[0-9]+}/notes", s.removeNote).Methods(http.MethodDelete).
		Queries("note", "{note:[0-9]+}", "start", "{start}")

	r.HandleFunc("/exports", s.startExport).Methods(http.MethodPost)
	r.HandleFunc("/exports/current", s.getExport).Methods(http.MethodGet)
	r.HandleFunc("/exports/current", s.cancelExport).Methods(http.MethodDelete)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusOf maps the session error kinds to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, trackline.ErrUnknownTrack), errors.Is(err, trackline.ErrUnknownClip):
		return http.StatusNotFound
	case errors.Is(err, trackline.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, trackline.ErrJobInProgress):
		return http.StatusConflict
	case errors.Is(err, trackline.ErrSessionDestroyed):
		return http.StatusGone
	case errors.Is(err, trackline.ErrEngineFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	}
	writeError(w, status, err.Error())
}

// decode reads a JSON request body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
