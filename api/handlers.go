package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/trackline/trackline"
	"github.com/trackline/trackline/session"
)

type (
	sessionResponse struct {
		Name        string  `json:"name"`
		State       string  `json:"state"`
		BPM         float64 `json:"bpm"`
		BeatsPerBar int     `json:"beatsPerBar"`
		ClickTrack  bool    `json:"clickTrack"`
	}

	idResponse struct {
		ID int `json:"id"`
	}

	tempoRequest struct {
		BPM float64 `json:"bpm"`
	}

	clickRequest struct {
		Enabled bool `json:"enabled"`
	}

	trackRequest struct {
		Name string `json:"name"`
	}

	sampleRequest struct {
		Path string `json:"path"`
		Note byte   `json:"note"`
	}

	instrumentRequest struct {
		Name    string          `json:"name"`
		Samples []sampleRequest `json:"samples"`
	}

	clipRequest struct {
		Kind   string  `json:"kind"`
		Name   string  `json:"name"`
		Path   string  `json:"path"`
		Start  float64 `json:"start"`
		Length float64 `json:"length"`
	}

	moveRequest struct {
		Start  float64 `json:"start"`
		Length float64 `json:"length"`
	}

	exportRequest struct {
		File string `json:"file"`
	}

	exportResponse struct {
		ID          string  `json:"id"`
		Destination string  `json:"destination"`
		State       string  `json:"state"`
		Progress    float64 `json:"progress"`
		Error       string  `json:"error,omitempty"`
	}
)

func trackID(r *http.Request) trackline.TrackID {
	id, _ := strconv.Atoi(mux.Vars(r)["track"])
	return trackline.TrackID(id)
}

func clipID(r *http.Request) trackline.ClipID {
	id, _ := strconv.Atoi(mux.Vars(r)["clip"])
	return trackline.ClipID(id)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	tm := s.session.TimeModel()
	writeJSON(w, http.StatusOK, sessionResponse{
		Name:        s.session.Name(),
		State:       s.session.State().String(),
		BPM:         tm.BPM,
		BeatsPerBar: tm.BeatsPerBar,
		ClickTrack:  s.session.ClickTrackEnabled(),
	})
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p := s.session.Snapshot()
	w.Header().Set("Content-Type", "application/yaml")
	if err := trackline.WriteProject(w, &p); err != nil {
		s.log.WithError(err).Error("could not write project")
	}
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Stop(); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setTempo(w http.ResponseWriter, r *http.Request) {
	var req tempoRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SetTempo(req.BPM); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setClick(w http.ResponseWriter, r *http.Request) {
	var req clickRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.SetClickTrack(req.Enabled); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.session.Tracks().List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

func (s *Server) createTrack(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.session.Tracks().CreateAudioTrack(req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/tracks/"+strconv.Itoa(int(id)))
	writeJSON(w, http.StatusCreated, idResponse{ID: int(id)})
}

func (s *Server) getTrack(w http.ResponseWriter, r *http.Request) {
	t, err := s.session.Tracks().Track(trackID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) removeTrack(w http.ResponseWriter, r *http.Request) {
	ok, err := s.session.Tracks().RemoveTrack(trackID(r))
	switch {
	case err != nil:
		s.fail(w, r, err)
	case !ok:
		writeError(w, http.StatusNotFound, "no such track")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) bindInstrument(w http.ResponseWriter, r *http.Request) {
	var req instrumentRequest
	if !decode(w, r, &req) {
		return
	}
	var b trackline.SamplerBuilder
	for _, smp := range req.Samples {
		b.AddSample(smp.Path, smp.Note)
	}
	sampler, err := b.Build(req.Name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.session.Tracks().BindSampler(trackID(r), sampler); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unbindInstrument(w http.ResponseWriter, r *http.Request) {
	ok, err := s.session.Tracks().UnbindInstrument(trackID(r))
	switch {
	case err != nil:
		s.fail(w, r, err)
	case !ok:
		writeError(w, http.StatusNotFound, "track has no instrument")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) createClip(w http.ResponseWriter, r *http.Request) {
	var req clipRequest
	if !decode(w, r, &req) {
		return
	}
	var (
		id  trackline.ClipID
		err error
	)
	switch req.Kind {
	case "midi", "":
		id, err = s.session.Clips().CreateMidiClip(trackID(r), req.Name, req.Start, req.Length)
	case "audio":
		id, err = s.session.Tracks().AddAudioClip(trackID(r), req.Path, req.Start, req.Length)
	default:
		writeError(w, http.StatusBadRequest, "unknown clip kind "+strconv.Quote(req.Kind))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/clips/"+strconv.Itoa(int(id)))
	writeJSON(w, http.StatusCreated, idResponse{ID: int(id)})
}

func (s *Server) deleteClip(w http.ResponseWriter, r *http.Request) {
	ok, err := s.session.Clips().DeleteMidiClip(trackID(r), clipID(r))
	switch {
	case err != nil:
		s.fail(w, r, err)
	case !ok:
		writeError(w, http.StatusNotFound, "no such MIDI clip on this track")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) getClip(w http.ResponseWriter, r *http.Request) {
	c, err := s.session.Clips().Clip(clipID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) moveClip(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.session.Clips().MoveClip(clipID(r), req.Start, req.Length); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := s.session.Clips().Notes(clipID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

func (s *Server) addNote(w http.ResponseWriter, r *http.Request) {
	var n trackline.Note
	if !decode(w, r, &n) {
		return
	}
	if _, err := s.session.Clips().AddNote(clipID(r), n); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) replaceNotes(w http.ResponseWriter, r *http.Request) {
	var notes []trackline.Note
	if !decode(w, r, &notes) {
		return
	}
	if err := s.session.Clips().ReplaceNotes(clipID(r), notes); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) removeNote(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	number, err := strconv.ParseUint(vars["note"], 10, 8)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid note number")
		return
	}
	start, err := strconv.ParseFloat(vars["start"], 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	ok, err := s.session.Clips().RemoveNote(clipID(r), byte(number), start)
	switch {
	case err != nil:
		s.fail(w, r, err)
	case !ok:
		writeError(w, http.StatusNotFound, "no such note")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) startExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decode(w, r, &req) {
		return
	}
	name := filepath.Base(req.File)
	if req.File == "" || name == "." || name == string(filepath.Separator) {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// the job outlives the request
	job, err := s.session.ExportAudio(context.Background(), filepath.Join(s.exportDir, name))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.job = job
	w.Header().Set("Location", "/exports/current")
	writeJSON(w, http.StatusAccepted, describe(job))
}

func (s *Server) currentJob() *session.ExportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job
}

func (s *Server) getExport(w http.ResponseWriter, r *http.Request) {
	job := s.currentJob()
	if job == nil {
		writeError(w, http.StatusNotFound, "no export has been started")
		return
	}
	writeJSON(w, http.StatusOK, describe(job))
}

func (s *Server) cancelExport(w http.ResponseWriter, r *http.Request) {
	job := s.currentJob()
	if job == nil {
		writeError(w, http.StatusNotFound, "no export has been started")
		return
	}
	job.Cancel()
	<-job.Done()
	writeJSON(w, http.StatusOK, describe(job))
}

func describe(job *session.ExportJob) exportResponse {
	state, err := job.Result()
	ret := exportResponse{
		ID:          job.ID().String(),
		Destination: job.Destination(),
		State:       state.String(),
		Progress:    job.Progress(),
	}
	if err != nil {
		ret.Error = err.Error()
	}
	return ret
}
