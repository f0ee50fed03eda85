package beacon

import (
	"encoding/json"
	"net/http"

	"github.com/roach88/vigil/internal/codec"
	"github.com/roach88/vigil/internal/event"
)

type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

type eventRequest struct {
	Tag     event.Tag       `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.state == nil {
		writeError(w, http.StatusNotFound, "state not exposed")
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Visible == nil {
		writeError(w, http.StatusBadRequest, `missing "visible"`)
		return
	}
	s.visibility.Set(*req.Visible)
	writeJSON(w, http.StatusAccepted, map[string]bool{"visible": *req.Visible})
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Tag == "" {
		writeError(w, http.StatusBadRequest, `missing "tag"`)
		return
	}
	ev, err := event.Decode(req.Tag, req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.dispatcher.Dispatch(ev) {
		writeError(w, http.StatusServiceUnavailable, "dispatcher stopped")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"tag": string(ev.Tag())})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := codec.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
