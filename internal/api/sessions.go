package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"campusnav/internal/location"
	"campusnav/internal/model"
	"campusnav/internal/routing"
)

// SessionsHandler handles POST /v1/sessions
func (s *Server) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	lang := model.LanguageTamil
	if req.Language != "" {
		l, ok := model.ParseLanguage(req.Language)
		if !ok {
			writeProblem(w, http.StatusBadRequest, "Invalid language", req.Language, r.URL.Path)
			return
		}
		lang = l
	}
	sess := s.CreateSession(context.WithoutCancel(r.Context()), lang)
	writeJSON(w, http.StatusCreated, sess.Bot.Snapshot())
}

// SessionByIDHandler handles /v1/sessions/{id} and its sub-resources.
func (s *Server) SessionByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/sessions/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	sess, ok := s.Session(parts[0])
	if !ok {
		writeProblem(w, http.StatusNotFound, "Session not found", parts[0], path)
		return
	}
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, sess.Bot.Snapshot())
		case http.MethodDelete:
			s.CloseSession(sess.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	b := sess.Bot
	switch strings.Join(parts[1:], "/") {
	case "destination":
		switch r.Method {
		case http.MethodPost:
			var req struct {
				Key string `json:"key"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
				writeProblem(w, http.StatusBadRequest, "Invalid request", "key is required", path)
				return
			}
			if err := b.SelectDestination(r.Context(), req.Key); err != nil {
				botProblem(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, b.Snapshot())
		case http.MethodDelete:
			b.CancelDestination()
			writeJSON(w, http.StatusOK, b.Snapshot())
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "custom-route":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid request", "id is required", path)
			return
		}
		if err := b.SelectCustomRoute(r.Context(), req.ID); err != nil {
			botProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, b.Snapshot())
	case "positions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var p positionPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), path)
			return
		}
		if err := validatePosition(p.Lat, p.Lng); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid position", err.Error(), path)
			return
		}
		sess.Source.Push(p.sample())
		snap := b.Snapshot()
		writeJSON(w, http.StatusAccepted, map[string]any{"state": snap.State, "progress": snap.Progress})
	case "position-errors":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var p positionErrorPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), path)
			return
		}
		sess.Source.PushError(p.Code, p.Message)
		writeJSON(w, http.StatusAccepted, location.Classify(p.Code, p.Message))
	case "position":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		pos, ok := b.Position()
		if !ok {
			writeProblem(w, http.StatusNotFound, "No position yet", "", path)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	case "transcript":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
			writeProblem(w, http.StatusBadRequest, "Invalid request", "text is required", path)
			return
		}
		dest, matched, err := b.ProcessTranscript(r.Context(), req.Text)
		if err != nil {
			botProblem(w, r, err)
			return
		}
		out := map[string]any{"matched": matched, "session": b.Snapshot()}
		if matched {
			out["destination"] = dest
		}
		writeJSON(w, http.StatusOK, out)
	case "listen":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		text, err := b.StartListening(r.Context())
		if err != nil {
			botProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"transcript": text, "session": b.Snapshot()})
	case "language":
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Language string `json:"language"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		lang, ok := model.ParseLanguage(req.Language)
		if !ok {
			writeProblem(w, http.StatusBadRequest, "Invalid language", req.Language, path)
			return
		}
		b.SetLanguage(lang)
		writeJSON(w, http.StatusOK, b.Snapshot())
	case "mute":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"muted": b.ToggleMute()})
	case "reset":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b.ResetToHome()
		writeJSON(w, http.StatusOK, b.Snapshot())
	case "retry-location":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		pos, err := b.RetryLocation(r.Context())
		if err != nil {
			botProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, pos)
	case "route.geojson":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rt, ok := b.Route()
		if !ok {
			writeProblem(w, http.StatusNotFound, "No active route", "", path)
			return
		}
		body, err := routing.FeatureCollection(rt).MarshalJSON()
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "GeoJSON export failed", err.Error(), path)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	case "events/stream":
		s.streamSession(w, r, sess)
	case "ws":
		s.serveLink(w, r, sess)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}
