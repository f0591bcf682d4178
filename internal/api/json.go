package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"campusnav/internal/bot"
	"campusnav/internal/location"
	"campusnav/internal/speech"
	"campusnav/internal/store"
)

// Problem is an RFC 7807 body. Error carries a typed failure (a location
// error) as an extension member.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Error    any    `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeProblemBody(w, Problem{Title: title, Status: status, Detail: detail, Instance: instance})
}

func writeProblemBody(w http.ResponseWriter, p Problem) {
	if p.Type == "" {
		p.Type = "about:blank"
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// botProblem maps session failures to problem responses.
func botProblem(w http.ResponseWriter, r *http.Request, err error) {
	var le *location.Error
	switch {
	case errors.Is(err, bot.ErrBusy):
		writeProblem(w, http.StatusConflict, "Operation in progress", err.Error(), r.URL.Path)
	case errors.Is(err, bot.ErrUnknownDestination), errors.Is(err, bot.ErrUnknownRoute):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error(), r.URL.Path)
	case errors.Is(err, bot.ErrClosed):
		writeProblem(w, http.StatusGone, "Session closed", err.Error(), r.URL.Path)
	case errors.As(err, &le):
		writeProblemBody(w, Problem{
			Title:    "Location error",
			Status:   http.StatusUnprocessableEntity,
			Detail:   le.Message,
			Instance: r.URL.Path,
			Error:    le,
		})
	case errors.Is(err, speech.ErrRecognitionUnsupported):
		writeProblem(w, http.StatusServiceUnavailable, "Speech recognition unavailable", err.Error(), r.URL.Path)
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Timed out", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal error", err.Error(), r.URL.Path)
	}
}

func storeProblem(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Custom location not found", err.Error(), r.URL.Path)
		return
	}
	writeProblem(w, http.StatusInternalServerError, "Custom location store failed", err.Error(), r.URL.Path)
}
