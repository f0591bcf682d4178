package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"campusnav/internal/catalog"
	"campusnav/internal/model"
	"campusnav/internal/store"
)

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check Postgres and Redis connectivity when configured
	type pinger interface{ Ping(ctx context.Context) error }
	for _, dep := range []any{s.Store, s.Broker} {
		pg, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := pg.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}

// DestinationsHandler handles GET /v1/destinations
func (s *Server) DestinationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	items, err := s.Catalog.Destinations(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List destinations failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "categories": s.Catalog.SortedCategories()})
}

// DestinationByKeyHandler handles GET /v1/destinations/{key}
func (s *Server) DestinationByKeyHandler(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/v1/destinations/")
	if key == "" || strings.Contains(key, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing key", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d, err := s.Catalog.Lookup(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Destination not found", key, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Lookup failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// CustomLocationsHandler handles GET/POST/DELETE /v1/custom-locations
func (s *Server) CustomLocationsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		all := r.URL.Query().Get("all") == "true"
		items, err := s.Catalog.Locations(r.Context(), all)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List custom locations failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var in model.CustomLocationInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateLocationInput(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid custom location", err.Error(), r.URL.Path)
			return
		}
		loc, err := s.Catalog.AddLocation(r.Context(), in)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create custom location failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, loc)
	case http.MethodDelete:
		if err := s.Catalog.ClearLocations(r.Context()); err != nil {
			writeProblem(w, http.StatusInternalServerError, "Clear custom locations failed", err.Error(), r.URL.Path)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CustomLocationByIDHandler handles /v1/custom-locations/{id} and /deactivate
func (s *Server) CustomLocationByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/custom-locations/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) > 1 {
		if parts[1] != "deactivate" || len(parts) > 2 {
			writeProblem(w, http.StatusNotFound, "Not Found", "", path)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		loc, err := s.Catalog.DeactivateLocation(r.Context(), id)
		if err != nil {
			storeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loc)
		return
	}
	switch r.Method {
	case http.MethodGet:
		loc, err := s.Catalog.Location(r.Context(), id)
		if err != nil {
			storeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loc)
	case http.MethodPatch:
		var p model.CustomLocationPatch
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), path)
			return
		}
		if err := validateLocationPatch(&p); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid custom location", err.Error(), path)
			return
		}
		loc, err := s.Catalog.UpdateLocation(r.Context(), id, p)
		if err != nil {
			storeProblem(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loc)
	case http.MethodDelete:
		if err := s.Catalog.DeleteLocation(r.Context(), id); err != nil {
			storeProblem(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// CustomRoutesHandler handles GET /v1/custom-routes[?difficulty=&maxDistance=]
func (s *Server) CustomRoutesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	items := s.Catalog.CustomRoutes()
	if d := q.Get("difficulty"); d != "" {
		var err error
		items, err = s.Catalog.RoutesByDifficulty(d)
		if errors.Is(err, catalog.ErrUnknownDifficulty) {
			writeProblem(w, http.StatusBadRequest, "Invalid difficulty", "expected easy, medium or hard", r.URL.Path)
			return
		}
	}
	if v := q.Get("maxDistance"); v != "" {
		maxM, err := strconv.ParseFloat(v, 64)
		if err != nil || maxM < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid maxDistance", v, r.URL.Path)
			return
		}
		if q.Get("difficulty") == "" {
			items = s.Catalog.RoutesByDistance(maxM)
		} else {
			filtered := items[:0:0]
			for _, rt := range items {
				if rt.Distance <= maxM {
					filtered = append(filtered, rt)
				}
			}
			items = filtered
		}
	}
	if items == nil {
		items = []model.CustomRoute{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CustomRouteByIDHandler handles GET /v1/custom-routes/{id}
func (s *Server) CustomRouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/custom-routes/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rt, ok := s.Catalog.CustomRoute(id)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Custom route not found", id, r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}
