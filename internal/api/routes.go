package api

import "net/http"

// Mux registers every API handler. /metrics and middleware are added by
// the caller.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.HandleFunc("/debug", s.DebugJSON)

	// Docs
	mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
	mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
	mux.HandleFunc("/docs", s.DocsHandler)

	// Catalog
	mux.HandleFunc("/v1/destinations", s.DestinationsHandler)
	mux.HandleFunc("/v1/destinations/", s.DestinationByKeyHandler)
	mux.HandleFunc("/v1/custom-locations", s.CustomLocationsHandler)
	mux.HandleFunc("/v1/custom-locations/", s.CustomLocationByIDHandler) // includes /deactivate
	mux.HandleFunc("/v1/custom-routes", s.CustomRoutesHandler)
	mux.HandleFunc("/v1/custom-routes/", s.CustomRouteByIDHandler)

	// Navigation sessions
	mux.HandleFunc("/v1/sessions", s.SessionsHandler)
	mux.HandleFunc("/v1/sessions/", s.SessionByIDHandler) // includes /events/stream, /ws
	return mux
}
