package api

import (
	"encoding/json"
	"net/http"
	"time"

	"campusnav/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build":    buildinfo.Info(),
		"time":     time.Now().UTC().Format(time.RFC3339),
		"config":   s.Config.Public(),
		"sessions": s.SessionCount(),
		"catalog": map[string]any{
			"buildings":    len(s.Catalog.Buildings("")),
			"customRoutes": len(s.Catalog.CustomRoutes()),
			"categories":   s.Catalog.SortedCategories(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
