package metrics

import "testing"

func TestRegisterDefaultIsIdempotent(t *testing.T) {
	RegisterDefault()
	RegisterDefault()
	RouteCache.WithLabelValues("hit").Inc()
	mfs, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "route_cache_lookups_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("route_cache_lookups_total not registered")
	}
}
