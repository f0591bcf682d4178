package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"campusnav/internal/model"
)

func TestMemoryCustomLocationCRUD(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	a, err := m.CreateCustomLocation(ctx, model.CustomLocationInput{Name: " நீரூற்று ", EnglishName: "Fountain", Lat: 12.1927, Lng: 79.0839})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasPrefix(a.ID, IDPrefix) || !IsCustomID(a.ID) {
		t.Fatalf("id %q lacks prefix", a.ID)
	}
	if a.Name != "நீரூற்று" || !a.IsActive || a.CreatedAt.IsZero() {
		t.Fatalf("created %+v", a)
	}
	b, _ := m.CreateCustomLocation(ctx, model.CustomLocationInput{Name: "Bus stop", Lat: 12.1931, Lng: 79.0841})

	name := "Main fountain"
	inactive := false
	upd, err := m.UpdateCustomLocation(ctx, a.ID, model.CustomLocationPatch{EnglishName: &name, IsActive: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.EnglishName != "Main fountain" || upd.IsActive || upd.Lat != a.Lat {
		t.Fatalf("patched %+v", upd)
	}

	all, _ := m.ListCustomLocations(ctx, false)
	active, _ := m.ListCustomLocations(ctx, true)
	if len(all) != 2 || all[0].ID != a.ID || len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("list all=%v active=%v", all, active)
	}

	if err := m.DeleteCustomLocation(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetCustomLocation(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after delete, got %v", err)
	}
	if err := m.DeleteCustomLocation(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double delete: %v", err)
	}
	if _, err := m.UpdateCustomLocation(ctx, "custom_missing", model.CustomLocationPatch{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: %v", err)
	}

	if err := m.ClearCustomLocations(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if all, _ := m.ListCustomLocations(ctx, false); len(all) != 0 {
		t.Fatalf("clear left %v", all)
	}
}
