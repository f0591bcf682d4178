package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"campusnav/internal/model"
)

// Store is the persistence interface for user-created destinations.
type Store interface {
	CreateCustomLocation(ctx context.Context, in model.CustomLocationInput) (model.CustomLocation, error)
	ListCustomLocations(ctx context.Context, activeOnly bool) ([]model.CustomLocation, error)
	GetCustomLocation(ctx context.Context, id string) (model.CustomLocation, error)
	UpdateCustomLocation(ctx context.Context, id string, patch model.CustomLocationPatch) (model.CustomLocation, error)
	DeleteCustomLocation(ctx context.Context, id string) error
	ClearCustomLocations(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// IDPrefix marks custom location IDs.
const IDPrefix = "custom_"

func newID() string { return IDPrefix + uuid.NewString() }

// IsCustomID reports whether id names a custom location.
func IsCustomID(id string) bool { return strings.HasPrefix(id, IDPrefix) }

func newLocation(in model.CustomLocationInput, now time.Time) model.CustomLocation {
	return model.CustomLocation{
		ID:          newID(),
		Name:        strings.TrimSpace(in.Name),
		EnglishName: strings.TrimSpace(in.EnglishName),
		Lat:         in.Lat,
		Lng:         in.Lng,
		Description: in.Description,
		CreatedAt:   now.UTC(),
		IsActive:    true,
	}
}

func applyPatch(loc *model.CustomLocation, p model.CustomLocationPatch) {
	if p.Name != nil {
		loc.Name = strings.TrimSpace(*p.Name)
	}
	if p.EnglishName != nil {
		loc.EnglishName = strings.TrimSpace(*p.EnglishName)
	}
	if p.Lat != nil {
		loc.Lat = *p.Lat
	}
	if p.Lng != nil {
		loc.Lng = *p.Lng
	}
	if p.Description != nil {
		loc.Description = *p.Description
	}
	if p.IsActive != nil {
		loc.IsActive = *p.IsActive
	}
}
