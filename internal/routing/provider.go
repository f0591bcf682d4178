package routing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"campusnav/internal/geo"
	"campusnav/internal/model"
)

// ErrNoRoute is returned when the routing backend cannot produce a route.
var ErrNoRoute = errors.New("routing: no route")

// Provider computes a walking route between two points.
type Provider interface {
	Route(ctx context.Context, from, to model.GeoPoint) (model.Route, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, from, to model.GeoPoint) (model.Route, error)

func (f ProviderFunc) Route(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
	return f(ctx, from, to)
}

// DefaultWalkingSpeedMps is used by Direct when no speed is configured.
const DefaultWalkingSpeedMps = 1.4

// Direct returns the straight-line route from -> to. It never fails and is
// used as the fallback when the backend is unreachable.
func Direct(from, to model.GeoPoint, speedMps float64) model.Route {
	if speedMps <= 0 {
		speedMps = DefaultWalkingSpeedMps
	}
	d := geo.DistanceMeters(from, to)
	return model.Route{
		Instructions: []model.RouteInstruction{
			{Text: "Head towards your destination", Coordinate: from},
			{Text: "You have arrived at your destination", Coordinate: to},
		},
		Coordinates: []model.GeoPoint{from, to},
		Summary:     model.RouteSummary{TotalDistance: d, TotalTime: d / speedMps},
		Source:      model.RouteSourceDirect,
	}
}

// cacheKey rounds both endpoints to 1e-5 degrees (about a meter).
func cacheKey(profile string, from, to model.GeoPoint) string {
	r := func(v float64) float64 { return math.Round(v*1e5) / 1e5 }
	return fmt.Sprintf("route:%s:%.5f,%.5f;%.5f,%.5f", profile, r(from.Lat), r(from.Lng), r(to.Lat), r(to.Lng))
}
