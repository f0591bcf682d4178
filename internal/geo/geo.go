// Package geo holds the small amount of spherical geometry the navigation
// packages share.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"campusnav/internal/model"
)

// Point converts to an orb point (lng, lat order).
func Point(p model.GeoPoint) orb.Point { return orb.Point{p.Lng, p.Lat} }

// LineString converts a coordinate sequence to an orb line string.
func LineString(pts []model.GeoPoint) orb.LineString {
	ls := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		ls = append(ls, Point(p))
	}
	return ls
}

// DistanceMeters is the great-circle (haversine) distance between two points.
func DistanceMeters(a, b model.GeoPoint) float64 {
	return orbgeo.DistanceHaversine(Point(a), Point(b))
}

// ClosestDistance scans every coordinate and returns the smallest distance to p.
// An empty sequence yields +Inf.
func ClosestDistance(p model.GeoPoint, coords []model.GeoPoint) float64 {
	min := math.Inf(1)
	for _, c := range coords {
		if d := DistanceMeters(p, c); d < min {
			min = d
		}
	}
	return min
}

// Densify returns coords with points interpolated so that no two
// consecutive points are more than stepM apart. The input is not modified.
func Densify(coords []model.GeoPoint, stepM float64) []model.GeoPoint {
	out := make([]model.GeoPoint, 0, len(coords))
	for i, c := range coords {
		if i > 0 && stepM > 0 {
			prev := coords[i-1]
			n := int(math.Ceil(DistanceMeters(prev, c) / stepM))
			for k := 1; k < n; k++ {
				f := float64(k) / float64(n)
				out = append(out, model.GeoPoint{
					Lat: prev.Lat + (c.Lat-prev.Lat)*f,
					Lng: prev.Lng + (c.Lng-prev.Lng)*f,
				})
			}
		}
		out = append(out, c)
	}
	return out
}

// PathLength sums the leg distances of a coordinate sequence.
func PathLength(coords []model.GeoPoint) float64 {
	total := 0.0
	for i := 0; i < len(coords)-1; i++ {
		total += DistanceMeters(coords[i], coords[i+1])
	}
	return total
}

// WithinRadius reports whether p lies within radiusM of center.
func WithinRadius(p, center model.GeoPoint, radiusM float64) bool {
	return DistanceMeters(p, center) <= radiusM
}
