package geo

import (
	"math"
	"testing"

	"campusnav/internal/model"
)

func TestDistanceMeters(t *testing.T) {
	a := model.GeoPoint{Lat: 12.192850, Lng: 79.083730}
	if d := DistanceMeters(a, a); d != 0 {
		t.Fatalf("same point: got %v", d)
	}
	// ~0.001 deg latitude is ~111 m
	b := model.GeoPoint{Lat: 12.193850, Lng: 79.083730}
	d := DistanceMeters(a, b)
	if d < 105 || d > 116 {
		t.Fatalf("want ~111m, got %v", d)
	}
}

func TestClosestDistance(t *testing.T) {
	p := model.GeoPoint{Lat: 12.1928, Lng: 79.0837}
	if d := ClosestDistance(p, nil); !math.IsInf(d, 1) {
		t.Fatalf("empty coords should be +Inf, got %v", d)
	}
	coords := []model.GeoPoint{{Lat: 12.2, Lng: 79.1}, p, {Lat: 12.19, Lng: 79.08}}
	if d := ClosestDistance(p, coords); d != 0 {
		t.Fatalf("want 0, got %v", d)
	}
}

func TestWithinRadius(t *testing.T) {
	center := model.GeoPoint{Lat: 12.1928, Lng: 79.0837}
	if !WithinRadius(center, center, 5000) {
		t.Fatal("center must be within its own radius")
	}
	if WithinRadius(model.GeoPoint{}, center, 5000) {
		t.Fatal("null island is not on campus")
	}
}

func TestPathLength(t *testing.T) {
	a := model.GeoPoint{Lat: 12.1920, Lng: 79.0830}
	b := model.GeoPoint{Lat: 12.1930, Lng: 79.0830}
	if got, want := PathLength([]model.GeoPoint{a, b, a}), 2*DistanceMeters(a, b); math.Abs(got-want) > 1e-6 {
		t.Fatalf("got %v want %v", got, want)
	}
	if PathLength([]model.GeoPoint{a}) != 0 {
		t.Fatal("single point has zero length")
	}
}

func TestDensify(t *testing.T) {
	a := model.GeoPoint{Lat: 12.1895, Lng: 79.0835}
	b := model.GeoPoint{Lat: 12.1925, Lng: 79.0835}
	pts := Densify([]model.GeoPoint{a, b}, 10)
	if pts[0] != a || pts[len(pts)-1] != b {
		t.Fatalf("endpoints changed: %v .. %v", pts[0], pts[len(pts)-1])
	}
	for i := 1; i < len(pts); i++ {
		if d := DistanceMeters(pts[i-1], pts[i]); d > 10.001 {
			t.Fatalf("gap %d is %.2fm", i, d)
		}
	}
	if got := PathLength(pts); math.Abs(got-DistanceMeters(a, b)) > 0.5 {
		t.Fatalf("length changed: %v", got)
	}
	if len(Densify(nil, 10)) != 0 {
		t.Fatal("empty input")
	}
}
