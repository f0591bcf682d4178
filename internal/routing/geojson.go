package routing

import (
	"github.com/paulmach/orb/geojson"

	"campusnav/internal/geo"
	"campusnav/internal/model"
)

// FeatureCollection exports a route as GeoJSON: the path as a LineString
// followed by one Point per instruction.
func FeatureCollection(r model.Route) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	line := geojson.NewFeature(geo.LineString(r.Coordinates))
	line.Properties["kind"] = "route"
	line.Properties["source"] = r.Source
	line.Properties["distance"] = r.Summary.TotalDistance
	line.Properties["duration"] = r.Summary.TotalTime
	fc.Append(line)

	for i, in := range r.Instructions {
		f := geojson.NewFeature(geo.Point(in.Coordinate))
		f.Properties["kind"] = "instruction"
		f.Properties["index"] = i
		f.Properties["text"] = in.Text
		fc.Append(f)
	}
	return fc
}
