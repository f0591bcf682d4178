package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"campusnav/internal/metrics"
	"campusnav/internal/model"
)

const tracerName = "campusnav/internal/routing"

// OSRM queries an OSRM HTTP server (the /route/v1 service).
type OSRM struct {
	BaseURL string
	Profile string
	Client  *http.Client
}

func NewOSRM(baseURL, profile string) *OSRM {
	if profile == "" {
		profile = "foot"
	}
	return &OSRM{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Profile: profile,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type osrmManeuver struct {
	Type         string    `json:"type"`
	Modifier     string    `json:"modifier"`
	Location     []float64 `json:"location"`
	BearingAfter float64   `json:"bearing_after"`
	Exit         int       `json:"exit"`
}

type osrmStep struct {
	Name     string       `json:"name"`
	Distance float64      `json:"distance"`
	Maneuver osrmManeuver `json:"maneuver"`
}

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Legs []struct {
			Steps []osrmStep `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

func (o *OSRM) Route(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "osrm.route", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("osrm.profile", o.Profile),
		attribute.Float64("route.from.lat", from.Lat),
		attribute.Float64("route.from.lng", from.Lng),
		attribute.Float64("route.to.lat", to.Lat),
		attribute.Float64("route.to.lng", to.Lng),
	)

	start := time.Now()
	rt, err := o.fetch(ctx, from, to)
	metrics.RouteLatency.WithLabelValues(model.RouteSourceOSRM).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RouteRequests.WithLabelValues(model.RouteSourceOSRM, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.Route{}, err
	}
	metrics.RouteRequests.WithLabelValues(model.RouteSourceOSRM, "ok").Inc()
	span.SetAttributes(
		attribute.Float64("route.distance_m", rt.Summary.TotalDistance),
		attribute.Int("route.instructions", len(rt.Instructions)),
	)
	return rt, nil
}

func (o *OSRM) fetch(ctx context.Context, from, to model.GeoPoint) (model.Route, error) {
	url := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=geojson&steps=true",
		o.BaseURL, o.Profile, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return model.Route{}, err
	}
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.Route{}, fmt.Errorf("osrm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Route{}, fmt.Errorf("osrm returned %d: %w", resp.StatusCode, ErrNoRoute)
	}
	var parsed osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.Route{}, fmt.Errorf("osrm decode: %w", err)
	}
	if parsed.Code != "Ok" || len(parsed.Routes) == 0 {
		return model.Route{}, fmt.Errorf("osrm code %q %s: %w", parsed.Code, parsed.Message, ErrNoRoute)
	}

	r := parsed.Routes[0]
	out := model.Route{
		Summary: model.RouteSummary{TotalDistance: r.Distance, TotalTime: r.Duration},
		Source:  model.RouteSourceOSRM,
	}
	for _, pair := range r.Geometry.Coordinates {
		if len(pair) < 2 {
			continue
		}
		out.Coordinates = append(out.Coordinates, model.GeoPoint{Lat: pair[1], Lng: pair[0]})
	}
	for _, leg := range r.Legs {
		for _, st := range leg.Steps {
			if len(st.Maneuver.Location) < 2 {
				continue
			}
			out.Instructions = append(out.Instructions, model.RouteInstruction{
				Text:       StepText(st.Maneuver.Type, st.Maneuver.Modifier, st.Name, st.Maneuver.BearingAfter, st.Distance),
				Coordinate: model.GeoPoint{Lat: st.Maneuver.Location[1], Lng: st.Maneuver.Location[0]},
			})
		}
	}
	return out, nil
}

// StepText renders an OSRM maneuver as an English instruction.
func StepText(kind, modifier, name string, bearing, distance float64) string {
	onto := ""
	if name != "" {
		onto = " onto " + name
	}
	var text string
	switch kind {
	case "depart":
		text = "Head " + compass(bearing)
		if name != "" {
			text += " on " + name
		}
	case "arrive":
		return "You have arrived at your destination"
	case "roundabout", "rotary", "exit roundabout", "exit rotary", "roundabout turn":
		text = "Exit the traffic circle" + onto
	case "continue", "new name":
		text = "Continue"
		if name != "" {
			text += " on " + name
		}
	default: // turn, fork, merge, end of road, ramps
		text = turnPhrase(modifier) + onto
	}
	if distance >= 1 {
		text += fmt.Sprintf(" for %d m", int(distance+0.5))
	}
	return text
}

func turnPhrase(modifier string) string {
	switch modifier {
	case "straight", "":
		return "Continue straight"
	case "uturn":
		return "Make a U-turn"
	case "slight left":
		return "Slight left"
	case "slight right":
		return "Slight right"
	case "sharp left":
		return "Sharp left"
	case "sharp right":
		return "Sharp right"
	default:
		return "Turn " + modifier
	}
}

var compassPoints = []string{"north", "northeast", "east", "southeast", "south", "southwest", "west", "northwest"}

func compass(bearing float64) string {
	for bearing < 0 {
		bearing += 360
	}
	i := int((bearing+22.5)/45) % 8
	return compassPoints[i]
}
