// Package catalog resolves destinations: the static campus buildings,
// user-created custom locations and the hand-drawn custom routes.
package catalog

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"campusnav/internal/geo"
	"campusnav/internal/model"
	"campusnav/internal/store"
)

// CategoryCustom groups user-created locations in listings.
const CategoryCustom = "custom"

//go:embed data/*.yaml
var dataFS embed.FS

type buildingsFile struct {
	Buildings []model.Destination `yaml:"buildings"`
}

type routesFile struct {
	Routes []model.CustomRoute `yaml:"routes"`
}

// Catalog is safe for concurrent use; static data is immutable after Load.
type Catalog struct {
	buildings []model.Destination
	byKey     map[string]int
	routes    []model.CustomRoute
	routeByID map[string]int
	store     store.Store
}

// Load parses the embedded building and route data. st holds custom locations.
func Load(st store.Store) (*Catalog, error) {
	var bf buildingsFile
	if err := decode("data/buildings.yaml", &bf); err != nil {
		return nil, err
	}
	var rf routesFile
	if err := decode("data/routes.yaml", &rf); err != nil {
		return nil, err
	}
	return New(bf.Buildings, rf.Routes, st)
}

func decode(path string, v any) error {
	b, err := dataFS.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// New builds a catalog from explicit data.
func New(buildings []model.Destination, routes []model.CustomRoute, st store.Store) (*Catalog, error) {
	if st == nil {
		st = store.NewMemory()
	}
	c := &Catalog{byKey: map[string]int{}, routeByID: map[string]int{}, store: st}
	for _, b := range buildings {
		if b.Key == "" {
			return nil, fmt.Errorf("building %q has no key", b.Name)
		}
		if _, dup := c.byKey[b.Key]; dup {
			return nil, fmt.Errorf("duplicate building key %q", b.Key)
		}
		b.IsCustom = false
		c.byKey[b.Key] = len(c.buildings)
		c.buildings = append(c.buildings, b)
	}
	for _, r := range routes {
		if len(r.Joints) < 2 {
			return nil, fmt.Errorf("route %q needs at least two joints", r.ID)
		}
		c.routeByID[r.ID] = len(c.routes)
		c.routes = append(c.routes, r)
	}
	return c, nil
}

func (c *Catalog) Store() store.Store { return c.store }

// Buildings lists static buildings, optionally filtered by category.
func (c *Catalog) Buildings(category string) []model.Destination {
	out := make([]model.Destination, 0, len(c.buildings))
	for _, b := range c.buildings {
		if category == "" || b.Category == category {
			out = append(out, b)
		}
	}
	return out
}

// Categories returns category -> building keys in catalog order.
func (c *Catalog) Categories() map[string][]string {
	out := map[string][]string{}
	for _, b := range c.buildings {
		out[b.Category] = append(out[b.Category], b.Key)
	}
	return out
}

// Destinations lists static buildings followed by active custom locations.
// category "custom" selects only the latter.
func (c *Catalog) Destinations(ctx context.Context, category string) ([]model.Destination, error) {
	var out []model.Destination
	if category != CategoryCustom {
		out = c.Buildings(category)
	}
	if category != "" && category != CategoryCustom {
		return out, nil
	}
	locs, err := c.store.ListCustomLocations(ctx, true)
	if err != nil {
		return nil, err
	}
	for _, l := range locs {
		out = append(out, FromCustom(l))
	}
	return out, nil
}

// FromCustom converts a custom location to a selectable destination.
func FromCustom(l model.CustomLocation) model.Destination {
	return model.Destination{
		Key:         l.ID,
		Name:        l.Name,
		EnglishName: l.EnglishName,
		Lat:         l.Lat,
		Lng:         l.Lng,
		Description: l.Description,
		Category:    CategoryCustom,
		IsCustom:    true,
	}
}

// Lookup resolves a static key or an active custom location ID.
func (c *Catalog) Lookup(ctx context.Context, key string) (model.Destination, error) {
	if i, ok := c.byKey[key]; ok {
		return c.buildings[i], nil
	}
	if !store.IsCustomID(key) {
		return model.Destination{}, store.ErrNotFound
	}
	l, err := c.store.GetCustomLocation(ctx, key)
	if err != nil {
		return model.Destination{}, err
	}
	if !l.IsActive {
		return model.Destination{}, store.ErrNotFound
	}
	return FromCustom(l), nil
}

// Match finds the destination named in a free-text transcript. Tamil and
// English names match as substrings, keys as whole words; the longest
// match wins and ties go to catalog order.
func (c *Catalog) Match(ctx context.Context, transcript string) (model.Destination, bool, error) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if text == "" {
		return model.Destination{}, false, nil
	}
	words := map[string]struct{}{}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 127)
	}) {
		words[w] = struct{}{}
	}
	all, err := c.Destinations(ctx, "")
	if err != nil {
		return model.Destination{}, false, err
	}
	best, bestScore := -1, 0
	for i, d := range all {
		score := 0
		for _, name := range []string{d.Name, d.EnglishName} {
			n := strings.ToLower(strings.TrimSpace(name))
			if n != "" && strings.Contains(text, n) && len(n) > score {
				score = len(n)
			}
		}
		if _, ok := words[strings.ToLower(d.Key)]; ok && len(d.Key) > score {
			score = len(d.Key)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return model.Destination{}, false, nil
	}
	return all[best], true, nil
}

// Custom location management.

func (c *Catalog) AddLocation(ctx context.Context, in model.CustomLocationInput) (model.CustomLocation, error) {
	return c.store.CreateCustomLocation(ctx, in)
}

func (c *Catalog) UpdateLocation(ctx context.Context, id string, p model.CustomLocationPatch) (model.CustomLocation, error) {
	return c.store.UpdateCustomLocation(ctx, id, p)
}

func (c *Catalog) DeleteLocation(ctx context.Context, id string) error {
	return c.store.DeleteCustomLocation(ctx, id)
}

func (c *Catalog) DeactivateLocation(ctx context.Context, id string) (model.CustomLocation, error) {
	inactive := false
	return c.store.UpdateCustomLocation(ctx, id, model.CustomLocationPatch{IsActive: &inactive})
}

func (c *Catalog) Location(ctx context.Context, id string) (model.CustomLocation, error) {
	return c.store.GetCustomLocation(ctx, id)
}

func (c *Catalog) Locations(ctx context.Context, includeInactive bool) ([]model.CustomLocation, error) {
	return c.store.ListCustomLocations(ctx, !includeInactive)
}

func (c *Catalog) ClearLocations(ctx context.Context) error {
	return c.store.ClearCustomLocations(ctx)
}

// Custom routes.

// ErrUnknownDifficulty is returned for filters outside easy|medium|hard.
var ErrUnknownDifficulty = errors.New("unknown difficulty")

// CustomRoutes lists active routes.
func (c *Catalog) CustomRoutes() []model.CustomRoute {
	out := make([]model.CustomRoute, 0, len(c.routes))
	for _, r := range c.routes {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out
}

func (c *Catalog) CustomRoute(id string) (model.CustomRoute, bool) {
	i, ok := c.routeByID[id]
	if !ok {
		return model.CustomRoute{}, false
	}
	return c.routes[i], true
}

func (c *Catalog) RoutesByDifficulty(d string) ([]model.CustomRoute, error) {
	switch d {
	case "easy", "medium", "hard":
	default:
		return nil, ErrUnknownDifficulty
	}
	var out []model.CustomRoute
	for _, r := range c.CustomRoutes() {
		if r.Difficulty == d {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Catalog) RoutesByDistance(maxM float64) []model.CustomRoute {
	var out []model.CustomRoute
	for _, r := range c.CustomRoutes() {
		if r.Distance <= maxM {
			out = append(out, r)
		}
	}
	return out
}

// RouteDistance sums the haversine legs between joints, rounded to meters.
func RouteDistance(joints []model.RouteJoint) float64 {
	if len(joints) < 2 {
		return 0
	}
	pts := make([]model.GeoPoint, len(joints))
	for i, j := range joints {
		pts[i] = model.GeoPoint{Lat: j.Lat, Lng: j.Lng}
	}
	return math.Round(geo.PathLength(pts))
}

// AsRoute turns a custom route into a navigable route: one instruction per
// joint, the joints as geometry and the last joint as destination.
func AsRoute(r model.CustomRoute) (model.Route, model.GeoPoint) {
	out := model.Route{Source: model.RouteSourceCustom}
	for i, j := range r.Joints {
		pt := model.GeoPoint{Lat: j.Lat, Lng: j.Lng}
		out.Coordinates = append(out.Coordinates, pt)
		out.Instructions = append(out.Instructions, model.RouteInstruction{Text: jointText(r.Joints, i), Coordinate: pt})
	}
	dist := r.Distance
	if dist <= 0 {
		dist = RouteDistance(r.Joints)
	}
	out.Summary = model.RouteSummary{TotalDistance: dist, TotalTime: r.EstimatedTime * 60}
	last := r.Joints[len(r.Joints)-1]
	return out, model.GeoPoint{Lat: last.Lat, Lng: last.Lng}
}

func jointText(joints []model.RouteJoint, i int) string {
	j := joints[i]
	switch j.Type {
	case model.JointStart:
		if i+1 < len(joints) {
			return "Head towards " + joints[i+1].Name
		}
		return "Head out"
	case model.JointTurn:
		return "Turn at " + j.Name
	case model.JointEnd:
		return "Arrive at " + j.Name
	}
	return "Continue past " + j.Name
}

// SortedCategories returns the category names in stable order.
func (c *Catalog) SortedCategories() []string {
	cats := c.Categories()
	out := make([]string, 0, len(cats))
	for k := range cats {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
