// Package i18n holds the bilingual (Tamil/English) message catalog used for
// chat and narration text.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"

	"campusnav/internal/model"
)

// Message keys.
const (
	Welcome             = "welcome"
	SelectDestination   = "select_destination"
	Calculating         = "calculating"
	CalculatingStatus   = "calculating_status"
	RouteCalculated     = "route_calculated"
	NavigationStarted   = "navigation_started"
	DestinationReached  = "destination_reached"
	DidNotCatch         = "did_not_catch"
	HelpMore            = "help_more"
	SpeechNotSupported  = "speech_not_supported"
	RecognitionError    = "recognition_error"
	Listening           = "listening"
	NavigationCancelled = "navigation_cancelled"
	RoutingIssue        = "routing_issue"
	RouteRecalculated   = "route_recalculated"
	Recalculating       = "recalculating"
	LocationSuccess     = "location_success"
	CustomRouteSelected = "custom_route_selected"
	CustomRouteDetails  = "custom_route_details"

	unitMeters     = "unit.meters"
	unitKilometers = "unit.kilometers"
	unitMinutes    = "unit.minutes"
	unitSeconds    = "unit.seconds"
)

// LocationErrorKey returns the key for a location error type (permission,
// unavailable, timeout, network, too_far, general).
func LocationErrorKey(errType string) string {
	switch errType {
	case "permission", "unavailable", "timeout", "network", "too_far":
		return "location_error." + errType
	}
	return "location_error.general"
}

//go:embed locales/*.yaml
var localesFS embed.FS

type localeFile struct {
	Locale   string            `yaml:"locale"`
	Messages map[string]string `yaml:"messages"`
}

// Catalog resolves message keys for both supported languages.
type Catalog struct {
	builder *catalog.Builder
	keys    map[language.Tag]map[string]struct{}
}

// Load builds a catalog from the embedded locale files.
func Load() (*Catalog, error) {
	return LoadFromFS(localesFS)
}

// MustLoad is Load for package-level initialization.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFromFS reads locales/*.yaml from fsys.
func LoadFromFS(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locales: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no locale files found")
	}
	sort.Strings(paths)

	c := &Catalog{
		builder: catalog.NewBuilder(catalog.Fallback(language.English)),
		keys:    map[language.Tag]map[string]struct{}{},
	}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var f localeFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		tag, err := language.Parse(strings.TrimSpace(f.Locale))
		if err != nil {
			return nil, fmt.Errorf("%s: locale %q: %w", path, f.Locale, err)
		}
		if c.keys[tag] == nil {
			c.keys[tag] = map[string]struct{}{}
		}
		for key, msg := range f.Messages {
			if err := c.builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("%s: set %q: %w", path, key, err)
			}
			c.keys[tag][key] = struct{}{}
		}
	}
	return c, nil
}

// Tag maps a navigation language to its BCP 47 tag.
func Tag(lang model.Language) language.Tag {
	if lang == model.LanguageTamil {
		return language.Tamil
	}
	return language.English
}

// Has reports whether key is defined for lang without fallback.
func (c *Catalog) Has(lang model.Language, key string) bool {
	_, ok := c.keys[Tag(lang)][key]
	return ok
}

// Text formats key in lang. Unknown keys are formatted as-is.
func (c *Catalog) Text(lang model.Language, key string, args ...any) string {
	p := message.NewPrinter(Tag(lang), message.Catalog(c.builder))
	return p.Sprintf(key, args...)
}

// Distance renders meters as "N meters" or, above one kilometer, "N.N kilometers".
func (c *Catalog) Distance(lang model.Language, meters float64) string {
	if meters > 1000 {
		return c.Text(lang, unitKilometers, meters/1000)
	}
	return c.Text(lang, unitMeters, int(math.Round(meters)))
}

// Duration renders seconds as whole minutes above one minute, else seconds.
func (c *Catalog) Duration(lang model.Language, seconds float64) string {
	if seconds > 60 {
		return c.Text(lang, unitMinutes, int(math.Round(seconds/60)))
	}
	return c.Text(lang, unitSeconds, int(math.Round(seconds)))
}
