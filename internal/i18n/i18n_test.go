package i18n

import (
	"strings"
	"testing"

	"campusnav/internal/model"
)

func TestBothLanguagesDefineEveryKey(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	keys := []string{
		Welcome, SelectDestination, Calculating, CalculatingStatus, RouteCalculated,
		NavigationStarted, DestinationReached, DidNotCatch, HelpMore, SpeechNotSupported,
		RecognitionError, Listening, NavigationCancelled, RoutingIssue, LocationSuccess,
		RouteRecalculated, Recalculating,
		CustomRouteSelected, CustomRouteDetails,
		unitMeters, unitKilometers, unitMinutes, unitSeconds,
	}
	for _, typ := range []string{"permission", "unavailable", "timeout", "network", "too_far", "general"} {
		keys = append(keys, LocationErrorKey(typ))
	}
	for _, lang := range []model.Language{model.LanguageTamil, model.LanguageEnglish} {
		for _, k := range keys {
			if !c.Has(lang, k) {
				t.Errorf("%s: missing %q", lang, k)
			}
		}
	}
}

func TestTextFormatsArguments(t *testing.T) {
	c := MustLoad()
	got := c.Text(model.LanguageEnglish, Calculating, "Library", "Central library.")
	if got != "Perfect! I'll guide you to Library. Central library. Calculating your route now..." {
		t.Fatalf("english calculating: %q", got)
	}
	ta := c.Text(model.LanguageTamil, Calculating, "நூலகம்", "ignored")
	if !strings.Contains(ta, "நூலகம்") || strings.Contains(ta, "ignored") {
		t.Fatalf("tamil calculating: %q", ta)
	}
	if got := c.Text(model.LanguageTamil, Welcome); !strings.HasPrefix(got, "வணக்கம்") {
		t.Fatalf("tamil welcome: %q", got)
	}
}

func TestDistanceAndDuration(t *testing.T) {
	c := MustLoad()
	if got := c.Distance(model.LanguageEnglish, 240.4); got != "240 meters" {
		t.Fatalf("distance: %q", got)
	}
	if got := c.Distance(model.LanguageEnglish, 1540); got != "1.5 kilometers" {
		t.Fatalf("distance km: %q", got)
	}
	if got := c.Duration(model.LanguageEnglish, 171); got != "3 minutes" {
		t.Fatalf("duration: %q", got)
	}
	if got := c.Duration(model.LanguageEnglish, 45); got != "45 seconds" {
		t.Fatalf("duration s: %q", got)
	}
	if got := c.Distance(model.LanguageTamil, 80); got != "80 மீட்டர்" {
		t.Fatalf("tamil distance: %q", got)
	}
}

func TestLocationErrorKeyDefaultsToGeneral(t *testing.T) {
	if got := LocationErrorKey("weird"); got != "location_error.general" {
		t.Fatalf("got %q", got)
	}
	if got := LocationErrorKey("too_far"); got != "location_error.too_far" {
		t.Fatalf("got %q", got)
	}
}
