package nav

import (
	"regexp"
	"strings"
)

type phraseRule struct {
	pattern   *regexp.Regexp
	canonical string
}

// phraseRules is evaluated top to bottom; the first match wins.
var phraseRules = []phraseRule{
	{regexp.MustCompile(`(?i)\bleft\b`), "Turn left"},
	{regexp.MustCompile(`(?i)\bright\b`), "Turn right"},
	{regexp.MustCompile(`(?i)\b(straight|continue)\b`), "Continue straight"},
	{regexp.MustCompile(`(?i)\bhead\b`), "Start walking"},
	{regexp.MustCompile(`(?i)\bexit\b`), "Exit the traffic circle"},
	{regexp.MustCompile(`(?i)\barrive`), "You have arrived at your destination"},
}

var (
	continueOnFor = regexp.MustCompile(`(?i)continue on .* for \d+\.?\d* ?m\b`)
	forDistance   = regexp.MustCompile(`(?i)\s*for \d+\.?\d* ?m\b`)
	spaces        = regexp.MustCompile(`\s+`)
)

// NormalizeInstruction collapses provider phrasing into a short spoken form.
// Text that matches no canonical phrase keeps its wording minus "for N m" tails.
func NormalizeInstruction(raw string) string {
	for _, r := range phraseRules {
		if r.pattern.MatchString(raw) {
			return r.canonical
		}
	}
	out := continueOnFor.ReplaceAllString(raw, "Continue straight")
	out = forDistance.ReplaceAllString(out, "")
	return strings.TrimSpace(spaces.ReplaceAllString(out, " "))
}
