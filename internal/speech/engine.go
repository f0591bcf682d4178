// Package speech serializes narration against a pluggable synthesis engine.
package speech

import (
	"context"
	"errors"
	"strings"

	"campusnav/internal/model"
)

// ErrEngineUnavailable is returned by engines that cannot speak (muted,
// unsupported or disconnected). The queue treats it as an immediate end.
var ErrEngineUnavailable = errors.New("speech: engine unavailable")

// ErrRecognitionUnsupported is returned by recognizers with no backend.
var ErrRecognitionUnsupported = errors.New("speech: recognition not supported")

type Voice struct {
	Name    string `json:"name"`
	Lang    string `json:"lang"`
	Default bool   `json:"default,omitempty"`
}

// Utterance is one fully configured synthesis request.
type Utterance struct {
	Text   string  `json:"text"`
	Voice  string  `json:"voice,omitempty"`
	Lang   string  `json:"lang"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Engine plays utterances. Speak blocks until playback ends or ctx is
// cancelled, in which case playback must stop.
type Engine interface {
	Speak(ctx context.Context, u Utterance) error
	Voices() []Voice
}

// Recognizer performs one-shot speech recognition.
type Recognizer interface {
	Listen(ctx context.Context, lang model.Language) (string, error)
}

// NullEngine is used when narration is unsupported.
type NullEngine struct{}

func (NullEngine) Speak(context.Context, Utterance) error { return ErrEngineUnavailable }
func (NullEngine) Voices() []Voice                         { return nil }

// NullRecognizer is used when recognition is unsupported.
type NullRecognizer struct{}

func (NullRecognizer) Listen(context.Context, model.Language) (string, error) {
	return "", ErrRecognitionUnsupported
}

var femaleHints = []string{"female", "woman", "samantha", "zira", "susan", "karen", "veena", "raveena"}

func looksFemale(name string) bool {
	n := strings.ToLower(name)
	for _, h := range femaleHints {
		if strings.Contains(n, h) {
			return true
		}
	}
	return strings.Contains(n, "google") && !strings.Contains(n, "male")
}

func matchesLanguage(v Voice, lang model.Language) bool {
	l := strings.ToLower(v.Lang)
	if lang == model.LanguageTamil {
		return strings.HasPrefix(l, "ta") || strings.HasPrefix(l, "hi") || strings.HasPrefix(l, "en-in")
	}
	return strings.HasPrefix(l, "en")
}

// SelectVoice picks a language-matching voice, preferring female voices,
// then the first language match, then the first voice at all.
func SelectVoice(voices []Voice, lang model.Language) (Voice, bool) {
	if len(voices) == 0 {
		return Voice{}, false
	}
	var first *Voice
	for i := range voices {
		v := voices[i]
		if !matchesLanguage(v, lang) {
			continue
		}
		if looksFemale(v.Name) {
			return v, true
		}
		if first == nil {
			first = &voices[i]
		}
	}
	if first != nil {
		return *first, true
	}
	return voices[0], true
}

// NewUtterance applies the per-language prosody settings.
func NewUtterance(text string, lang model.Language, voices []Voice) Utterance {
	u := Utterance{Text: text, Pitch: 1.1, Volume: 0.8}
	if lang == model.LanguageTamil {
		u.Rate, u.Lang = 0.9, "en-IN"
	} else {
		u.Rate, u.Lang = 1.2, "en-US"
	}
	if v, ok := SelectVoice(voices, lang); ok {
		u.Voice = v.Name
	}
	return u
}
