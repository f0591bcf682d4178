package speech

import (
	"testing"

	"campusnav/internal/model"
)

func TestSelectVoice(t *testing.T) {
	voices := []Voice{
		{Name: "Microsoft David", Lang: "en-US"},
		{Name: "Google UK English Male", Lang: "en-GB"},
		{Name: "Microsoft Zira", Lang: "en-US"},
		{Name: "Lekha", Lang: "hi-IN"},
		{Name: "Veena", Lang: "en-IN"},
	}
	if v, _ := SelectVoice(voices, model.LanguageEnglish); v.Name != "Microsoft Zira" {
		t.Fatalf("english: got %q", v.Name)
	}
	if v, _ := SelectVoice(voices, model.LanguageTamil); v.Name != "Veena" {
		t.Fatalf("tamil: got %q", v.Name)
	}
	if v, _ := SelectVoice(voices[:2], model.LanguageEnglish); v.Name != "Microsoft David" {
		t.Fatalf("first language match: got %q", v.Name)
	}
	if v, _ := SelectVoice([]Voice{{Name: "Thomas", Lang: "fr-FR"}}, model.LanguageTamil); v.Name != "Thomas" {
		t.Fatalf("fallback to first voice: got %q", v.Name)
	}
	if _, ok := SelectVoice(nil, model.LanguageTamil); ok {
		t.Fatal("no voices should report false")
	}
}

func TestNewUtteranceProsody(t *testing.T) {
	ta := NewUtterance("hi", model.LanguageTamil, nil)
	if ta.Rate != 0.9 || ta.Lang != "en-IN" || ta.Pitch != 1.1 || ta.Volume != 0.8 {
		t.Fatalf("tamil utterance %+v", ta)
	}
	en := NewUtterance("hi", model.LanguageEnglish, []Voice{{Name: "Google US English", Lang: "en-US"}})
	if en.Rate != 1.2 || en.Lang != "en-US" || en.Voice != "Google US English" {
		t.Fatalf("english utterance %+v", en)
	}
}
