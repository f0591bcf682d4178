package model

import "time"

// Core domain types shared by the navigation packages and the API.

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// PositionSample is one device fix. Only the latest one is retained per session.
type PositionSample struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"ts"`
	AccuracyM float64   `json:"accuracyM,omitempty"`
}

func (p PositionSample) Point() GeoPoint { return GeoPoint{Lat: p.Lat, Lng: p.Lng} }

// RouteInstruction is one maneuver; its index in Route.Instructions is its identity.
type RouteInstruction struct {
	Text       string   `json:"text"`
	Coordinate GeoPoint `json:"coordinate"`
}

type RouteSummary struct {
	TotalDistance float64 `json:"totalDistance"` // meters
	TotalTime     float64 `json:"totalTime"`     // seconds
}

// Route sources
const (
	RouteSourceOSRM   = "osrm"
	RouteSourceCustom = "custom"
	RouteSourceDirect = "direct"
)

type Route struct {
	Instructions []RouteInstruction `json:"instructions"`
	Coordinates  []GeoPoint         `json:"coordinates"`
	Summary      RouteSummary       `json:"summary"`
	Source       string             `json:"source,omitempty"`
}

// Destination is a selectable building, either from the static campus
// catalog or a user-created custom location.
type Destination struct {
	Key         string  `json:"key" yaml:"key"`
	Name        string  `json:"name" yaml:"name"`
	EnglishName string  `json:"englishName,omitempty" yaml:"englishName"`
	Lat         float64 `json:"lat" yaml:"lat"`
	Lng         float64 `json:"lng" yaml:"lng"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Image       string  `json:"image,omitempty" yaml:"image"`
	Category    string  `json:"category,omitempty" yaml:"category"`
	IsCustom    bool    `json:"isCustom,omitempty" yaml:"-"`
}

func (d Destination) Point() GeoPoint { return GeoPoint{Lat: d.Lat, Lng: d.Lng} }

// DisplayName returns the name to use for the given language.
func (d Destination) DisplayName(lang Language) string {
	if lang == LanguageEnglish && d.EnglishName != "" {
		return d.EnglishName
	}
	return d.Name
}

type CustomLocation struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	EnglishName string    `json:"englishName"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	IsActive    bool      `json:"isActive"`
}

type CustomLocationInput struct {
	Name        string  `json:"name"`
	EnglishName string  `json:"englishName"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Description string  `json:"description"`
}

// CustomLocationPatch carries partial updates; nil fields are left unchanged.
type CustomLocationPatch struct {
	Name        *string  `json:"name,omitempty"`
	EnglishName *string  `json:"englishName,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
	Description *string  `json:"description,omitempty"`
	IsActive    *bool    `json:"isActive,omitempty"`
}

// Joint types of a custom route
const (
	JointStart    = "start"
	JointWaypoint = "waypoint"
	JointTurn     = "turn"
	JointEnd      = "end"
)

type RouteJoint struct {
	Lat         float64 `json:"lat" yaml:"lat"`
	Lng         float64 `json:"lng" yaml:"lng"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Type        string  `json:"type" yaml:"type"`
}

type CustomRoute struct {
	ID            string       `json:"id" yaml:"id"`
	Name          string       `json:"name" yaml:"name"`
	Description   string       `json:"description" yaml:"description"`
	Joints        []RouteJoint `json:"joints" yaml:"joints"`
	Distance      float64      `json:"distance" yaml:"distance"`           // meters
	EstimatedTime float64      `json:"estimatedTime" yaml:"estimatedTime"` // minutes
	Difficulty    string       `json:"difficulty" yaml:"difficulty"`
	IsActive      bool         `json:"isActive" yaml:"isActive"`
}

type Language string

const (
	LanguageTamil   Language = "tamil"
	LanguageEnglish Language = "english"
)

// ParseLanguage accepts the wire names plus common locale tags.
func ParseLanguage(s string) (Language, bool) {
	switch s {
	case "tamil", "ta", "ta-IN":
		return LanguageTamil, true
	case "english", "en", "en-US", "en-IN":
		return LanguageEnglish, true
	}
	return "", false
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // bot, user
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation steps
const (
	StepWelcome    = "welcome"
	StepSelecting  = "selecting"
	StepNavigating = "navigating"
	StepArrived    = "arrived"
)

type NavigationState struct {
	CurrentStep         string   `json:"currentStep"`
	SelectedDestination string   `json:"selectedDestination,omitempty"`
	IsListening         bool     `json:"isListening"`
	IsSpeaking          bool     `json:"isSpeaking"`
	IsMuted             bool     `json:"isMuted"`
	Language            Language `json:"language"`
}

// RouteInfo is the distance/duration pair announced after route calculation.
type RouteInfo struct {
	DistanceM   float64 `json:"distanceM"`
	DurationSec float64 `json:"durationSec"`
	Source      string  `json:"source,omitempty"`
}
