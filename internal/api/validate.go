package api

import (
	"fmt"
	"math"
	"strings"

	"campusnav/internal/model"
)

func validatePosition(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return fmt.Errorf("lat/lng must be numbers")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("lat must be in [-90,90]")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("lng must be in [-180,180]")
	}
	return nil
}

func validateLocationInput(in *model.CustomLocationInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.EnglishName = strings.TrimSpace(in.EnglishName)
	if in.Name == "" && in.EnglishName == "" {
		return fmt.Errorf("name or englishName is required")
	}
	if in.Lat == 0 && in.Lng == 0 {
		return fmt.Errorf("lat and lng are required")
	}
	return validatePosition(in.Lat, in.Lng)
}

func validateLocationPatch(p *model.CustomLocationPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" && p.EnglishName == nil {
		return fmt.Errorf("name must not be empty")
	}
	if p.Lat != nil && (*p.Lat < -90 || *p.Lat > 90) {
		return fmt.Errorf("lat must be in [-90,90]")
	}
	if p.Lng != nil && (*p.Lng < -180 || *p.Lng > 180) {
		return fmt.Errorf("lng must be in [-180,180]")
	}
	return nil
}
