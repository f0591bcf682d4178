package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || !cfg.DBMigrate || cfg.Routing.OSRMProfile != "foot" {
		t.Fatalf("defaults: %+v", cfg)
	}
	tc := cfg.Navigation.Tracker()
	if tc.TriggerDistanceM != 20 || tc.DeviationDistanceM != 50 || tc.RecalcInterval != 30*time.Second {
		t.Fatalf("tracker defaults: %+v", tc)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "campusnav.yaml")
	body := `
port: "9000"
rateRPS: 5
routing:
  osrmProfile: walking
  cacheTTL: 1m
navigation:
  triggerDistanceM: 15
  recalcInterval: 45s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "9100")
	t.Setenv("DB_MIGRATE", "false")
	t.Setenv("NAV_TRIGGER_DISTANCE_M", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// env beats file
	if cfg.Port != "9100" || cfg.Navigation.TriggerDistanceM != 25 || cfg.DBMigrate {
		t.Fatalf("env overrides: %+v", cfg)
	}
	// file beats defaults
	if cfg.RateRPS != 5 || cfg.Routing.OSRMProfile != "walking" || cfg.Routing.CacheTTL != time.Minute {
		t.Fatalf("file values: %+v", cfg)
	}
	if cfg.Navigation.RecalcInterval != 45*time.Second {
		t.Fatalf("recalc: %v", cfg.Navigation.RecalcInterval)
	}
	// untouched defaults survive
	if cfg.RateBurst != 40 || cfg.Navigation.SpeakThresholdM != 20 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadBadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestPublicHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://user:secret@db/campus"
	cfg.RedisURL = "redis://:pw@cache:6379"
	pub := cfg.Public()
	if pub["store"] != "postgres" || pub["broker"] != "redis" {
		t.Fatalf("public: %+v", pub)
	}
	for _, v := range pub {
		if s, ok := v.(string); ok && (s == cfg.DatabaseURL || s == cfg.RedisURL) {
			t.Fatalf("secret leaked: %s", s)
		}
	}
}
