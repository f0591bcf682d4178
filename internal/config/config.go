// Package config loads service settings: built-in defaults, then an optional
// YAML file named by CONFIG_FILE, then environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"campusnav/internal/nav"
)

type Config struct {
	Port          string  `yaml:"port" env:"PORT"`
	ServiceName   string  `yaml:"serviceName" env:"SERVICE_NAME"`
	DatabaseURL   string  `yaml:"databaseURL" env:"DATABASE_URL"`
	DBMigrate     bool    `yaml:"dbMigrate" env:"DB_MIGRATE"`
	MigrationsDir string  `yaml:"migrationsDir" env:"MIGRATIONS_DIR"`
	RedisURL      string  `yaml:"redisURL" env:"REDIS_URL"`
	OTelEndpoint  string  `yaml:"otelEndpoint" env:"OTEL_ENDPOINT"`
	RateRPS       float64 `yaml:"rateRPS" env:"RATE_RPS"`
	RateBurst     int     `yaml:"rateBurst" env:"RATE_BURST"`

	// SessionIdleTTL closes sessions with no requests and no open stream.
	SessionIdleTTL time.Duration `yaml:"sessionIdleTTL" env:"SESSION_IDLE_TTL"`

	Routing    Routing    `yaml:"routing"`
	Navigation Navigation `yaml:"navigation"`
}

type Routing struct {
	OSRMURL     string        `yaml:"osrmURL" env:"OSRM_URL"`
	OSRMProfile string        `yaml:"osrmProfile" env:"OSRM_PROFILE"`
	CacheTTL    time.Duration `yaml:"cacheTTL" env:"ROUTE_CACHE_TTL"`
}

type Navigation struct {
	TriggerDistanceM   float64       `yaml:"triggerDistanceM" env:"NAV_TRIGGER_DISTANCE_M"`
	DeviationDistanceM float64       `yaml:"deviationDistanceM" env:"NAV_DEVIATION_DISTANCE_M"`
	ApproachDistanceM  float64       `yaml:"approachDistanceM" env:"NAV_APPROACH_DISTANCE_M"`
	RecalcInterval     time.Duration `yaml:"recalcInterval" env:"NAV_RECALC_INTERVAL"`
	WalkingSpeedMps    float64       `yaml:"walkingSpeedMps" env:"NAV_WALKING_SPEED_MPS"`
	SpeakThresholdM    float64       `yaml:"speakThresholdM" env:"NAV_SPEAK_THRESHOLD_M"`
	MinSampleInterval  time.Duration `yaml:"minSampleInterval" env:"NAV_MIN_SAMPLE_INTERVAL"`
	DuplicateWindow    time.Duration `yaml:"duplicateWindow" env:"NAV_DUPLICATE_WINDOW"`
	TooFarResetDelay   time.Duration `yaml:"tooFarResetDelay" env:"NAV_TOO_FAR_RESET_DELAY"`
}

func Default() Config {
	tc := nav.DefaultConfig()
	return Config{
		Port:          "8080",
		ServiceName:   "campusnav",
		DBMigrate:     true,
		MigrationsDir: "db/migrations",
		RateRPS:       20,
		RateBurst:     40,

		SessionIdleTTL: 30 * time.Minute,
		Routing: Routing{
			OSRMURL:     "https://router.project-osrm.org",
			OSRMProfile: "foot",
			CacheTTL:    10 * time.Minute,
		},
		Navigation: Navigation{
			TriggerDistanceM:   tc.TriggerDistanceM,
			DeviationDistanceM: tc.DeviationDistanceM,
			ApproachDistanceM:  tc.ApproachDistanceM,
			RecalcInterval:     tc.RecalcInterval,
			WalkingSpeedMps:    tc.WalkingSpeedMps,
			SpeakThresholdM:    20,
			MinSampleInterval:  time.Second,
			DuplicateWindow:    2 * time.Second,
			TooFarResetDelay:   3 * time.Second,
		},
	}
}

// Load reads CONFIG_FILE (if set) and the environment on top of Default.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("config: port is required")
	}
	if c.RateRPS < 0 || c.RateBurst < 0 {
		return fmt.Errorf("config: rate limits must not be negative")
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("config: session idle ttl must not be negative")
	}
	n := c.Navigation
	if n.TriggerDistanceM < 0 || n.DeviationDistanceM < 0 || n.SpeakThresholdM < 0 {
		return fmt.Errorf("config: navigation distances must not be negative")
	}
	return nil
}

// Tracker returns the tracker thresholds.
func (n Navigation) Tracker() nav.Config {
	return nav.Config{
		TriggerDistanceM:   n.TriggerDistanceM,
		DeviationDistanceM: n.DeviationDistanceM,
		ApproachDistanceM:  n.ApproachDistanceM,
		RecalcInterval:     n.RecalcInterval,
		WalkingSpeedMps:    n.WalkingSpeedMps,
	}
}

// Public is the subset of the configuration safe to expose on /debug.
func (c Config) Public() map[string]any {
	return map[string]any{
		"port":           c.Port,
		"store":          storeKind(c.DatabaseURL),
		"broker":         brokerKind(c.RedisURL),
		"tracing":        c.OTelEndpoint != "",
		"rateRPS":        c.RateRPS,
		"rateBurst":      c.RateBurst,
		"osrmProfile":    c.Routing.OSRMProfile,
		"routeCacheTTL":  c.Routing.CacheTTL.String(),
		"sessionIdleTTL": c.SessionIdleTTL.String(),
		"navigation":     c.Navigation,
	}
}

func storeKind(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return "postgres"
}

func brokerKind(url string) string {
	if url == "" {
		return "memory"
	}
	return "redis"
}
