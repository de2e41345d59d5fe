// Package config loads the admin.conf configuration surface of
// spec.md §6 via viper, following the layered defaults -> file -> env
// approach of the teacher's internal/config/loader.go.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved configuration passed to the registry and
// state store.
type Config struct {
	// JobLines is the multi-line "class_path|frequency[|HH:MM]" job list.
	JobLines string

	// DatabaseDSN is the connection string for the state store.
	DatabaseDSN string
	// DatabaseTimeZone fixes the store's session time zone at
	// connection time (spec.md §9).
	DatabaseTimeZone string

	// MaxOngoingAge is the threshold above which a stale ongoing
	// claim may be reclaimed (spec.md §6 max_ongoing_age_hours).
	MaxOngoingAge time.Duration

	// BaseBackoff is the initial retry delay after a failure
	// (spec.md §6 base_backoff_seconds).
	BaseBackoff time.Duration
}

const (
	defaultMaxOngoingAgeHours = 12
	defaultBaseBackoffSeconds = 1800
)

// Load reads the admin.conf file at path (INI/YAML/TOML/JSON, whatever
// viper's extension sniffing picks) and environment variables prefixed
// CRONTABBER_, and returns the resolved Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRONTABBER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("max_ongoing_age_hours", defaultMaxOngoingAgeHours)
	v.SetDefault("base_backoff_seconds", defaultBaseBackoffSeconds)
	v.SetDefault("database_timezone", "UTC")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read admin.conf %s: %w", path, err)
		}
	}

	cfg := &Config{
		JobLines:         v.GetString("jobs"),
		DatabaseDSN:      v.GetString("database_dsn"),
		DatabaseTimeZone: v.GetString("database_timezone"),
		MaxOngoingAge:    time.Duration(v.GetInt("max_ongoing_age_hours")) * time.Hour,
		BaseBackoff:      time.Duration(v.GetInt("base_backoff_seconds")) * time.Second,
	}
	return cfg, nil
}
