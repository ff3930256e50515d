package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Engine   EngineConfig   `json:"engine"`
	Schedule ScheduleConfig `json:"schedule"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// EngineConfig tunes the consolidation engine. Zero values fall back to
// engine defaults.
type EngineConfig struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
	MergeDeadlineMS     int     `json:"merge_deadline_ms"`
	MergeMaxIterations  int     `json:"merge_max_iterations"`
	MergeMaxCandidates  int     `json:"merge_max_candidates"`
	DiscardPreference   string  `json:"discard_preference"`
	DecayWindowDays     int     `json:"decay_window_days"`
	DecayRate           float64 `json:"decay_rate"`
	ArchiveThreshold    float64 `json:"archive_threshold"`
	PageSize            int     `json:"page_size"`
	YieldEvery          int     `json:"yield_every"`
	StaleAfterHours     int     `json:"stale_after_hours"`
	GraphMaxItems       int     `json:"graph_max_items"`
	MergeTargetFraction float64 `json:"merge_target_fraction"`
}

type ScheduleConfig struct {
	Enabled     bool   `json:"enabled"`
	NightlyHour int    `json:"nightly_hour"`
	WeeklyDay   string `json:"weekly_day"`
}

// MergeDeadline converts the millisecond tuning knob to a duration.
func (ec EngineConfig) MergeDeadline() time.Duration {
	return time.Duration(ec.MergeDeadlineMS) * time.Millisecond
}

// StaleAfter converts the hour tuning knob to a duration.
func (ec EngineConfig) StaleAfter() time.Duration {
	return time.Duration(ec.StaleAfterHours) * time.Hour
}

// WeeklyDayOrDefault parses the weekly day name, defaulting to Sunday.
func (sc ScheduleConfig) WeeklyDayOrDefault() time.Weekday {
	switch sc.WeeklyDay {
	case "Monday":
		return time.Monday
	case "Tuesday":
		return time.Tuesday
	case "Wednesday":
		return time.Wednesday
	case "Thursday":
		return time.Thursday
	case "Friday":
		return time.Friday
	case "Saturday":
		return time.Saturday
	default:
		return time.Sunday
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable
// references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}
