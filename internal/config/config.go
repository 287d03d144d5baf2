// Package config loads the trip detection core's configuration: a YAML file
// of defaults, overridden by a local .env file, overridden in turn by real
// process environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr"`
	ReadTimeout  int    `yaml:"read_timeout_ms"`
	WriteTimeout int    `yaml:"write_timeout_ms"`
}

// DatabaseConfig is the Postgres connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// RedisConfig is the cache/lock connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig is the optional bus-based ingestion path; Brokers empty
// disables it in favor of the webhook endpoint.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

// AuthConfig holds operator-endpoint JWT settings and the webhook's
// shared-secret / HMAC verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// WebhookTokenHash is a bcrypt hash, not the plaintext bearer token —
	// see httpmw.HashWebhookToken. Empty disables the bearer-token check.
	WebhookTokenHash string `yaml:"webhook_token_hash"`
	// WebhookHMACKey must stay plaintext: telemetry.Handler recomputes an
	// HMAC-SHA256 digest with it, which a one-way hash can't support.
	WebhookHMACKey string `yaml:"webhook_hmac_key"`
	RequireHMAC    bool   `yaml:"require_hmac"`
}

// CollaboratorConfig is the set of external-service endpoints the core calls
// out to; none are implemented by the core itself.
type CollaboratorConfig struct {
	GeocoderURL     string `yaml:"geocoder_url"`
	RoadSnapperURL  string `yaml:"road_snapper_url"`
	UpstreamURL     string `yaml:"upstream_url"`
	TimeoutMS       int    `yaml:"timeout_ms"`
	AutoEnrich      bool   `yaml:"auto_enrich"`
}

// TuningConfig is every knob named in the spec's configuration section.
type TuningConfig struct {
	GPSSilenceMS        int64   `yaml:"gps_silence_ms"`
	StaleTripMS         int64   `yaml:"stale_trip_ms"`
	ParkedConfirmMS     int64   `yaml:"parked_confirmation_ms"`
	MinDistanceKm       float64 `yaml:"min_distance_km"`
	EventRetentionMS    int64   `yaml:"event_retention_ms"`
	MaxWaypoints        int     `yaml:"max_waypoints"`
	DispatcherIntervalMS int64  `yaml:"dispatcher_interval_ms"`
	ReaperIntervalMS    int64   `yaml:"reaper_interval_ms"`
	RetentionIntervalMS int64   `yaml:"retention_interval_ms"`
}

// GPSSilence is the duration form of GPSSilenceMS.
func (t TuningConfig) GPSSilence() time.Duration { return time.Duration(t.GPSSilenceMS) * time.Millisecond }

// StaleTrip is the duration form of StaleTripMS.
func (t TuningConfig) StaleTrip() time.Duration { return time.Duration(t.StaleTripMS) * time.Millisecond }

// ParkedConfirmation is the duration form of ParkedConfirmMS.
func (t TuningConfig) ParkedConfirmation() time.Duration {
	return time.Duration(t.ParkedConfirmMS) * time.Millisecond
}

// EventRetention is the duration form of EventRetentionMS.
func (t TuningConfig) EventRetention() time.Duration {
	return time.Duration(t.EventRetentionMS) * time.Millisecond
}

// DispatcherInterval is the duration form of DispatcherIntervalMS.
func (t TuningConfig) DispatcherInterval() time.Duration {
	return time.Duration(t.DispatcherIntervalMS) * time.Millisecond
}

// ReaperInterval is the duration form of ReaperIntervalMS.
func (t TuningConfig) ReaperInterval() time.Duration {
	return time.Duration(t.ReaperIntervalMS) * time.Millisecond
}

// RetentionInterval is the duration form of RetentionIntervalMS.
func (t TuningConfig) RetentionInterval() time.Duration {
	return time.Duration(t.RetentionIntervalMS) * time.Millisecond
}

// Config is the fully-resolved configuration for a running core instance.
type Config struct {
	Environment   string              `yaml:"environment"`
	LogLevel      string              `yaml:"log_level"`
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	Auth          AuthConfig          `yaml:"auth"`
	Collaborators CollaboratorConfig  `yaml:"collaborators"`
	Tuning        TuningConfig        `yaml:"tuning"`
}

// DefaultConfig returns the config with every spec'd default applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			ListenAddr:   ":8080",
			ReadTimeout:  10000,
			WriteTimeout: 10000,
		},
		Database: DatabaseConfig{
			DSN:             "host=localhost user=postgres password=postgres dbname=tripcore port=5432 sslmode=disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifeMins: 30,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Kafka: KafkaConfig{
			Topic:   "telemetry.events",
			GroupID: "tripcore-ingest",
		},
		Auth: AuthConfig{
			RequireHMAC: false,
		},
		Collaborators: CollaboratorConfig{
			TimeoutMS:  3000,
			AutoEnrich: false,
		},
		Tuning: TuningConfig{
			GPSSilenceMS:         180000,
			StaleTripMS:          43200000,
			ParkedConfirmMS:      120000,
			MinDistanceKm:        0.1,
			EventRetentionMS:     86400000,
			MaxWaypoints:         2000,
			DispatcherIntervalMS: 5000,
			ReaperIntervalMS:     120000,
			RetentionIntervalMS:  3600000,
		},
	}
}

// Load reads defaults, layers in a YAML file at path if present, loads a
// .env file into the process environment, then applies environment variable
// overrides. path may be empty, in which case only env/`.env` apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := getEnv("ENVIRONMENT", ""); v != "" {
		c.Environment = v
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LISTEN_ADDR", ""); v != "" {
		c.Server.ListenAddr = v
	}

	if v := getEnv("DATABASE_DSN", ""); v != "" {
		c.Database.DSN = v
	}
	setIntFromEnv("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	setIntFromEnv("DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	setIntFromEnv("DB_CONN_MAX_LIFE_MINS", &c.Database.ConnMaxLifeMins)

	if v := getEnv("REDIS_ADDR", ""); v != "" {
		c.Redis.Addr = v
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.Redis.Password = v
	}
	setIntFromEnv("REDIS_DB", &c.Redis.DB)

	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getEnv("KAFKA_TOPIC", ""); v != "" {
		c.Kafka.Topic = v
	}
	if v := getEnv("KAFKA_GROUP_ID", ""); v != "" {
		c.Kafka.GroupID = v
	}

	if v := getEnv("JWT_SECRET", ""); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := getEnv("WEBHOOK_TOKEN_HASH", ""); v != "" {
		c.Auth.WebhookTokenHash = v
	}
	if v := getEnv("WEBHOOK_HMAC_KEY", ""); v != "" {
		c.Auth.WebhookHMACKey = v
	}
	setBoolFromEnv("WEBHOOK_REQUIRE_HMAC", &c.Auth.RequireHMAC)

	if v := getEnv("GEOCODER_URL", ""); v != "" {
		c.Collaborators.GeocoderURL = v
	}
	if v := getEnv("ROAD_SNAPPER_URL", ""); v != "" {
		c.Collaborators.RoadSnapperURL = v
	}
	if v := getEnv("UPSTREAM_URL", ""); v != "" {
		c.Collaborators.UpstreamURL = v
	}
	setIntFromEnv("COLLABORATOR_TIMEOUT_MS", &c.Collaborators.TimeoutMS)
	setBoolFromEnv("AUTO_ENRICH_ENABLED", &c.Collaborators.AutoEnrich)

	setInt64FromEnv("GPS_SILENCE_MS", &c.Tuning.GPSSilenceMS)
	setInt64FromEnv("STALE_TRIP_MS", &c.Tuning.StaleTripMS)
	setInt64FromEnv("PARKED_CONFIRMATION_MS", &c.Tuning.ParkedConfirmMS)
	setFloatFromEnv("MIN_DISTANCE_KM", &c.Tuning.MinDistanceKm)
	setInt64FromEnv("EVENT_RETENTION_MS", &c.Tuning.EventRetentionMS)
	setIntFromEnv("MAX_WAYPOINTS", &c.Tuning.MaxWaypoints)
	setInt64FromEnv("DISPATCHER_INTERVAL_MS", &c.Tuning.DispatcherIntervalMS)
	setInt64FromEnv("REAPER_INTERVAL_MS", &c.Tuning.ReaperIntervalMS)
	setInt64FromEnv("RETENTION_INTERVAL_MS", &c.Tuning.RetentionIntervalMS)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func setIntFromEnv(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64FromEnv(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloatFromEnv(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = n
		}
	}
}

func setBoolFromEnv(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
