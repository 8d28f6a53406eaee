// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/example/slot-reservations/internal/application"
	"github.com/example/slot-reservations/internal/logging"
	"github.com/example/slot-reservations/internal/roster"
)

// Prefix is prepended to every environment variable name.
const Prefix = "RESERVATIONS_"

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMongo  = "mongo"
)

// Config captures environment driven configuration values for the reservation service.
type Config struct {
	HTTPPort int    `env:"HTTP_PORT" envDefault:"8080"`
	Store    string `env:"STORE" envDefault:"sqlite"`

	SQLitePath    string `env:"SQLITE_PATH" envDefault:"reservations.db"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"reservations"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"reservations"`

	PointerScope        string        `env:"POINTER_SCOPE" envDefault:"user"`
	DefaultSlotCapacity int           `env:"DEFAULT_SLOT_CAPACITY" envDefault:"8"`
	CatalogCacheTTL     time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"30s"`
	StoreTimeout        time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	TokenSecret         string        `env:"TOKEN_SECRET"`

	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string   `env:"LOG_FORMAT" envDefault:"json"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	CloudWatchEnabled   bool   `env:"CLOUDWATCH_ENABLED" envDefault:"false"`
	CloudWatchNamespace string `env:"CLOUDWATCH_NAMESPACE" envDefault:"SlotReservations"`
	AWSRegion           string `env:"AWS_REGION"`
	OTelEndpoint        string `env:"OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	scope application.PointerScope
}

// Scope returns the validated pointer scope.
func (c Config) Scope() application.PointerScope {
	if c.scope == "" {
		return application.PointerScopeUser
	}
	return c.scope
}

// Load reads an optional .env file from the working directory and then parses
// the process environment. Variables already set take precedence over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil. Missing and invalid variables are reported together.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Prefix: Prefix, Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if strings.TrimSpace(cfg.TokenSecret) == "" {
		missing = append(missing, Prefix+"TOKEN_SECRET")
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = append(invalid, Prefix+"HTTP_PORT")
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	switch cfg.Store {
	case StoreSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			missing = append(missing, Prefix+"SQLITE_PATH")
		}
	case StoreRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			missing = append(missing, Prefix+"REDIS_ADDR")
		}
		if cfg.RedisDB < 0 {
			invalid = append(invalid, Prefix+"REDIS_DB")
		}
	case StoreMongo:
		if strings.TrimSpace(cfg.MongoURI) == "" {
			missing = append(missing, Prefix+"MONGO_URI")
		}
	case StoreMemory:
	default:
		invalid = append(invalid, Prefix+"STORE")
	}

	scope, err := application.ParsePointerScope(cfg.PointerScope)
	if err != nil {
		invalid = append(invalid, Prefix+"POINTER_SCOPE")
	}
	cfg.scope = scope

	if cfg.DefaultSlotCapacity <= 0 || cfg.DefaultSlotCapacity > roster.MaxSlotCapacity {
		invalid = append(invalid, Prefix+"DEFAULT_SLOT_CAPACITY")
	}
	if cfg.CatalogCacheTTL < 0 {
		invalid = append(invalid, Prefix+"CATALOG_CACHE_TTL")
	}
	if cfg.StoreTimeout <= 0 {
		invalid = append(invalid, Prefix+"STORE_TIMEOUT")
	}
	if cfg.ShutdownTimeout <= 0 {
		invalid = append(invalid, Prefix+"SHUTDOWN_TIMEOUT")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		invalid = append(invalid, Prefix+"LOG_LEVEL")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json", "text":
	default:
		invalid = append(invalid, Prefix+"LOG_FORMAT")
	}
	if cfg.CloudWatchEnabled && strings.TrimSpace(cfg.AWSRegion) == "" {
		missing = append(missing, Prefix+"AWS_REGION")
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}

	origins := cfg.CORSOrigins[:0]
	for _, origin := range cfg.CORSOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.CORSOrigins = origins
	return cfg, nil
}
