package config

import (
	"strings"
	"testing"
	"time"

	"github.com/example/slot-reservations/internal/application"
)

func TestParse(t *testing.T) {

	t.Run("applies defaults when variables are missing", func(t *testing.T) {
		cfg, err := Parse(map[string]string{"RESERVATIONS_TOKEN_SECRET": "super-secret"})
		if err != nil {
			t.Fatalf("Parse returned error: %v", err)
		}

		if cfg.HTTPPort != 8080 {
			t.Fatalf("expected default HTTP port 8080, got %d", cfg.HTTPPort)
		}
		if cfg.Store != StoreSQLite || cfg.SQLitePath != "reservations.db" {
			t.Fatalf("unexpected default store: %q %q", cfg.Store, cfg.SQLitePath)
		}
		if cfg.Scope() != application.PointerScopeUser {
			t.Fatalf("expected user pointer scope, got %q", cfg.Scope())
		}
		if cfg.DefaultSlotCapacity != 8 {
			t.Fatalf("expected default capacity 8, got %d", cfg.DefaultSlotCapacity)
		}
		if cfg.CatalogCacheTTL != 30*time.Second || cfg.StoreTimeout != 5*time.Second {
			t.Fatalf("unexpected default durations: %s %s", cfg.CatalogCacheTTL, cfg.StoreTimeout)
		}
		if cfg.CloudWatchEnabled {
			t.Fatalf("cloudwatch should be disabled by default")
		}
	})

	t.Run("reads overrides", func(t *testing.T) {
		cfg, err := Parse(map[string]string{
			"RESERVATIONS_TOKEN_SECRET":       "s",
			"RESERVATIONS_HTTP_PORT":          "9090",
			"RESERVATIONS_STORE":              "Redis",
			"RESERVATIONS_REDIS_ADDR":         "cache:6379",
			"RESERVATIONS_REDIS_DB":           "2",
			"RESERVATIONS_POINTER_SCOPE":      "session",
			"RESERVATIONS_CATALOG_CACHE_TTL":  "1m",
			"RESERVATIONS_CORS_ORIGINS":       "https://a.example, ,https://b.example",
			"RESERVATIONS_CLOUDWATCH_ENABLED": "true",
			"RESERVATIONS_AWS_REGION":         "eu-west-1",
		})
		if err != nil {
			t.Fatalf("Parse returned error: %v", err)
		}
		if cfg.HTTPPort != 9090 || cfg.Store != StoreRedis || cfg.RedisAddr != "cache:6379" || cfg.RedisDB != 2 {
			t.Fatalf("unexpected overrides: %+v", cfg)
		}
		if cfg.Scope() != application.PointerScopeSession {
			t.Fatalf("expected session pointer scope, got %q", cfg.Scope())
		}
		if cfg.CatalogCacheTTL != time.Minute {
			t.Fatalf("expected 1m cache ttl, got %s", cfg.CatalogCacheTTL)
		}
		if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
			t.Fatalf("unexpected CORS origins: %v", cfg.CORSOrigins)
		}
	})

	t.Run("errors when required values are missing", func(t *testing.T) {
		_, err := Parse(map[string]string{"RESERVATIONS_STORE": "mongo"})
		if err == nil {
			t.Fatalf("expected error when required values are missing")
		}
		expected := "required environment variables are not set: RESERVATIONS_TOKEN_SECRET, RESERVATIONS_MONGO_URI"
		if err.Error() != expected {
			t.Fatalf("unexpected error message: %q", err.Error())
		}
	})

	t.Run("reports every invalid value", func(t *testing.T) {
		_, err := Parse(map[string]string{
			"RESERVATIONS_TOKEN_SECRET":          "s",
			"RESERVATIONS_HTTP_PORT":             "70000",
			"RESERVATIONS_STORE":                 "postgres",
			"RESERVATIONS_POINTER_SCOPE":         "global",
			"RESERVATIONS_DEFAULT_SLOT_CAPACITY": "0",
			"RESERVATIONS_LOG_LEVEL":             "verbose",
		})
		if err == nil {
			t.Fatalf("expected error for invalid values")
		}
		for _, key := range []string{"HTTP_PORT", "STORE", "POINTER_SCOPE", "DEFAULT_SLOT_CAPACITY", "LOG_LEVEL"} {
			if !strings.Contains(err.Error(), "RESERVATIONS_"+key) {
				t.Fatalf("expected %s in error, got %q", key, err.Error())
			}
		}
	})

	t.Run("bounds the default slot capacity", func(t *testing.T) {
		_, err := Parse(map[string]string{
			"RESERVATIONS_TOKEN_SECRET":          "s",
			"RESERVATIONS_DEFAULT_SLOT_CAPACITY": "100000",
		})
		if err == nil || !strings.Contains(err.Error(), "RESERVATIONS_DEFAULT_SLOT_CAPACITY") {
			t.Fatalf("expected capacity error, got %v", err)
		}
	})

	t.Run("rejects values of the wrong type", func(t *testing.T) {
		_, err := Parse(map[string]string{
			"RESERVATIONS_TOKEN_SECRET":  "s",
			"RESERVATIONS_STORE_TIMEOUT": "soon",
		})
		if err == nil {
			t.Fatalf("expected parse error for a malformed duration")
		}
	})

	t.Run("requires a region when cloudwatch is enabled", func(t *testing.T) {
		_, err := Parse(map[string]string{
			"RESERVATIONS_TOKEN_SECRET":       "s",
			"RESERVATIONS_CLOUDWATCH_ENABLED": "true",
		})
		if err == nil || !strings.Contains(err.Error(), "RESERVATIONS_AWS_REGION") {
			t.Fatalf("expected missing region error, got %v", err)
		}
	})
}

func TestLoadReadsProcessEnvironment(t *testing.T) {
	t.Setenv("RESERVATIONS_TOKEN_SECRET", "from-env")
	t.Setenv("RESERVATIONS_STORE", "memory")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.TokenSecret != "from-env" || cfg.Store != StoreMemory {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
