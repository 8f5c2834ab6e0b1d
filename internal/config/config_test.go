package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadWith returned error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.RecentActivityWindow != 7*24*time.Hour {
		t.Fatalf("unexpected window %v", cfg.RecentActivityWindow)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout %v", cfg.RequestTimeout)
	}
	if !cfg.InMemory() {
		t.Fatalf("expected in-memory store by default")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestLoadPrefixedOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"CANVASS_ADDR":                 ":9090",
		"CANVASS_DB_PATH":              "/tmp/canvass.db",
		"CANVASS_CORS_ALLOWED_ORIGINS": "http://a.test,http://b.test",
		"CANVASS_TOKEN_TTL":            "1h",
		"ADDR":                         ":1111",
		"OTEL_EXPORTER_OTLP_ENDPOINT":  "collector:4318",
	}))
	if err != nil {
		t.Fatalf("LoadWith returned error: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Fatalf("expected prefixed addr, got %q", cfg.Addr)
	}
	if cfg.InMemory() {
		t.Fatalf("expected sqlite store")
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.TokenTTL)
	}
	if cfg.OTLPEndpoint != "collector:4318" {
		t.Fatalf("expected OTEL fallback, got %q", cfg.OTLPEndpoint)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"CANVASS_TOKEN_TTL": "forever",
	}))
	if err == nil {
		t.Fatalf("expected parse error")
	}
}
