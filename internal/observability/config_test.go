package observability

import (
	"testing"

	"github.com/smallbiznis/futorumeshi/internal/config"
)

func TestLoadConfigDisablesOtelInDevelopment(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	cfg := LoadConfig(config.Config{AppName: "futorumeshi", Environment: "development"})
	if cfg.OtelEnabled {
		t.Fatalf("expected otel disabled for development")
	}
	if !cfg.Debug() {
		t.Fatalf("expected debug for development")
	}
}

func TestLoadConfigHonoursExplicitOtelFlag(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	cfg := LoadConfig(config.Config{Environment: "production"})
	if cfg.OtelEnabled {
		t.Fatalf("expected otel disabled by env")
	}
	if cfg.ServiceName != "futorumeshi" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
}
