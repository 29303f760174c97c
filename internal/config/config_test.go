package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q", cfg.GinMode)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.ExtensionMin != 1000 || cfg.ExtensionMax != 1999 {
		t.Fatalf("pool bounds = %d-%d", cfg.ExtensionMin, cfg.ExtensionMax)
	}
	if cfg.ReloadTimeout != 30*time.Second {
		t.Fatalf("ReloadTimeout = %s", cfg.ReloadTimeout)
	}
	if cfg.AsteriskBinary != "asterisk" {
		t.Fatalf("AsteriskBinary = %q", cfg.AsteriskBinary)
	}
	if !strings.HasPrefix(cfg.EndpointConfigPath, "/etc/asterisk/") {
		t.Fatalf("EndpointConfigPath = %q", cfg.EndpointConfigPath)
	}
	if cfg.EndpointConfigPath == cfg.RoutingConfigPath {
		t.Fatal("artifact paths must differ")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("EXTENSION_MIN", "2000")
	t.Setenv("EXTENSION_MAX", "2099")
	t.Setenv("RELOAD_TIMEOUT", "10s")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.ExtensionMin != 2000 || cfg.ExtensionMax != 2099 {
		t.Fatalf("pool bounds = %d-%d", cfg.ExtensionMin, cfg.ExtensionMax)
	}
	if cfg.ReloadTimeout != 10*time.Second {
		t.Fatalf("ReloadTimeout = %s", cfg.ReloadTimeout)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("APIBasePath not normalized: %q", cfg.APIBasePath)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("CORS origins = %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"relative endpoint path", "ENDPOINT_CONFIG_PATH", "relative/endpoints.conf"},
		{"relative routing path", "ROUTING_CONFIG_PATH", "relative/routing.conf"},
		{"inverted pool", "EXTENSION_MAX", "1"},
		{"zero burst", "RATE_BURST", "0"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_SameArtifactPathRejected(t *testing.T) {
	t.Setenv("ENDPOINT_CONFIG_PATH", "/etc/asterisk/one.conf")
	t.Setenv("ROUTING_CONFIG_PATH", "/etc/asterisk/one.conf")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for identical artifact paths")
	}
}

func TestLoad_WarningAliasNormalized(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "nope")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_ = MustLoad()
}

func TestNormalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
