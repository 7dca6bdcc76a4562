package config

import (
	"strings"
	"testing"
)

type envTestConfig struct {
	Attempts int    `env:"CAFE_TEST_ATTEMPTS" envDefault:"3"`
	Backend  string `env:"CAFE_TEST_BACKEND" envDefault:"memory"`
}

type prefixedTestConfig struct {
	Backend string `env:"BACKEND" envDefault:"memory"`
	Locale  string `env:"LOCALE" envDefault:"en"`
}

func TestParseEnvDefaults(t *testing.T) {
	var cfg envTestConfig
	if err := ParseEnv(&cfg); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", cfg.Attempts)
	}
	if cfg.Backend != "memory" {
		t.Fatalf("backend = %q, want memory", cfg.Backend)
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg envTestConfig
	t.Setenv("CAFE_TEST_ATTEMPTS", "many")

	err := ParseEnv(&cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestParseEnvPrefixedReadsPrefixedKeys(t *testing.T) {
	t.Setenv("CAFETEST_BACKEND", "sqlite")

	var cfg prefixedTestConfig
	if err := ParseEnvPrefixed(&cfg, "CAFETEST_"); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Backend != "sqlite" {
		t.Fatalf("backend = %q, want sqlite", cfg.Backend)
	}
	if cfg.Locale != "en" {
		t.Fatalf("locale = %q, want en", cfg.Locale)
	}
}

func TestParseEnvPrefixedEmptyPrefixFallsBack(t *testing.T) {
	t.Setenv("BACKEND", "sqlite")

	var cfg prefixedTestConfig
	if err := ParseEnvPrefixed(&cfg, "  "); err != nil {
		t.Fatalf("parse env: %v", err)
	}
	if cfg.Backend != "sqlite" {
		t.Fatalf("backend = %q, want sqlite", cfg.Backend)
	}
}
