package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("SPEECH_PROVIDER", "")
	t.Setenv("DEFAULT_LANGUAGE", "")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.SpeechProvider != "polly" {
		t.Fatalf("SpeechProvider mismatch: got %q want %q", cfg.SpeechProvider, "polly")
	}
	if cfg.DefaultLanguage != "en" {
		t.Fatalf("DefaultLanguage mismatch: got %q want %q", cfg.DefaultLanguage, "en")
	}
	if cfg.ProviderTimeout != 30*time.Second {
		t.Fatalf("ProviderTimeout mismatch: got %v want %v", cfg.ProviderTimeout, 30*time.Second)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SPEECH_PROVIDER", "espeak")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for unsupported SPEECH_PROVIDER")
	}
}

func TestLoadConfigHonorsProviderTimeout(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PROVIDER_TIMEOUT_SECONDS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ProviderTimeout != 5*time.Second {
		t.Fatalf("ProviderTimeout mismatch: got %v want %v", cfg.ProviderTimeout, 5*time.Second)
	}
}
