package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/leads")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	geo, capability, quality, capacity := cfg.GetMatchWeights()
	if geo != 35 || capability != 25 || quality != 25 || capacity != 15 {
		t.Fatalf("unexpected default weights %v/%v/%v/%v", geo, capability, quality, capacity)
	}
	if cfg.GetMatchScoreFloor() != 40 || cfg.GetMatchTopN() != 20 {
		t.Fatalf("unexpected floor/topN %v/%d", cfg.GetMatchScoreFloor(), cfg.GetMatchTopN())
	}
	if cfg.GetNotifyMaxAttempts() != 3 {
		t.Fatalf("expected 3 delivery attempts, got %d", cfg.GetNotifyMaxAttempts())
	}
	if cfg.GetIntakeDedupWindow() != 10*time.Minute {
		t.Fatalf("expected 10m dedup window, got %s", cfg.GetIntakeDedupWindow())
	}
	if cfg.GetEmailEnabled() {
		t.Fatalf("email must stay disabled without SMTP_HOST")
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestLoadRejectsWildcardCORSWithCredentials(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ORIGINS", "*")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "true")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for wildcard origins with credentials")
	}
}

func TestLoadRequiresFromAddressWhenSMTPConfigured(t *testing.T) {
	setRequired(t)
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("EMAIL_FROM_ADDRESS", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error when EMAIL_FROM_ADDRESS missing")
	}
}
