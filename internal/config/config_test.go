package config

import (
	"testing"
	"time"
)

func validBase() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "voiceops", SSLMode: "disable"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Vapi:  ProviderConfig{APIKey: "vapi-key"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.DB.SSLMode = ""
	c.Vapi.WebhookSecret = "whsec"
	c.Auth.JWTIssuer = "voiceops"
	c.Auth.JWTAudience = "api"
	if err := c.validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	c.DB.SSLMode = ""
	if err := c.validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_RequiresAtLeastOneProvider(t *testing.T) {
	c := validBase()
	c.Vapi = ProviderConfig{}
	c.Retell = ProviderConfig{}
	if err := c.validate(); err == nil {
		t.Fatalf("expected error when no voice provider is configured")
	}
}

func TestValidate_AnalysisNeedsAPIKey(t *testing.T) {
	c := validBase()
	c.Analysis.Enabled = true
	if err := c.validate(); err == nil {
		t.Fatalf("expected error when analysis enabled without api key")
	}
}

func TestValidate_SchedulerDefaults(t *testing.T) {
	c := validBase()
	if err := c.validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Scheduler.TickSpec != "@every 1m" {
		t.Fatalf("tick spec default, got %q", c.Scheduler.TickSpec)
	}
	if c.Scheduler.BatchSize != 50 {
		t.Fatalf("batch size default, got %d", c.Scheduler.BatchSize)
	}
	if c.Analysis.JobTimeout != 60*time.Second {
		t.Fatalf("analysis timeout default, got %v", c.Analysis.JobTimeout)
	}
}

func TestValidate_ProductionProviderNeedsWebhookSecret(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "voiceops"
	c.Auth.JWTAudience = "api"
	if err := c.validate(); err == nil {
		t.Fatalf("expected error for production provider without webhook secret")
	}
}
