package core

import (
	"context"
	"testing"
	"time"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewMachine_DefaultDependencies(t *testing.T) {
	machine, err := NewMachine(Config{})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	deps := machine.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	if deps.Store == nil {
		t.Fatalf("expected default in-memory store")
	}
	if deps.Backoff == nil {
		t.Fatalf("expected default backoff scheduler")
	}
	if got := machine.Config().ServiceName; got != "approvals" {
		t.Fatalf("expected default service_name=approvals, got %q", got)
	}
}

func TestNewMachine_RuntimeConfigWinsOverDefaults(t *testing.T) {
	machine, err := NewMachine(Config{
		ReminderInterval: 6 * time.Hour,
		MaxReminders:     5,
	})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	cfg := machine.Config()
	if cfg.ReminderInterval != 6*time.Hour {
		t.Fatalf("expected runtime reminder interval, got %s", cfg.ReminderInterval)
	}
	if cfg.MaxReminders != 5 {
		t.Fatalf("expected runtime max reminders, got %d", cfg.MaxReminders)
	}
	// Untouched fields keep their defaults.
	if cfg.SignatureWindow != DefaultSignatureWindow {
		t.Fatalf("expected default signature window, got %s", cfg.SignatureWindow)
	}
	if cfg.SimilarityThreshold != 0.8 {
		t.Fatalf("expected default similarity threshold, got %v", cfg.SimilarityThreshold)
	}
}

func TestNewMachine_ProviderAndResolverOverrides(t *testing.T) {
	provider := &fixedConfigProvider{cfg: DefaultConfig()}
	resolved := DefaultConfig()
	resolved.ServiceName = "resolved"
	resolver := &fixedOptionsResolver{cfg: resolved}

	machine, err := NewMachine(Config{},
		WithConfigProvider(provider),
		WithOptionsResolver(resolver),
	)
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	if got := machine.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected resolver output, got %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	bad := DefaultConfig()
	bad.SimilarityThreshold = 1.5
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected threshold validation failure")
	}

	bad = DefaultConfig()
	bad.Retry.MaxAttempts = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected retry validation failure")
	}
}
