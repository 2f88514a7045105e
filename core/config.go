package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultSignatureWindow bounds replay exposure for signed webhook
	// requests.
	DefaultSignatureWindow = 300 * time.Second
	// DefaultReminderInterval is how long a pending artifact may sit
	// unanswered before the next reminder fires.
	DefaultReminderInterval = 24 * time.Hour
	// DefaultMaxReminders caps the nudges sent before a pending
	// artifact expires.
	DefaultMaxReminders = 3
	// DefaultAckDeadline is the platform acknowledgment deadline for
	// webhook deliveries.
	DefaultAckDeadline = 3 * time.Second
)

type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `koanf:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay" mapstructure:"max_delay"`
}

type Config struct {
	ServiceName         string        `koanf:"service_name" mapstructure:"service_name"`
	SigningSecret       string        `koanf:"signing_secret" mapstructure:"signing_secret"`
	SignatureWindow     time.Duration `koanf:"signature_window" mapstructure:"signature_window"`
	ReminderInterval    time.Duration `koanf:"reminder_interval" mapstructure:"reminder_interval"`
	MaxReminders        int           `koanf:"max_reminders" mapstructure:"max_reminders"`
	SweepInterval       time.Duration `koanf:"sweep_interval" mapstructure:"sweep_interval"`
	SimilarityThreshold float64       `koanf:"similarity_threshold" mapstructure:"similarity_threshold"`
	Retry               RetryConfig   `koanf:"retry" mapstructure:"retry"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:         "approvals",
		SignatureWindow:     DefaultSignatureWindow,
		ReminderInterval:    DefaultReminderInterval,
		MaxReminders:        DefaultMaxReminders,
		SweepInterval:       time.Minute,
		SimilarityThreshold: 0.8,
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.SignatureWindow <= 0 {
		return fmt.Errorf("core: signature_window must be positive")
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("core: reminder_interval must be positive")
	}
	if c.MaxReminders < 0 {
		return fmt.Errorf("core: max_reminders must not be negative")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("core: similarity_threshold must be within [0, 1]")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("core: retry max_attempts must be at least 1")
	}
	return nil
}
