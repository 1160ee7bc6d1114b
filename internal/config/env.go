package config

import (
	"fmt"
	"strings"

	env "github.com/Netflix/go-env"
)

// envOverlay lists the environment variables that override file values.
// Unset or empty variables leave the file value alone.
type envOverlay struct {
	Token      string `env:"TELEGRAM_BOT_TOKEN"`
	ReminderAt string `env:"REMINDER_AT"`
	Timezone   string `env:"REMINDER_TIMEZONE"`
	LogLevel   string `env:"LOG_LEVEL"`
}

func applyEnv(cfg *Config) error {
	var o envOverlay
	if _, err := env.UnmarshalFromEnviron(&o); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if v := strings.TrimSpace(o.Token); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(o.ReminderAt); v != "" {
		cfg.Reminder.At = v
	}
	if v := strings.TrimSpace(o.Timezone); v != "" {
		cfg.Reminder.Timezone = v
	}
	if v := strings.TrimSpace(o.LogLevel); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
