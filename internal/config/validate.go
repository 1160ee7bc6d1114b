package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"remindbot/internal/task/scheduler"
	logx "remindbot/pkg/logx"
)

// Validate checks a fully merged config (file + env + defaults).
// A missing token yields ErrMissingToken so callers can match it with errors.Is.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return ErrMissingToken
	}
	if _, _, err := scheduler.ParseHHMM(cfg.Reminder.At); err != nil {
		return fmt.Errorf("reminder.at: %w", err)
	}
	if tz := strings.TrimSpace(cfg.Reminder.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("reminder.timezone: invalid %q: %w", tz, err)
		}
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("telegram.send_timeout", cfg.Telegram.SendTimeout); err != nil {
		return err
	}
	if raw := strings.TrimSpace(cfg.Telegram.APIURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("telegram.api_url: invalid %q", raw)
		}
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if !logx.ValidLevel(cfg.Logging.Telegram.MinLevel) {
		return fmt.Errorf("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel)
	}
	if cfg.Logging.Telegram.RatePerSec < 0 {
		return fmt.Errorf("logging.telegram.rate_per_sec must be >= 0")
	}
	if sc := cfg.Storage; sc != nil {
		switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
		case "", "none", "file":
		case "sqlite", "sqlite3":
			if strings.TrimSpace(sc.Path) == "" {
				return fmt.Errorf("storage.path is required when storage.driver=%s", sc.Driver)
			}
		default:
			return fmt.Errorf("unknown storage.driver: %s", sc.Driver)
		}
		if _, err := ParseDurationField("storage.busy_timeout", sc.BusyTimeout); err != nil {
			return err
		}
	}
	return nil
}

// RestartRequired lists the config sections that changed between old and
// next but are only read at startup.
func RestartRequired(old, next *Config) []string {
	if old == nil || next == nil {
		return nil
	}
	var out []string
	if old.Telegram != next.Telegram {
		out = append(out, "telegram")
	}
	if old.Reminder != next.Reminder {
		out = append(out, "reminder")
	}
	var os, ns StorageConfig
	if old.Storage != nil {
		os = *old.Storage
	}
	if next.Storage != nil {
		ns = *next.Storage
	}
	if os != ns {
		out = append(out, "storage")
	}
	return out
}
