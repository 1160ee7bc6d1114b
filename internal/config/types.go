package config

import "errors"

// ErrMissingToken is returned when no bot token is configured. The process
// must not start (nor contact Telegram) without one.
var ErrMissingToken = errors.New("telegram bot token is not set (TELEGRAM_BOT_TOKEN)")

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Reminder ReminderConfig `json:"reminder"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  *StorageConfig `json:"storage,omitempty"`
}

type TelegramConfig struct {
	// Token is normally supplied via TELEGRAM_BOT_TOKEN; the environment wins
	// over the file.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// SendTimeout bounds a single outbound send (each chunk of a long
	// message). "0s" leaves it to the caller.
	SendTimeout string `json:"send_timeout,omitempty"`
	// APIURL points at a self-hosted Bot API server.
	APIURL string `json:"api_url,omitempty"`
}

// ReminderConfig controls the daily broadcast.
//
// At and Timezone are read once at startup; changing them needs a restart.
type ReminderConfig struct {
	At       string `json:"at"`                 // HH:MM, default "08:00"
	Timezone string `json:"timezone,omitempty"` // IANA name, empty = process local time
	// Message overrides the built-in reminder text.
	Message string `json:"message,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the optional delivery audit log.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/remindbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // none | file | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
