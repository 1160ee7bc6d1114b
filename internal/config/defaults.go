package config

const (
	DefaultReminderAt  = "08:00"
	DefaultPollTimeout = "10s"
	DefaultSendTimeout = "15s"
)

// Defaults returns the configuration used when no config file exists.
func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout: DefaultPollTimeout,
			SendTimeout: DefaultSendTimeout,
		},
		Reminder: ReminderConfig{
			At: DefaultReminderAt,
		},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
		},
	}
}

// fillDefaults sets zero-valued fields a partial config file left out.
func fillDefaults(cfg *Config) {
	if cfg.Reminder.At == "" {
		cfg.Reminder.At = DefaultReminderAt
	}
	if cfg.Telegram.PollTimeout == "" {
		cfg.Telegram.PollTimeout = DefaultPollTimeout
	}
	if cfg.Telegram.SendTimeout == "" {
		cfg.Telegram.SendTimeout = DefaultSendTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
}
