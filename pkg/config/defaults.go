package config

// DefaultConfig returns the configuration used when config.json does not
// exist yet: every platform disabled, no bridge mappings.
func DefaultConfig() *Config {
	return &Config{
		Discord:  DiscordConfig{},
		Telegram: TelegramConfig{},
		QQ:       QQConfig{Version: 2},
		Bridges:  nil,
	}
}
