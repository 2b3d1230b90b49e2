package telegram

import "time"

type Config struct {
	BotToken    string        `envconfig:"BOT_TOKEN"`
	AdminChatID int64         `envconfig:"ADMIN_CHAT_ID"` // 0 - администратору не пишем
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"10s"`
	BaseURL     string        `envconfig:"BASE_URL" default:"https://api.telegram.org"`
}

func (c *Config) Enabled() bool {
	return c.BotToken != ""
}
