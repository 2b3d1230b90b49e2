package alerter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/ports/service"
	"github.com/kpizzy812/TMAMARKET/internal/ports/telegram"
)

type Config struct {
	BotToken        string        `envconfig:"BOT_TOKEN"`
	ChatID          int64         `envconfig:"CHAT_ID"`
	MessageThreadID *int64        `envconfig:"MESSAGE_THREAD_ID"`
	Cooldown        time.Duration `envconfig:"COOLDOWN" default:"5m"`
}

func (c *Config) Enabled() bool {
	return c != nil && c.BotToken != "" && c.ChatID != 0
}

// Service алерты в чат операторов.
// Без клиента алерт только пишется в лог. Одинаковый текст повторно не отправляется в течение cooldown.
type Service struct {
	client   telegram.IClient
	chatID   int64
	threadID *int64
	cooldown time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	sent map[string]time.Time
}

var _ service.IAlerterService = (*Service)(nil)

func New(client telegram.IClient, cfg *Config, log *slog.Logger) *Service {
	s := &Service{
		client: client,
		log:    log,
		now:    time.Now,
		sent:   make(map[string]time.Time),
	}
	if cfg != nil {
		s.chatID = cfg.ChatID
		s.threadID = cfg.MessageThreadID
		s.cooldown = cfg.Cooldown
	}
	return s
}

func (s *Service) SendAlert(ctx context.Context, message string) error {
	if s.client == nil {
		s.log.Warn("alert (alerter chat is not configured)", "message", message)
		return nil
	}
	if !s.claim(message) {
		s.log.Debug("duplicate alert suppressed", "message", message)
		return nil
	}

	err := s.client.Send(ctx, telegram.Message{
		ChatID:   s.chatID,
		ThreadID: s.threadID,
		Text:     message,
	})
	if err != nil {
		s.release(message)
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

// claim резервирует отправку текста, false - такой же уже ушёл недавно
func (s *Service) claim(message string) bool {
	if s.cooldown <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for text, at := range s.sent {
		if now.Sub(at) >= s.cooldown {
			delete(s.sent, text)
		}
	}
	if _, ok := s.sent[message]; ok {
		return false
	}
	s.sent[message] = now
	return true
}

func (s *Service) release(message string) {
	if s.cooldown <= 0 {
		return
	}
	s.mu.Lock()
	delete(s.sent, message)
	s.mu.Unlock()
}
