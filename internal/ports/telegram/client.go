package telegram

import (
	"context"
)

// Message исходящее сообщение; ThreadID - топик форума
type Message struct {
	ChatID   int64
	ThreadID *int64
	Text     string
	HTML     bool
}

type IClient interface {
	Send(ctx context.Context, msg Message) error
}
