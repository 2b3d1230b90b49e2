package kafka

import "context"

// MessageHandler обработчик входящей записи.
// Ошибка, обёрнутая в domain.BusinessError, финальна: offset фиксируется, запись не повторяется.
type MessageHandler interface {
	HandleMessage(ctx context.Context, key string, value []byte, headers map[string]string) error
}

// IKafkaProducer запись в топик событий
type IKafkaProducer interface {
	Send(ctx context.Context, key string, value []byte, headers map[string]string) error
	Close() error
}
