package storage

import (
	"context"
	"time"
)

// IReportStore объектное хранилище для выгрузок сверки
type IReportStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	// ShareLink временная ссылка на чтение объекта
	ShareLink(ctx context.Context, key string, ttl time.Duration) (string, error)
}
