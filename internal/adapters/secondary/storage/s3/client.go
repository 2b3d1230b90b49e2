package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/kpizzy812/TMAMARKET/internal/ports/storage"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

const (
	defaultLinkTTL = 24 * time.Hour
	maxLinkTTL     = 7 * 24 * time.Hour // предел presigned URL в S3 v4
	retentionRule  = "payments-report-retention"
)

var _ storage.IReportStore = (*Client)(nil)

// Client выгрузки в один bucket под общим префиксом
type Client struct {
	client *minio.Client
	bucket string
	prefix string
	log    *slog.Logger
}

func NewClient(client *minio.Client, cfg *Config, log *slog.Logger) *Client {
	return &Client{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.normalizedPrefix(),
		log:    log,
	}
}

func (c *Client) objectName(key string) string {
	return c.prefix + key
}

// Upload перезаписывает объект целиком
func (c *Client) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	name := c.objectName(key)
	info, err := c.client.PutObject(ctx, c.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, name, err)
	}

	c.log.Debug("object uploaded", "bucket", c.bucket, "object", name, "size", info.Size, "etag", info.ETag)
	return nil
}

func (c *Client) ShareLink(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := c.client.PresignedGetObject(ctx, c.bucket, c.objectName(key), linkTTL(ttl), nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func linkTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return defaultLinkTTL
	case ttl > maxLinkTTL:
		return maxLinkTTL
	default:
		return ttl
	}
}

// retentionRules правило удаления выгрузок через days дней, nil - без ограничения
func retentionRules(prefix string, days int) *lifecycle.Configuration {
	if days <= 0 {
		return nil
	}
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{{
		ID:         retentionRule,
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: prefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
	}}
	return cfg
}
