package s3

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const connectTimeout = 5 * time.Second

type Config struct {
	Host          string `envconfig:"HOST"` // localhost:9000, пусто - выгрузка сверки выключена
	AccessKey     string `envconfig:"ACCESS_KEY"`
	SecretKey     string `envconfig:"SECRET_KEY"`
	Bucket        string `envconfig:"BUCKET" default:"reconciliation"`
	Region        string `envconfig:"REGION"`
	Prefix        string `envconfig:"PREFIX" default:"payments/"`
	RetentionDays int    `envconfig:"RETENTION_DAYS" default:"90"` // 0 - хранить бессрочно
	UseSSL        bool   `envconfig:"USE_SSL" default:"false"`
}

func (c *Config) Enabled() bool {
	return c.Host != ""
}

// Connect клиент MinIO; bucket создаётся при отсутствии, на префикс ставится срок хранения
func (c *Config) Connect(ctx context.Context) (*minio.Client, error) {
	client, err := minio.New(c.Host, &minio.Options{
		Creds:  credentials.NewStaticV4(c.AccessKey, c.SecretKey, ""),
		Secure: c.UseSSL,
		Region: c.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, c.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", c.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Bucket, minio.MakeBucketOptions{Region: c.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", c.Bucket, err)
		}
	}

	if rules := retentionRules(c.normalizedPrefix(), c.RetentionDays); rules != nil {
		if err := client.SetBucketLifecycle(ctx, c.Bucket, rules); err != nil {
			return nil, fmt.Errorf("set lifecycle on %s: %w", c.Bucket, err)
		}
	}
	return client, nil
}

// normalizedPrefix без ведущего слэша, с завершающим
func (c *Config) normalizedPrefix() string {
	p := strings.Trim(c.Prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
