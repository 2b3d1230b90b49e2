package app

import (
	"fmt"
	"time"

	server "github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/middlewares"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain/bsc"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain/ton"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/chain/tron"
	kafkaAdapter "github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/kafka"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/sbp"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/pg"
	redisAdapter "github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/redis"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/storage/s3"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/secondary/telegram"
	"github.com/kpizzy812/TMAMARKET/internal/pkg/logger"
	alerterService "github.com/kpizzy812/TMAMARKET/internal/services/alerter"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type Config struct {
	Postgres *pg.Config                `envconfig:"POSTGRES"`
	Log      *logger.Config            `envconfig:"LOG"`
	Server   *server.Config            `envconfig:"APISERVER"`
	Auth     *middlewares.AuthConfig   `envconfig:"AUTH"`
	Redis    *redisAdapter.Config      `envconfig:"REDIS"`
	Kafka    kafkaAdapter.KafkaConfigs `envconfig:"KAFKA"`
	Alerter  *alerterService.Config    `envconfig:"ALERTER"`
	Notifier *telegram.Config          `envconfig:"NOTIFIER"`
	S3       *s3.Config                `envconfig:"S3"`
	Tron     *tron.Config              `envconfig:"TRON"`
	BSC      *bsc.Config               `envconfig:"BSC"`
	TON      *ton.Config               `envconfig:"TON"`
	SBP      *sbp.Config               `envconfig:"SBP"`
	Engine   EngineConfig              `envconfig:"ENGINE"`
}

// EngineConfig параметры ядра: окно оплаты, sweeper, backoff наблюдателей, лимиты сумм
type EngineConfig struct {
	StorageDriver      string          `envconfig:"STORAGE_DRIVER" default:"postgres"` // postgres | memory
	AutoMigrate        bool            `envconfig:"AUTO_MIGRATE" default:"true"`
	PaymentWindow      time.Duration   `envconfig:"PAYMENT_WINDOW" default:"30m"`
	SweepInterval      time.Duration   `envconfig:"SWEEP_INTERVAL" default:"30s"`
	RedriveGrace       time.Duration   `envconfig:"REDRIVE_GRACE" default:"1m"`
	BackoffBase        time.Duration   `envconfig:"BACKOFF_BASE" default:"2s"`
	BackoffCap         time.Duration   `envconfig:"BACKOFF_CAP" default:"60s"`
	BackoffJitter      float64         `envconfig:"BACKOFF_JITTER" default:"0.2"`
	CircuitThreshold   int             `envconfig:"CIRCUIT_THRESHOLD" default:"5"`
	UniqueAmount       bool            `envconfig:"UNIQUE_AMOUNT" default:"false"`
	ClockSkew          time.Duration   `envconfig:"CLOCK_SKEW" default:"2m"`
	TransferLockTTL    time.Duration   `envconfig:"TRANSFER_LOCK_TTL" default:"30s"`
	ReconciliationCron string          `envconfig:"RECONCILIATION_CRON" default:"0 4 * * *"`
	MinUSDT            decimal.Decimal `envconfig:"MIN_USDT" default:"1"`
	MaxUSDT            decimal.Decimal `envconfig:"MAX_USDT" default:"10000"`
	MinRUB             decimal.Decimal `envconfig:"MIN_RUB" default:"1"`
	MaxRUB             decimal.Decimal `envconfig:"MAX_RUB" default:"0"` // 0 - без ограничения
}

func (c *EngineConfig) Validate() error {
	switch c.StorageDriver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("payment window must be positive, got %s", c.PaymentWindow)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.RedriveGrace < 0 {
		return fmt.Errorf("redrive grace must not be negative, got %s", c.RedriveGrace)
	}
	if c.MaxUSDT.IsPositive() && c.MaxUSDT.LessThan(c.MinUSDT) {
		return fmt.Errorf("max usdt %s is below min %s", c.MaxUSDT, c.MinUSDT)
	}
	return nil
}

func NewEnvConfig(envPrefix string) (*Config, error) {
	cfg := &Config{}

	_ = godotenv.Load("deployments/local/.env")

	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, err
	}

	// envconfig не умеет определять размер слайса, топики грузим по индексу
	if err := cfg.Kafka.Load(envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load kafka config: %w", err)
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if err := cfg.TON.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ton config: %w", err)
	}
	if err := cfg.Log.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logger config: %w", err)
	}

	return cfg, nil
}
