package tron

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Enabled        bool            `envconfig:"ENABLED" default:"false"`
	BaseURL        string          `envconfig:"BASE_URL" default:"https://api.trongrid.io"`
	APIKey         string          `envconfig:"API_KEY"`
	Contract       string          `envconfig:"CONTRACT" default:"TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"` // USDT TRC-20
	Collectors     []string        `envconfig:"COLLECTORS"`
	Confirmations  uint64          `envconfig:"CONFIRMATIONS" default:"19"`
	PollInterval   time.Duration   `envconfig:"POLL_INTERVAL" default:"15s"`
	Tolerance      decimal.Decimal `envconfig:"TOLERANCE" default:"0.005"` // меньше шага уникальной суммы 0.01
	RequestTimeout time.Duration   `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	PageLimit      int             `envconfig:"PAGE_LIMIT" default:"200"`
	SkipSSL        bool            `envconfig:"SKIP_SSL" default:"false"`
}
