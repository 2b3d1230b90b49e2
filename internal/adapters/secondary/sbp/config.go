package sbp

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Enabled        bool            `envconfig:"ENABLED" default:"false"`
	BaseURL        string          `envconfig:"BASE_URL"`
	MerchantID     string          `envconfig:"MERCHANT_ID"`
	SecretKey      string          `envconfig:"SECRET_KEY"`
	CallbackURL    string          `envconfig:"CALLBACK_URL"`
	CheckInterval  time.Duration   `envconfig:"CHECK_INTERVAL" default:"60s"` // не чаще одного опроса заявки
	PollInterval   time.Duration   `envconfig:"POLL_INTERVAL" default:"15s"`
	Tolerance      decimal.Decimal `envconfig:"TOLERANCE" default:"0"`
	RequestTimeout time.Duration   `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	SkipSSL        bool            `envconfig:"SKIP_SSL" default:"false"`
}
