package ton

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Enabled        bool            `envconfig:"ENABLED" default:"false"`
	BaseURL        string          `envconfig:"BASE_URL" default:"https://toncenter.com/api/v3"`
	APIKey         string          `envconfig:"API_KEY"`
	JettonMaster   string          `envconfig:"JETTON_MASTER" default:"EQCxE6mUtQJKFnGfaROTKOt1lZbDiiX1kCixRv7Nw2Id_sDs"` // USDT
	JettonDecimals int32           `envconfig:"JETTON_DECIMALS" default:"6"`
	Collectors     []string        `envconfig:"COLLECTORS"`
	Confirmations  uint64          `envconfig:"CONFIRMATIONS" default:"1"`
	PollInterval   time.Duration   `envconfig:"POLL_INTERVAL" default:"10s"`
	Tolerance      decimal.Decimal `envconfig:"TOLERANCE" default:"0.005"` // меньше шага уникальной суммы 0.01
	RequestTimeout time.Duration   `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	PageLimit      int             `envconfig:"PAGE_LIMIT" default:"100"`
	SkipSSL        bool            `envconfig:"SKIP_SSL" default:"false"`
}

// Validate toncenter отдаёт только финализированные транзакции, больше одного подтверждения не бывает
func (c *Config) Validate() error {
	if c.Confirmations > 1 {
		return fmt.Errorf("ton confirmations must be 0 or 1, got %d", c.Confirmations)
	}
	return nil
}
