package bsc

import (
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Enabled        bool            `envconfig:"ENABLED" default:"false"`
	RPCURL         string          `envconfig:"RPC_URL" default:"https://bsc-dataseed.bnbchain.org"`
	Contract       string          `envconfig:"CONTRACT" default:"0x55d398326f99059fF775485246999027B3197955"` // USDT BEP-20
	TokenDecimals  int32           `envconfig:"TOKEN_DECIMALS" default:"18"`
	Collectors     []string        `envconfig:"COLLECTORS"`
	Confirmations  uint64          `envconfig:"CONFIRMATIONS" default:"15"`
	PollInterval   time.Duration   `envconfig:"POLL_INTERVAL" default:"10s"`
	Tolerance      decimal.Decimal `envconfig:"TOLERANCE" default:"0.005"` // меньше шага уникальной суммы 0.01
	RequestTimeout time.Duration   `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	MaxBlockRange  uint64          `envconfig:"MAX_BLOCK_RANGE" default:"2000"`
	StartLookback  uint64          `envconfig:"START_LOOKBACK" default:"1200"` // блоков назад при первом запуске
}
