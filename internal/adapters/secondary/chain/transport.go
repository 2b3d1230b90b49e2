package chain

import (
	"crypto/tls"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// NewRestyClient HTTP клиент к API ноды или индексатора
func NewRestyClient(baseURL string, timeout time.Duration, skipSSL bool) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	if skipSSL {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return client
}

// TruncateString обрезает строку до указанной длины
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ParseUnits переводит целое количество минимальных единиц токена в сумму
func ParseUnits(raw string, decimals int32) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, err
	}
	return value.Shift(-decimals), nil
}
