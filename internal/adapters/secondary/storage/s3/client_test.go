package s3

import (
	"testing"
	"time"

	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizedPrefix(t *testing.T) {
	tests := map[string]string{
		"":           "",
		"/":          "",
		"payments":   "payments/",
		"/payments/": "payments/",
		"a/b":        "a/b/",
	}
	for in, want := range tests {
		assert.Equal(t, want, (&Config{Prefix: in}).normalizedPrefix(), in)
	}
}

func TestObjectName(t *testing.T) {
	c := NewClient(nil, &Config{Bucket: "reconciliation", Prefix: "/payments"}, nil)
	assert.Equal(t, "payments/reconciliation/2024-03-01/unmatched.json", c.objectName("reconciliation/2024-03-01/unmatched.json"))
}

func TestLinkTTL(t *testing.T) {
	assert.Equal(t, defaultLinkTTL, linkTTL(0))
	assert.Equal(t, time.Hour, linkTTL(time.Hour))
	assert.Equal(t, maxLinkTTL, linkTTL(30*24*time.Hour))
}

func TestRetentionRules(t *testing.T) {
	assert.Nil(t, retentionRules("payments/", 0))

	cfg := retentionRules("payments/", 90)
	require.NotNil(t, cfg)
	require.Len(t, cfg.Rules, 1)

	rule := cfg.Rules[0]
	assert.Equal(t, retentionRule, rule.ID)
	assert.Equal(t, "Enabled", rule.Status)
	assert.Equal(t, "payments/", rule.RuleFilter.Prefix)
	assert.Equal(t, lifecycle.ExpirationDays(90), rule.Expiration.Days)
}
