package observer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestBackoff(cfg BackoffConfig) *Backoff {
	b := NewBackoff(cfg)
	b.random = func() float64 { return 0.5 } // без джиттера
	return b
}

func TestBackoff_ExponentialUpToCap(t *testing.T) {
	b := newTestBackoff(BackoffConfig{Base: time.Second, Cap: 10 * time.Second, Threshold: 100})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var delays []time.Duration
	for i := 0; i < 6; i++ {
		d, opened := b.Failure(now)
		assert.False(t, opened)
		delays = append(delays, d)
	}

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second,
	}, delays)
	assert.Equal(t, now.Add(10*time.Second), b.NextEligible())
}

func TestBackoff_CircuitOpensAtThreshold(t *testing.T) {
	b := newTestBackoff(BackoffConfig{Base: time.Second, Cap: time.Minute, Threshold: 3})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, opened := b.Failure(now)
	assert.False(t, opened)
	_, opened = b.Failure(now.Add(time.Second))
	assert.False(t, opened)

	d, opened := b.Failure(now.Add(3 * time.Second))
	assert.True(t, opened)
	assert.True(t, b.Open())
	assert.Equal(t, time.Minute, d, "разомкнутая цепь опрашивает с шагом cap")
	assert.Equal(t, now.Add(3*time.Second), b.OpenedAt())

	// следующая ошибка не открывает цепь повторно
	_, opened = b.Failure(now.Add(time.Hour))
	assert.False(t, opened)
	assert.Equal(t, 4, b.Failures())

	assert.True(t, b.Success())
	assert.False(t, b.Open())
	assert.Zero(t, b.Failures())
	assert.True(t, b.OpenedAt().IsZero())
	assert.False(t, b.Success())
}

func TestBackoff_Jitter(t *testing.T) {
	b := NewBackoff(BackoffConfig{Base: 10 * time.Second, Cap: time.Minute, Jitter: 0.2, Threshold: 10})
	now := time.Now()

	b.random = func() float64 { return 0 }
	d, _ := b.Failure(now)
	assert.Equal(t, 8*time.Second, d)

	b.Success()
	b.random = func() float64 { return 1 }
	d, _ = b.Failure(now)
	assert.Equal(t, 12*time.Second, d)
}

func TestBackoffConfig_Defaults(t *testing.T) {
	cfg := BackoffConfig{Jitter: 5}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg.Base)
	assert.Equal(t, 60*time.Second, cfg.Cap)
	assert.Equal(t, 0.2, cfg.Jitter)
	assert.Equal(t, 5, cfg.Threshold)
}
