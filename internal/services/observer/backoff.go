package observer

import (
	"math/rand"
	"time"
)

const (
	defaultBackoffBase      = 2 * time.Second
	defaultBackoffCap       = 60 * time.Second
	defaultBackoffJitter    = 0.2
	defaultCircuitThreshold = 5
)

type BackoffConfig struct {
	Base      time.Duration
	Cap       time.Duration
	Jitter    float64 // доля, 0.2 = ±20%
	Threshold int     // после стольких ошибок подряд цепь размыкается
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Base <= 0 {
		c.Base = defaultBackoffBase
	}
	if c.Cap <= 0 {
		c.Cap = defaultBackoffCap
	}
	if c.Cap < c.Base {
		c.Cap = c.Base
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		c.Jitter = defaultBackoffJitter
	}
	if c.Threshold <= 0 {
		c.Threshold = defaultCircuitThreshold
	}
	return c
}

// Backoff состояние повторов одного наблюдателя: число ошибок подряд, момент следующей попытки, разомкнута ли цепь.
// Разомкнутая цепь опрашивает источник раз в Cap (half-open), первый успех её замыкает.
type Backoff struct {
	cfg          BackoffConfig
	failures     int
	open         bool
	openedAt     time.Time
	nextEligible time.Time
	random       func() float64
}

func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{
		cfg:    cfg.withDefaults(),
		random: rand.Float64,
	}
}

// Failure учитывает ошибку и возвращает паузу до следующей попытки; opened true ровно в момент размыкания
func (b *Backoff) Failure(now time.Time) (delay time.Duration, opened bool) {
	b.failures++

	if !b.open && b.failures >= b.cfg.Threshold {
		b.open = true
		b.openedAt = now
		opened = true
	}

	delay = b.delay()
	b.nextEligible = now.Add(delay)
	return delay, opened
}

// Success сбрасывает состояние; recovered true если цепь была разомкнута
func (b *Backoff) Success() (recovered bool) {
	recovered = b.open
	b.failures = 0
	b.open = false
	b.openedAt = time.Time{}
	b.nextEligible = time.Time{}
	return recovered
}

func (b *Backoff) Failures() int {
	return b.failures
}

func (b *Backoff) Open() bool {
	return b.open
}

// OpenedAt момент размыкания, нулевой если цепь замкнута
func (b *Backoff) OpenedAt() time.Time {
	return b.openedAt
}

func (b *Backoff) NextEligible() time.Time {
	return b.nextEligible
}

func (b *Backoff) delay() time.Duration {
	if b.open {
		return b.jitter(b.cfg.Cap)
	}

	d := b.cfg.Base
	for i := 1; i < b.failures; i++ {
		d *= 2
		if d >= b.cfg.Cap {
			d = b.cfg.Cap
			break
		}
	}
	return b.jitter(d)
}

func (b *Backoff) jitter(d time.Duration) time.Duration {
	if b.cfg.Jitter == 0 {
		return d
	}
	factor := 1 + b.cfg.Jitter*(2*b.random()-1)
	return time.Duration(float64(d) * factor)
}
