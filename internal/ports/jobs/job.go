package jobs

import (
	"context"
	"time"
)

// Job периодическая задача; NextRun считает время следующего запуска от now
type Job interface {
	Name() string
	NextRun(now time.Time) time.Time
	Run(ctx context.Context) error
}

// RetryableJob паузы между повторами после ошибки запуска
type RetryableJob interface {
	Job
	RetryDelays() []time.Duration
}

// ExclusiveJob запуск не чаще одного на все реплики, Lease - срок блокировки
type ExclusiveJob interface {
	Job
	Lease() time.Duration
}
