package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyJob struct {
	runs     atomic.Int32
	failures int32
}

func (j *flakyJob) Name() string                    { return "flaky" }
func (j *flakyJob) NextRun(now time.Time) time.Time { return now }
func (j *flakyJob) RetryDelays() []time.Duration    { return []time.Duration{time.Millisecond, time.Millisecond} }
func (j *flakyJob) Run(context.Context) error {
	if j.runs.Add(1) <= j.failures {
		return errors.New("temporary")
	}
	return nil
}

type exclusiveJob struct {
	flakyJob
}

func (j *exclusiveJob) Lease() time.Duration { return time.Minute }

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]time.Duration
	released []string
	err      error
}

func (l *fakeLock) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.held[key]; ok {
		return false, nil
	}
	if l.held == nil {
		l.held = make(map[string]time.Duration)
	}
	l.held[key] = ttl
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.released = append(l.released, key)
	return nil
}

func TestRunWithRetry(t *testing.T) {
	s := NewScheduler(discardLogger(), nil, nil)
	log := discardLogger()

	recovered := &flakyJob{failures: 2}
	assert.Empty(t, s.runWithRetry(context.Background(), recovered, log))
	assert.Equal(t, int32(3), recovered.runs.Load())

	broken := &flakyJob{failures: 10}
	failures := s.runWithRetry(context.Background(), broken, log)
	assert.Len(t, failures, 3)
	assert.Equal(t, int32(3), broken.runs.Load())
}

func TestSchedulerAlert(t *testing.T) {
	alerts := &capturedAlerts{}
	s := NewScheduler(discardLogger(), alerts, nil)

	s.alert(context.Background(), "expiry-sweeper", []error{errors.New("db down"), errors.New("db still down")})
	require.Len(t, alerts.messages, 1)
	assert.Contains(t, alerts.messages[0], "expiry-sweeper")
	assert.Contains(t, alerts.messages[0], "1. db down")
	assert.Contains(t, alerts.messages[0], "2. db still down")
}

func TestClaimExclusiveJob(t *testing.T) {
	lock := &fakeLock{}
	s := NewScheduler(discardLogger(), nil, lock)
	job := &exclusiveJob{}

	release, ok := s.claim(context.Background(), job, discardLogger())
	require.True(t, ok)
	assert.Equal(t, time.Minute, lock.held["job:flaky"])

	_, ok = s.claim(context.Background(), job, discardLogger())
	assert.False(t, ok)

	release()
	assert.Equal(t, []string{"job:flaky"}, lock.released)

	_, ok = s.claim(context.Background(), job, discardLogger())
	assert.True(t, ok)
}

func TestClaimWithoutLock(t *testing.T) {
	lock := &fakeLock{err: errors.New("redis down")}
	s := NewScheduler(discardLogger(), nil, lock)

	_, ok := s.claim(context.Background(), &exclusiveJob{}, discardLogger())
	assert.True(t, ok)

	_, ok = s.claim(context.Background(), &flakyJob{}, discardLogger())
	assert.True(t, ok)
	assert.Empty(t, lock.released)
}

func TestSchedulerStopsOnContext(t *testing.T) {
	s := NewScheduler(discardLogger(), nil, nil)
	s.Register(NewExpirySweeper(nil, nil, nil, time.Hour, time.Minute, discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
