package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStaleCounter struct {
	mu    sync.Mutex
	calls int
	count int
}

func (f *fakeStaleCounter) GetStaleMessageCount(context.Context, time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.count, nil
}

func (f *fakeStaleCounter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestOutboxMonitor_SweepsPeriodically(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	counter := &fakeStaleCounter{count: 2}
	m := NewOutboxMonitor(nil, counter, 10*time.Millisecond, time.Minute, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	defer m.Stop()

	require.Eventually(t, func() bool {
		return counter.callCount() >= 2
	}, time.Second, 5*time.Millisecond)
}

func TestOutboxMonitor_StopEndsSweeps(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	counter := &fakeStaleCounter{}
	m := NewOutboxMonitor(nil, counter, 5*time.Millisecond, time.Minute, logger)

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		return counter.callCount() >= 1
	}, time.Second, time.Millisecond)

	m.Stop()
	settled := counter.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, counter.callCount(), settled+1)

	// Stopping twice is harmless.
	m.Stop()
}

func TestOutboxMonitor_StartIsIdempotent(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	m := NewOutboxMonitor(nil, &fakeStaleCounter{}, time.Hour, time.Minute, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	m.Start(ctx)
	m.Stop()
}

type fakeCleanupStore struct {
	mu    sync.Mutex
	calls []int
}

func (f *fakeCleanupStore) CleanupOldRecords(_ context.Context, retentionDays int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, retentionDays)
	return nil
}

func (f *fakeCleanupStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestStartCleanupScheduler_RunsImmediately(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := &fakeCleanupStore{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartCleanupScheduler(ctx, store, 30, logger)

	require.Eventually(t, func() bool {
		return store.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	assert.Equal(t, []int{30}, store.calls)
	store.mu.Unlock()
}

func TestStartCleanupScheduler_DisabledWhenNonPositive(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := &fakeCleanupStore{}
	StartCleanupScheduler(context.Background(), store, 0, logger)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, store.callCount())
}
