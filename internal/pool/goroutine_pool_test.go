package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
)

var namespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&namespaceSeq, 1)
	return fmt.Sprintf("pool_test_%d", seq)
}

func newTestPool(t *testing.T, cfg GoroutinePoolConfig) *GoroutinePool {
	t.Helper()
	collector := metrics.NewCollector(nextTestNamespace(), zap.NewNop())
	p := NewGoroutinePool(cfg, collector, zap.NewNop())
	t.Cleanup(p.Close)
	return p
}

func TestGoroutinePool_SubmitWait(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 4, IdleTimeout: time.Second})

	var ran atomic.Bool
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())
}

func TestGoroutinePool_SubmitWaitPropagatesError(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 4, IdleTimeout: time.Second})

	wantErr := errors.New("boom")
	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestGoroutinePool_ClosedRejectsSubmit(t *testing.T) {
	p := newTestPool(t, DefaultGoroutinePoolConfig())
	p.Close()

	err := p.Submit(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestGoroutinePool_RecoversPanicAndKeepsServingTasks(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 1, QueueSize: 4, IdleTimeout: time.Second})

	err := p.SubmitWait(context.Background(), func(ctx context.Context) error {
		panic("oops")
	})
	assert.Error(t, err)

	var ran atomic.Bool
	require.NoError(t, p.SubmitWait(context.Background(), func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	assert.True(t, ran.Load(), "the worker must keep serving tasks after recovering from a panic")
}

func TestGoroutinePool_StatsReflectsIdleWorkers(t *testing.T) {
	p := newTestPool(t, GoroutinePoolConfig{MaxWorkers: 2, QueueSize: 8, IdleTimeout: time.Second})

	for i := 0; i < 5; i++ {
		require.NoError(t, p.SubmitWait(context.Background(), func(ctx context.Context) error { return nil }))
	}

	stats := p.Stats()
	assert.GreaterOrEqual(t, stats.Workers, 1)
	assert.Equal(t, 0, stats.Active)
	assert.Equal(t, 0, stats.Queued)
}
