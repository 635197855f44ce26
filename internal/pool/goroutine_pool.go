// Package pool provides a bounded goroutine pool for dispatching
// compaction passes off the request path.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
)

var (
	// ErrPoolClosed is returned by Submit/SubmitWait once Close has run.
	ErrPoolClosed = errors.New("pool is closed")
	// ErrPoolFull is returned when the task queue is saturated and no
	// further worker can be spawned to drain it.
	ErrPoolFull     = errors.New("pool is full")
	errTaskPanicked = errors.New("pool task panicked")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// GoroutinePool manages a pool of worker goroutines that run Tasks
// submitted by compaction's soft-pressure dispatch.
type GoroutinePool struct {
	name        string
	maxWorkers  int
	taskQueue   chan taskWrapper
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	idleTimeout time.Duration
	collector   *metrics.Collector
	logger      *zap.Logger
}

type taskWrapper struct {
	task   Task
	ctx    context.Context
	result chan error
}

// GoroutinePoolConfig configures the pool.
type GoroutinePoolConfig struct {
	Name        string        `json:"name"`
	MaxWorkers  int           `json:"max_workers"`
	QueueSize   int           `json:"queue_size"`
	IdleTimeout time.Duration `json:"idle_timeout"`
}

// DefaultGoroutinePoolConfig returns sensible defaults for the
// compaction dispatch pool.
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		Name:        "compaction",
		MaxWorkers:  100,
		QueueSize:   1000,
		IdleTimeout: 60 * time.Second,
	}
}

// NewGoroutinePool creates a new goroutine pool. collector and logger may
// be nil; a nil collector skips metric recording and a nil logger
// discards pool logs.
func NewGoroutinePool(config GoroutinePoolConfig, collector *metrics.Collector, logger *zap.Logger) *GoroutinePool {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := config.Name
	if name == "" {
		name = "default"
	}
	return &GoroutinePool{
		name:        name,
		maxWorkers:  config.MaxWorkers,
		taskQueue:   make(chan taskWrapper, config.QueueSize),
		idleTimeout: config.IdleTimeout,
		collector:   collector,
		logger:      logger.With(zap.String("component", "pool"), zap.String("pool", name)),
	}
}

// Submit enqueues task and returns without waiting for it to run. It
// spawns a worker whenever the pool is below its worker limit, whether
// or not existing workers are idle.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	wrapper := taskWrapper{task: task, ctx: ctx, result: make(chan error, 1)}

	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
		return nil
	default:
		if p.trySpawnWorker() {
			select {
			case p.taskQueue <- wrapper:
				return nil
			default:
			}
		}
		p.recordTask("rejected")
		return ErrPoolFull
	}
}

// SubmitWait submits a task and blocks until it completes or ctx is done.
func (p *GoroutinePool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	wrapper := taskWrapper{task: task, ctx: ctx, result: make(chan error, 1)}

	select {
	case p.taskQueue <- wrapper:
		p.ensureWorker()
	case <-ctx.Done():
		p.recordTask("rejected")
		return ctx.Err()
	}

	select {
	case err := <-wrapper.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.setWorkerGauge()
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer func() {
		p.workerCount.Add(-1)
		p.setWorkerGauge()
		p.wg.Done()
	}()

	timer := time.NewTimer(p.idleTimeout)
	defer timer.Stop()

	for {
		select {
		case wrapper, ok := <-p.taskQueue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			err := p.executeTask(wrapper)
			p.activeCount.Add(-1)

			if wrapper.result != nil {
				wrapper.result <- err
				close(wrapper.result)
			}

			if err != nil {
				p.recordTask("failed")
				p.logger.Warn("pool task failed", zap.Error(err))
			} else {
				p.recordTask("completed")
			}

			timer.Reset(p.idleTimeout)

		case <-timer.C:
			// Idle past the timeout with spare workers running: let this
			// one exit rather than hold a goroutine open for nothing.
			if p.workerCount.Load() > 1 {
				return
			}
			timer.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.recordPanic()
			p.logger.Error("pool task panicked", zap.Any("recovered", r))
			err = errTaskPanicked
		}
	}()

	return wrapper.task(wrapper.ctx)
}

// Close closes the pool and waits for all workers to finish.
func (p *GoroutinePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers: int(p.workerCount.Load()),
		Active:  int(p.activeCount.Load()),
		Queued:  len(p.taskQueue),
	}
}

// GoroutinePoolStats contains pool statistics.
type GoroutinePoolStats struct {
	Workers int `json:"workers"`
	Active  int `json:"active"`
	Queued  int `json:"queued"`
}

func (p *GoroutinePool) recordTask(status string) {
	if p.collector != nil {
		p.collector.RecordPoolTask(p.name, status)
	}
}

func (p *GoroutinePool) recordPanic() {
	if p.collector != nil {
		p.collector.RecordPoolPanic(p.name)
	}
}

func (p *GoroutinePool) setWorkerGauge() {
	if p.collector != nil {
		p.collector.SetPoolWorkers(p.name, int(p.workerCount.Load()))
	}
}
