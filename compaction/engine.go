package compaction

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dpalmqvist/lossless-context-management/config"
	"github.com/dpalmqvist/lossless-context-management/escalation"
	"github.com/dpalmqvist/lossless-context-management/internal/metrics"
	"github.com/dpalmqvist/lossless-context-management/internal/pool"
	"github.com/dpalmqvist/lossless-context-management/llmclient"
	"github.com/dpalmqvist/lossless-context-management/store"
)

const (
	triggerSoft         = "soft"
	triggerHard         = "hard"
	triggerCondensation = "condensation"
)

// Engine watches a session's running token total and drives the
// escalation ladder over blocks of unsummarized messages, then condenses
// the resulting summary DAG. Soft pressure dispatches a pass on the
// worker pool and returns immediately; hard pressure blocks the caller
// until the session drops back under soft pressure. A singleflight group
// keyed on session id guarantees at most one pass per session runs at a
// time, whichever path triggered it.
type Engine struct {
	store      store.Store
	llm        llmclient.Client
	thresholds config.ThresholdConfig
	cfg        config.CompactionConfig
	pool       *pool.GoroutinePool
	collector  *metrics.Collector
	logger     *zap.Logger
	sf         singleflight.Group

	softDispatch func(sessionID string)
}

// New builds an Engine. pool is used for fire-and-forget soft-pressure
// dispatch only; hard pressure runs on the caller's own goroutine. A
// process that cannot rely on its own goroutines outliving its own exit
// (the CLI hook entrypoints) should call SetSoftDispatcher to replace the
// pool dispatch with something that survives the caller's lifetime.
func New(st store.Store, llm llmclient.Client, thresholds config.ThresholdConfig, cfg config.CompactionConfig, p *pool.GoroutinePool, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:      st,
		llm:        llm,
		thresholds: thresholds,
		cfg:        cfg,
		pool:       p,
		collector:  collector,
		logger:     logger.With(zap.String("component", "compaction")),
	}
	e.softDispatch = e.dispatchSoftPool
	return e
}

// SetSoftDispatcher overrides how a soft-pressure pass is offloaded.
// fn must return without blocking on the pass itself.
func (e *Engine) SetSoftDispatcher(fn func(sessionID string)) {
	e.softDispatch = fn
}

// CheckAndMaybeCompact inspects a session's running total against the
// soft and hard thresholds and acts accordingly. Below soft, it is a
// no-op. At or above soft but below hard, it dispatches one asynchronous
// pass and returns immediately. At or above hard, it blocks until the
// session drops back under soft.
func (e *Engine) CheckAndMaybeCompact(ctx context.Context, sessionID string) error {
	totals, err := e.store.SessionTotals(ctx, sessionID)
	if err != nil {
		return err
	}
	e.collector.SetSessionTotalTokens(sessionID, totals.TotalTokens)

	switch {
	case totals.TotalTokens >= e.thresholds.HardTokens:
		return e.runHard(ctx, sessionID)
	case totals.TotalTokens >= e.thresholds.SoftTokens:
		e.softDispatch(sessionID)
		return nil
	default:
		return nil
	}
}

// dispatchSoftPool is the default soft dispatcher: it submits the pass to
// the in-process pool and returns immediately. Suitable for a long-lived
// process (tests, an embedding daemon) that keeps running after dispatch;
// not suitable for a one-shot CLI process, whose own exit would kill the
// pool's worker goroutine before it finishes.
func (e *Engine) dispatchSoftPool(sessionID string) {
	err := e.pool.Submit(context.Background(), func(taskCtx context.Context) error {
		return e.RunSoftPass(taskCtx, sessionID)
	})
	if err != nil {
		e.logger.Warn("soft compaction dispatch failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// RunSoftPass executes one soft-pressure pass synchronously, guarded by
// the same per-session singleflight every dispatch path shares. Exported
// for a soft dispatcher that runs the pass in a detached process rather
// than an in-process pool worker.
func (e *Engine) RunSoftPass(ctx context.Context, sessionID string) error {
	_, err, _ := e.sf.Do(sessionID, func() (interface{}, error) {
		return nil, e.runSoftOnce(ctx, sessionID)
	})
	return err
}

func (e *Engine) runHard(ctx context.Context, sessionID string) error {
	_, err, _ := e.sf.Do(sessionID, func() (interface{}, error) {
		return nil, e.drainHard(ctx, sessionID)
	})
	return err
}

// runSoftOnce takes one block off the front of the unsummarized log, if a
// [B_min, B_max] run is available, and condenses any DAG level that has
// accumulated enough nodes as a result.
func (e *Engine) runSoftOnce(ctx context.Context, sessionID string) error {
	messages, err := e.store.UnsummarizedMessages(ctx, sessionID)
	if err != nil {
		return err
	}

	block := selectBlock(messages, e.cfg.BlockMinTokens, e.cfg.BlockMaxTokens, false)
	if len(block) == 0 {
		return nil
	}

	target := e.cfg.BlockMaxTokens / 4
	if err := e.compactBlock(ctx, sessionID, block, target, triggerSoft, false); err != nil {
		return err
	}
	return e.condenseCascade(ctx, sessionID, 0, false)
}

// drainHard repeatedly compacts the oldest available block, falling back
// to a smaller block (down to a single message) when no full-sized block
// exists, until the
// session's total drops back under soft pressure or nothing is left to
// compact.
func (e *Engine) drainHard(ctx context.Context, sessionID string) error {
	target := e.cfg.BlockMaxTokens / 4

	for {
		totals, err := e.store.SessionTotals(ctx, sessionID)
		if err != nil {
			return err
		}
		if totals.TotalTokens <= e.thresholds.SoftTokens {
			return nil
		}

		messages, err := e.store.UnsummarizedMessages(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			return nil
		}

		block := selectBlock(messages, e.cfg.BlockMinTokens, e.cfg.BlockMaxTokens, true)
		if len(block) == 0 {
			return nil
		}

		if err := e.compactBlock(ctx, sessionID, block, target, triggerHard, true); err != nil {
			return err
		}
		if err := e.condenseCascade(ctx, sessionID, 0, true); err != nil {
			return err
		}
	}
}

func (e *Engine) compactBlock(ctx context.Context, sessionID string, block []store.Message, targetTokens int, trigger string, hard bool) error {
	start := time.Now()
	result, err := escalation.Produce(ctx, e.llm, block, targetTokens, e.cfg.EscalationOvershoot, hard)
	if err != nil {
		return err
	}

	childIDs := make([]int64, len(block))
	for i, m := range block {
		childIDs[i] = m.ID
	}

	_, err = e.store.InsertSummary(ctx, store.InsertSummaryInput{
		SessionID:  sessionID,
		Level:      0,
		Kind:       result.Kind,
		Content:    result.Content,
		TokenCount: result.TokenCount,
		ChildKind:  store.ChildMessage,
		ChildIDs:   childIDs,
	})
	e.collector.RecordCompactionPass(trigger, err, time.Since(start))
	if err != nil {
		return err
	}

	e.collector.RecordEscalationLevel(string(result.Kind))
	return nil
}

// condenseCascade walks the DAG upward from startLevel, condensing the
// oldest CondensationFanout uncondensed summaries at a level into one
// summary at the level above whenever that many have accumulated.
// Condensing a level may itself push the level above it past the fanout
// threshold, which is why this loops rather than checking one level.
func (e *Engine) condenseCascade(ctx context.Context, sessionID string, startLevel int, hard bool) error {
	level := startLevel

	for {
		uncond, err := e.store.UncondensedSummaries(ctx, sessionID, level)
		if err != nil {
			return err
		}
		if len(uncond) < e.cfg.CondensationFanout {
			e.collector.SetDAGDepth(sessionID, level)
			return nil
		}

		batch := uncond[:e.cfg.CondensationFanout]
		start := time.Now()
		result, err := escalation.ProduceFromSummaries(ctx, e.llm, batch, e.cfg.CondensationTokens, e.cfg.EscalationOvershoot, hard)
		if err != nil {
			return err
		}

		ids := make([]int64, len(batch))
		for i, s := range batch {
			ids[i] = s.ID
		}

		_, err = e.store.InsertSummary(ctx, store.InsertSummaryInput{
			SessionID:  sessionID,
			Level:      level + 1,
			Kind:       result.Kind,
			Content:    result.Content,
			TokenCount: result.TokenCount,
			ChildKind:  store.ChildSummary,
			ChildIDs:   ids,
		})
		e.collector.RecordCompactionPass(triggerCondensation, err, time.Since(start))
		if err != nil {
			return err
		}

		e.collector.RecordCondensation(level + 1)
		level++
	}
}
