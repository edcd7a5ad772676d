package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
)

// DispatchFunc performs one first-contact send for a claimed item and
// returns the provider message sid, or an error when the item should be
// marked failed. Trigger.DispatchItem is the production implementation.
type DispatchFunc func(ctx context.Context, item store.TriggerItem) (string, error)

// Runner defaults.
const (
	defaultPollInterval   = 5 * time.Second
	defaultStaleThreshold = 5 * time.Minute
	defaultClaimLimit     = 10
	defaultWorkers        = 3
)

// Runner periodically claims queued trigger items and dispatches them over
// a small worker pool. Items get exactly one attempt: a send error marks
// the item failed with its reason, matching the per-row result the batch
// endpoint reports.
type Runner struct {
	repo           store.BatchRepo
	dispatch       DispatchFunc
	pollInterval   time.Duration
	staleThreshold time.Duration
	claimLimit     int
	workers        int
}

// NewRunner creates a new Runner. pollInterval <= 0 keeps the default.
func NewRunner(repo store.BatchRepo, dispatch DispatchFunc, pollInterval time.Duration) *Runner {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Runner{
		repo:           repo,
		dispatch:       dispatch,
		pollInterval:   pollInterval,
		staleThreshold: defaultStaleThreshold,
		claimLimit:     defaultClaimLimit,
		workers:        defaultWorkers,
	}
}

// RecoverStaleItems requeues items stuck in running state, recovering work
// lost to a crash or a lost completion write. Called once at startup; Run
// repeats it every staleThreshold.
func (r *Runner) RecoverStaleItems() error {
	staleBefore := time.Now().Add(-r.staleThreshold)
	n, err := r.repo.RequeueStaleItems(staleBefore)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Runner.RecoverStaleItems: requeued stale items", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("Runner.Run: starting batch runner", "pollInterval", r.pollInterval, "workers", r.workers)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	lastRequeue := time.Now()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Runner.Run: stopping")
			return
		case <-ticker.C:
			if time.Since(lastRequeue) >= r.staleThreshold {
				if err := r.RecoverStaleItems(); err != nil {
					slog.Warn("Runner.Run: stale requeue failed", "error", err)
				}
				lastRequeue = time.Now()
			}
			r.poll(ctx)
		}
	}
}

func (r *Runner) poll(ctx context.Context) {
	items, err := r.repo.ClaimQueuedItems(time.Now(), r.claimLimit)
	if err != nil {
		slog.Error("Runner.poll: claim failed", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	workers := r.workers
	if workers > len(items) {
		workers = len(items)
	}

	work := make(chan store.TriggerItem)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				r.dispatchOne(ctx, item)
			}
		}()
	}
	for _, item := range items {
		work <- item
	}
	close(work)
	wg.Wait()
}

func (r *Runner) dispatchOne(ctx context.Context, item store.TriggerItem) {
	slog.Debug("Runner.dispatchOne: dispatching item", "batchID", item.BatchID, "idx", item.Idx)
	sid, err := r.dispatch(ctx, item)
	if err != nil {
		slog.Error("Runner.dispatchOne: dispatch failed", "batchID", item.BatchID, "idx", item.Idx, "error", err)
		if err := r.repo.FailItem(item.BatchID, item.Idx, err.Error()); err != nil {
			slog.Error("Runner.dispatchOne: fail item error", "batchID", item.BatchID, "idx", item.Idx, "error", err)
		}
		return
	}
	if err := r.repo.CompleteItem(item.BatchID, item.Idx, sid); err != nil {
		slog.Error("Runner.dispatchOne: complete item error", "batchID", item.BatchID, "idx", item.Idx, "error", err)
		return
	}
	slog.Debug("Runner.dispatchOne: item sent", "batchID", item.BatchID, "idx", item.Idx, "sid", sid)
}
