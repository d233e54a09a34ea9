package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/jdziat/agent-escrow/pkg/core"
	"github.com/jdziat/agent-escrow/pkg/internal/retry"
)

// Worker settles due transfers in the background.
type Worker struct {
	settler  *Settler
	config   Config
	logger   *slog.Logger
	inflight cmap.ConcurrentMap[string, struct{}]
	wg       sync.WaitGroup
}

// NewWorker creates a worker around s. Options override the settler's
// configuration for the worker only.
func NewWorker(s *Settler, opts ...Option) *Worker {
	config := s.config
	for _, opt := range opts {
		opt.ApplySettlement(&config)
	}
	return &Worker{
		settler:  s,
		config:   config,
		logger:   config.Logger,
		inflight: cmap.New[struct{}](),
	}
}

// Start settles transfers until ctx is cancelled. It blocks, and returns
// ctx.Err() once in-flight settlements have finished.
func (w *Worker) Start(ctx context.Context) error {
	ids := make(chan string, w.config.Concurrency)

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.settleLoop(ctx, ids)
	}

	if w.config.expiry != nil {
		w.wg.Add(1)
		go w.runExpiry(ctx)
	}

	w.logger.Info("settlement worker started",
		"settler_id", w.config.SettlerID,
		"concurrency", w.config.Concurrency,
		"poll_interval", w.config.PollInterval,
		"expiry", w.config.expiry != nil)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(ids)
			w.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			w.poll(ctx, ids)
		}
	}
}

func (w *Worker) poll(ctx context.Context, ids chan<- string) {
	store := w.settler.ledger.Storage()

	if n, err := store.ReleaseStaleTransferLocks(ctx); err != nil {
		w.logger.Warn("failed to release stale transfer locks", "error", err)
	} else if n > 0 {
		w.logger.Info("released stale transfer locks", "count", n)
	}

	var due []*core.Transfer
	err := retry.Do(ctx, w.config.StorageRetry, func() error {
		var err error
		due, err = store.GetDueTransfers(ctx, w.config.BatchSize)
		return err
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error("failed to load due transfers after retries", "error", err)
		}
		return
	}

	for _, t := range due {
		if !w.inflight.SetIfAbsent(t.ID, struct{}{}) {
			continue
		}
		select {
		case ids <- t.ID:
		case <-ctx.Done():
			w.inflight.Remove(t.ID)
			return
		}
	}
}

func (w *Worker) settleLoop(ctx context.Context, ids <-chan string) {
	defer w.wg.Done()

	for id := range ids {
		w.settleOne(ctx, id)
		w.inflight.Remove(id)
	}
}

func (w *Worker) settleOne(ctx context.Context, id string) {
	err := w.settler.Settle(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, core.ErrTransferNotOwned):
		w.logger.Debug("transfer claimed elsewhere", "transfer_id", id)
	case errors.Is(err, context.Canceled):
	default:
		w.logger.Debug("settlement attempt failed", "transfer_id", id, "error", err)
	}
}

// RunOnce settles every transfer due now and returns how many settled.
// Failed attempts are recorded and do not stop the run.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	store := w.settler.ledger.Storage()
	if _, err := store.ReleaseStaleTransferLocks(ctx); err != nil {
		return 0, err
	}

	due, err := store.GetDueTransfers(ctx, w.config.BatchSize)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, t := range due {
		if err := w.settler.Settle(ctx, t.ID); err != nil {
			if ctx.Err() != nil {
				return settled, ctx.Err()
			}
			continue
		}
		settled++
	}
	return settled, nil
}

func (w *Worker) runExpiry(ctx context.Context) {
	defer w.wg.Done()
	exp := w.config.expiry

	for {
		now := time.Now()
		timer := time.NewTimer(exp.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		n, err := exp.resolver.ExpireStale(ctx, exp.olderThan)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("expiry sweep failed", "expired", n, "error", err)
			continue
		}
		if n > 0 {
			w.logger.Info("expired stale jobs", "count", n, "older_than", exp.olderThan)
		}
	}
}
