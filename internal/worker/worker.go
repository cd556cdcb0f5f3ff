// Package worker drains outbox_event rows and dispatches them to
// registered handlers, generalizing the teacher's outbox.Processor from a
// fixed Redis-publish pipeline to an arbitrary event_type -> handler map.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dispatchbox/internal/model"
	"dispatchbox/internal/registry"
)

// Repository is the subset of repository.Repository the worker depends on.
type Repository interface {
	FetchPending(ctx context.Context, batchSize int) ([]model.Event, error)
	MarkSuccess(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64) error
}

// Config bundles the Worker's tunables.
type Config struct {
	Name         string // worker-NN, for log/metric correlation
	PollInterval time.Duration
	BatchSize    int
	MaxParallel  int
	// HandlerTimeout bounds a single handler invocation. Zero means
	// unbounded, matching the source's historical behavior.
	HandlerTimeout time.Duration
}

// Worker polls a Repository and dispatches claimed events to a Registry.
// One instance per process.
type Worker struct {
	name     string
	repo     Repository
	registry *registry.Registry
	logger   *zap.Logger
	metrics  *Metrics

	pollInterval   time.Duration
	batchSize      int
	maxParallel    int
	handlerTimeout time.Duration

	stopCh chan struct{}
	doneCh chan struct{}

	processingMu sync.Mutex
	processing   bool
}

// New builds a Worker. cfg zero values fall back to sane defaults so a
// caller can pass a partially-populated Config in tests.
func New(repo Repository, reg *registry.Registry, logger *zap.Logger, metrics *Metrics, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 10
	}
	if metrics == nil {
		metrics = NewMetrics(nil, "")
	}

	return &Worker{
		name:           cfg.Name,
		repo:           repo,
		registry:       reg,
		logger:         logger,
		metrics:        metrics,
		pollInterval:   cfg.PollInterval,
		batchSize:      cfg.BatchSize,
		maxParallel:    cfg.MaxParallel,
		handlerTimeout: cfg.HandlerTimeout,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or ctx is cancelled. It
// blocks the calling goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting worker",
		zap.String("name", w.name),
		zap.Duration("poll_interval", w.pollInterval),
		zap.Int("batch_size", w.batchSize),
		zap.Int("max_parallel", w.maxParallel))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping due to context cancellation, waiting for current batch")
			w.waitForCurrentBatch()
			w.logger.Info("worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("worker stopping, waiting for current batch")
			w.waitForCurrentBatch()
			w.logger.Info("worker stopped")
			return
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil {
				w.logger.Error("poll cycle failed", zap.Error(err))
			}
		}
	}
}

// Stop signals the worker to stop and blocks until the in-flight batch
// has finished being drained to status-write completion.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) setProcessing(v bool) {
	w.processingMu.Lock()
	w.processing = v
	w.processingMu.Unlock()
}

func (w *Worker) isProcessing() bool {
	w.processingMu.Lock()
	defer w.processingMu.Unlock()
	return w.processing
}

func (w *Worker) waitForCurrentBatch() {
	for w.isProcessing() {
		time.Sleep(10 * time.Millisecond)
	}
}

// pollOnce executes a single claim-dispatch-write cycle.
func (w *Worker) pollOnce(ctx context.Context) error {
	w.setProcessing(true)
	defer w.setProcessing(false)

	start := time.Now()

	events, err := w.repo.FetchPending(ctx, w.batchSize)
	if err != nil {
		return err
	}

	w.metrics.PendingCount.Set(float64(len(events)))
	w.metrics.BatchSize.Observe(float64(len(events)))

	if len(events) == 0 {
		return nil
	}

	w.dispatchBatch(ctx, events)
	w.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())
	w.logger.Info("batch processed", zap.Int("count", len(events)), zap.Duration("duration", time.Since(start)))
	return nil
}

// outcome is the result of dispatching a single claimed event.
type outcome struct {
	event model.Event
	err   error // nil on success
}

// dispatchBatch fans each event out to a handler invocation bounded to
// maxParallel concurrent goroutines, then writes each status in
// completion order (spec: status writes happen in completion order, not
// submission order) — a buffered channel collects results as they finish
// rather than a pre-sized, input-index-ordered slice, since the writes
// themselves must follow completion order, not claim order.
func (w *Worker) dispatchBatch(ctx context.Context, events []model.Event) {
	results := make(chan outcome, len(events))
	semaphore := make(chan struct{}, w.maxParallel)

	var wg sync.WaitGroup
	for _, event := range events {
		wg.Add(1)
		go func(e model.Event) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			results <- outcome{event: e, err: w.invokeHandler(ctx, e)}
		}(event)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		w.writeOutcome(ctx, result)
	}
}

// invokeHandler dispatches one event through the registry, applying the
// optional per-handler timeout and folding NotFound into the same
// retryable-failure path as a handler error.
func (w *Worker) invokeHandler(ctx context.Context, event model.Event) error {
	handlerCtx := ctx
	if w.handlerTimeout > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(ctx, w.handlerTimeout)
		defer cancel()
	}

	outcome, err := w.registry.Dispatch(handlerCtx, event.EventType, event.Payload)
	switch outcome {
	case registry.Ok:
		return nil
	case registry.NotFound:
		return errHandlerNotFound{eventType: event.EventType}
	default:
		return err
	}
}

type errHandlerNotFound struct{ eventType string }

func (e errHandlerNotFound) Error() string {
	return "worker: no handler registered for event type " + e.eventType
}

// writeOutcome commits the terminal or retryable status for a single
// dispatched event. A claimed row missing its id is a defensive,
// shouldn't-happen case: logged and skipped with no status write.
func (w *Worker) writeOutcome(ctx context.Context, result outcome) {
	if result.event.ID == nil {
		w.logger.Error("claimed event missing id, skipping status write",
			zap.String("event_type", result.event.EventType))
		return
	}
	id := *result.event.ID

	if result.err == nil {
		if err := w.repo.MarkSuccess(ctx, id); err != nil {
			w.logger.Error("failed to mark event success", zap.Int64("event_id", id), zap.Error(err))
			return
		}
		w.metrics.ProcessedTotal.Inc()
		return
	}

	w.logger.Error("handler failed, marking for retry",
		zap.Int64("event_id", id),
		zap.String("event_type", result.event.EventType),
		zap.Int("attempts", result.event.Attempts),
		zap.Error(result.err))

	if err := w.repo.MarkRetry(ctx, id); err != nil {
		w.logger.Error("failed to mark event retry", zap.Int64("event_id", id), zap.Error(err))
		return
	}
	w.metrics.RetriedTotal.Inc()
}
