package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/salonchat/supportdesk/internal/notify"
	"github.com/salonchat/supportdesk/internal/observability/metrics"
	"github.com/salonchat/supportdesk/pkg/logging"
)

// Worker dispatches due reminders through the notifier.
type Worker struct {
	store       *Store
	notifier    notify.Notifier
	metrics     *metrics.ReminderMetrics
	logger      *logging.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// NewWorker creates a reminder worker.
func NewWorker(store *Store, notifier notify.Notifier, m *metrics.ReminderMetrics, logger *logging.Logger) *Worker {
	if store == nil {
		panic("reminders: store required")
	}
	if notifier == nil {
		panic("reminders: notifier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		store:       store,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		interval:    time.Minute,
		batchSize:   50,
		maxAttempts: 3,
		now:         time.Now,
	}
}

func (w *Worker) WithInterval(d time.Duration) *Worker {
	if d > 0 {
		w.interval = d
	}
	return w
}

func (w *Worker) WithBatchSize(n int) *Worker {
	if n > 0 {
		w.batchSize = n
	}
	return w
}

func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	if _, err := w.ProcessDue(ctx); err != nil {
		w.logger.Error("reminders worker: poll failed", "error", err)
	}
}

// ProcessDue dispatches one batch of due reminders and returns how many
// were sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := w.now().UTC()
	due, err := w.store.ListDue(ctx, now, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reminders worker: list due: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}
	w.logger.Info("reminders worker: processing due reminders", "count", len(due))

	sent := 0
	for i := range due {
		r := &due[i]
		lag := now.Sub(r.ScheduledFor).Seconds()
		if err := w.notifier.Notify(ctx, notify.KindReminderDue, r); err != nil {
			status, ferr := w.store.RecordFailure(ctx, r.ID, err.Error(), w.maxAttempts)
			if ferr != nil {
				w.logger.Error("reminders worker: record failure", "id", r.ID, "error", ferr)
				continue
			}
			w.metrics.ObserveDispatch(string(r.Kind), string(status), lag)
			w.logger.Warn("reminders worker: dispatch failed",
				"id", r.ID, "kind", r.Kind, "attempt", r.Attempts+1, "status", status, "error", err)
			continue
		}
		if err := w.store.MarkSent(ctx, r.ID, now); err != nil {
			w.logger.Error("reminders worker: mark sent", "id", r.ID, "error", err)
			continue
		}
		w.metrics.ObserveDispatch(string(r.Kind), string(StatusSent), lag)
		w.logger.Info("reminders worker: reminder sent", "id", r.ID, "kind", r.Kind, "customer_id", r.CustomerID)
		sent++
	}
	return sent, nil
}
