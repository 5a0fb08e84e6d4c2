package ideasync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type OrchestratorOptions struct {
	Writer  RecordWriter
	Log     *ActivityLog
	Hub     *EventHub
	Metrics *Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Orchestrator runs sync passes: categories in fixed order, lines in input
// order, one remote write in flight at a time.
type Orchestrator struct {
	writer  RecordWriter
	log     *ActivityLog
	hub     *EventHub
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time

	busy atomic.Bool

	warningMu      sync.RWMutex
	networkWarning bool
}

func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Writer == nil {
		return nil, fmt.Errorf("%w: record writer is required", ErrInvalidInput)
	}
	hub := opts.Hub
	if hub == nil {
		hub = NewEventHub()
	}
	activity := opts.Log
	if activity == nil {
		activity = NewActivityLog(ActivityLogOptions{Hub: hub})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		writer:  opts.Writer,
		log:     activity,
		hub:     hub,
		metrics: opts.Metrics,
		logger:  logger,
		now:     now,
	}, nil
}

func (o *Orchestrator) Log() *ActivityLog {
	return o.log
}

func (o *Orchestrator) Hub() *EventHub {
	return o.hub
}

func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// NetworkWarning reports whether the most recent write outcome raised the
// network advisory. It stays raised until the next successful write.
func (o *Orchestrator) NetworkWarning() bool {
	o.warningMu.RLock()
	defer o.warningMu.RUnlock()
	return o.networkWarning
}

// Sync dispatches every non-empty line of every category. Per-line failures
// are recorded in the activity log and never returned. The returned error is
// one of ErrMissingCredentials, ErrSyncInProgress, ErrEmptyInput, or a
// buffer read/lock failure.
func (o *Orchestrator) Sync(ctx context.Context, creds Credentials, buffers Buffers) (Summary, error) {
	if !creds.Complete() {
		return Summary{}, ErrMissingCredentials
	}
	if buffers == nil {
		return Summary{}, fmt.Errorf("%w: buffers are required", ErrInvalidInput)
	}
	if !o.busy.CompareAndSwap(false, true) {
		return Summary{}, ErrSyncInProgress
	}
	o.publishBusy(true)
	defer func() {
		o.busy.Store(false)
		o.publishBusy(false)
	}()

	if locker, ok := buffers.(RunLocker); ok {
		unlock, err := locker.LockRun()
		if err != nil {
			return Summary{}, err
		}
		defer func() {
			if err := unlock(); err != nil {
				o.logger.Warn("release input lock failed", "error", err)
			}
		}()
	}

	summary := Summary{StartedAt: o.now()}
	o.logger.Info("sync started")

	for _, category := range Categories {
		raw, err := buffers.Text(category)
		if err != nil {
			summary.FinishedAt = o.now()
			o.metrics.observeRun("failed", summary.FinishedAt.Sub(summary.StartedAt))
			return summary, fmt.Errorf("read %s input: %w", category.Key(), err)
		}
		lines := SplitLines(raw)
		if len(lines) == 0 {
			continue
		}
		summary.Categories = append(summary.Categories, category)

		for _, line := range lines {
			record := o.dispatch(ctx, creds, line, category)
			summary.RecordIDs = append(summary.RecordIDs, record.ID)
			if record.Status == StatusSuccess {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
		}

		if err := buffers.Consume(category, raw); err != nil {
			o.logger.Error("clear input failed", "category", category.Key(), "error", err)
			summary.ClearErrors = append(summary.ClearErrors, fmt.Sprintf("%s: %v", category.Key(), err))
			continue
		}
		o.hub.Publish(Event{Type: EventBufferCleared, Category: category})
	}

	summary.NetworkWarning = o.NetworkWarning()
	summary.FinishedAt = o.now()
	if len(summary.Categories) == 0 {
		o.metrics.observeRun("empty", summary.FinishedAt.Sub(summary.StartedAt))
		o.logger.Info("sync found nothing to send")
		return summary, ErrEmptyInput
	}
	o.metrics.observeRun("completed", summary.FinishedAt.Sub(summary.StartedAt))
	o.logger.Info("sync finished",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"network_warning", summary.NetworkWarning,
		"duration_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)
	return summary, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, creds Credentials, line string, category Category) AttemptRecord {
	record := o.log.Begin(line, category)

	err := o.write(ctx, creds, line, category)
	if err == nil {
		done, finishErr := o.log.Complete(record.ID)
		if finishErr != nil {
			o.logger.Error("complete attempt failed", "record_id", record.ID, "error", finishErr)
		}
		o.setNetworkWarning(false)
		o.metrics.observeAttempt(category, StatusSuccess, "")
		return done
	}

	kind := KindOf(err)
	message := err.Error()
	if kind == KindNetworkUnavailable {
		message = NetworkUnavailableMessage
		var writeErr *WriteError
		if errors.As(err, &writeErr) && writeErr.Message != "" {
			message = writeErr.Message
		}
		o.setNetworkWarning(true)
	}
	o.logger.Warn("idea write failed",
		"record_id", record.ID,
		"category", category.Key(),
		"kind", string(kind),
		"error", message,
	)
	failed, finishErr := o.log.Fail(record.ID, kind, message)
	if finishErr != nil {
		o.logger.Error("fail attempt failed", "record_id", record.ID, "error", finishErr)
	}
	o.metrics.observeAttempt(category, StatusError, kind)
	return failed
}

// write shields the run from a panicking writer so every line still reaches a
// terminal status.
func (o *Orchestrator) write(ctx context.Context, creds Credentials, line string, category Category) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = &WriteError{Kind: KindUnknown, Message: fmt.Sprintf("record writer panic: %v", recovered)}
		}
	}()
	return o.writer.WriteRecord(ctx, creds, line, category)
}

func (o *Orchestrator) setNetworkWarning(raised bool) {
	o.warningMu.Lock()
	changed := o.networkWarning != raised
	o.networkWarning = raised
	o.warningMu.Unlock()
	o.metrics.setNetworkWarning(raised)
	if changed {
		o.hub.Publish(Event{Type: EventNetworkWarning, NetworkWarning: &raised})
	}
}

func (o *Orchestrator) publishBusy(busy bool) {
	o.hub.Publish(Event{Type: EventBusyChanged, Busy: &busy})
}
