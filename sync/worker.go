package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-social-connect/core"
)

const defaultWorkerMaxAttempts = 3

// SyncService is the slice of the connector the worker drives.
// *core.ConnectorService satisfies it.
type SyncService interface {
	Sync(ctx context.Context, req core.SyncRequest) (core.SyncResponse, error)
}

// Worker drains queued account-sync jobs and runs them through the
// connector. Each delivery is acked on success; failures are nacked with
// exponential backoff until MaxAttempts, then dead-lettered. Attempts are
// tracked per idempotency key, so a redelivered message resumes its count.
// A Worker serves one consume loop; Handle is not safe for concurrent use.
type Worker struct {
	service   SyncService
	dequeuer  core.JobDequeuer
	hook      core.JobWorkerHook
	scheduler core.RefreshBackoffScheduler
	logger    core.Logger

	maxAttempts int
	attempts    map[string]int
	now         func() time.Time
}

type WorkerOption func(*Worker)

func WithWorkerHook(hook core.JobWorkerHook) WorkerOption {
	return func(w *Worker) {
		if hook != nil {
			w.hook = hook
		}
	}
}

func WithWorkerLogger(logger core.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithWorkerBackoff(scheduler core.RefreshBackoffScheduler) WorkerOption {
	return func(w *Worker) {
		if scheduler != nil {
			w.scheduler = scheduler
		}
	}
}

func WithWorkerMaxAttempts(attempts int) WorkerOption {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

func NewWorker(service SyncService, dequeuer core.JobDequeuer, opts ...WorkerOption) (*Worker, error) {
	if service == nil {
		return nil, fmt.Errorf("sync: worker requires a sync service")
	}
	if dequeuer == nil {
		return nil, fmt.Errorf("sync: worker requires a dequeuer")
	}
	worker := &Worker{
		service:     service,
		dequeuer:    dequeuer,
		scheduler:   core.ExponentialBackoffScheduler{},
		logger:      glog.Nop(),
		maxAttempts: defaultWorkerMaxAttempts,
		attempts:    map[string]int{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(worker)
	}
	return worker, nil
}

// Run drains the queue until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		delivery, err := w.dequeuer.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.Error("dequeue failed", "error", err)
			continue
		}
		if delivery == nil {
			continue
		}
		w.Handle(ctx, delivery)
	}
}

// Handle processes one delivery. Exported so queue integrations that own
// their consume loop can still reuse the worker's semantics.
func (w *Worker) Handle(ctx context.Context, delivery core.JobDelivery) {
	msg := delivery.Message()
	if msg == nil {
		w.discard(ctx, delivery, "empty delivery")
		return
	}
	if jobID := strings.TrimSpace(msg.JobID); jobID != "" && jobID != core.JobIDAccountSync {
		w.discard(ctx, delivery, "unknown job id "+jobID)
		return
	}
	accountID := parameterString(msg.Parameters, "account_id")
	if accountID == "" {
		w.discard(ctx, delivery, "missing account_id parameter")
		return
	}

	attempt := w.nextAttempt(msg)
	startedAt := w.now()
	w.emit(func(hook core.JobWorkerHook) {
		hook.OnStart(ctx, core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: startedAt})
	})

	_, err := w.service.Sync(ctx, core.SyncRequest{AccountID: accountID})
	duration := w.now().Sub(startedAt)
	if err == nil {
		w.clearAttempts(msg)
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			w.logger.Error("ack failed", "account_id", accountID, "error", ackErr)
		}
		w.emit(func(hook core.JobWorkerHook) {
			hook.OnSuccess(ctx, core.JobWorkerEvent{
				Message:   msg,
				Attempt:   attempt,
				StartedAt: startedAt,
				Duration:  duration,
			})
		})
		return
	}

	if isMissingAccountError(err) || attempt >= w.maxAttempts {
		w.clearAttempts(msg)
		w.nack(ctx, delivery, core.JobNackOptions{
			DeadLetter: true,
			Reason:     err.Error(),
		}, accountID)
		w.emit(func(hook core.JobWorkerHook) {
			hook.OnFailure(ctx, core.JobWorkerEvent{
				Message:   msg,
				Attempt:   attempt,
				Err:       err,
				StartedAt: startedAt,
				Duration:  duration,
			})
		})
		return
	}

	delay := w.scheduler.NextDelay(attempt)
	w.nack(ctx, delivery, core.JobNackOptions{
		Delay:   delay,
		Requeue: true,
		Reason:  err.Error(),
	}, accountID)
	w.emit(func(hook core.JobWorkerHook) {
		hook.OnRetry(ctx, core.JobWorkerEvent{
			Message:   msg,
			Attempt:   attempt,
			Delay:     delay,
			Err:       err,
			StartedAt: startedAt,
			Duration:  duration,
		})
	})
}

// isMissingAccountError recognizes both the raw store sentinel and the
// mapped envelope the connector service returns for a missing account.
// Retrying either can never succeed, so the delivery dead-letters at once.
func isMissingAccountError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, core.ErrAccountNotFound) {
		return true
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Category == goerrors.CategoryNotFound {
			return true
		}
		if strings.TrimSpace(strings.ToUpper(richErr.TextCode)) == core.ConnectorErrorAccountNotFound {
			return true
		}
	}
	return false
}

func (w *Worker) discard(ctx context.Context, delivery core.JobDelivery, reason string) {
	w.logger.Warn("discarding sync delivery", "reason", reason)
	w.nack(ctx, delivery, core.JobNackOptions{DeadLetter: true, Reason: reason}, "")
}

func (w *Worker) nack(ctx context.Context, delivery core.JobDelivery, opts core.JobNackOptions, accountID string) {
	if err := delivery.Nack(ctx, opts); err != nil {
		w.logger.Error("nack failed", "account_id", accountID, "error", err)
	}
}

func (w *Worker) emit(fn func(core.JobWorkerHook)) {
	if w.hook == nil {
		return
	}
	fn(w.hook)
}

func (w *Worker) nextAttempt(msg *core.JobExecutionMessage) int {
	key := attemptKey(msg)
	w.attempts[key]++
	return w.attempts[key]
}

func (w *Worker) clearAttempts(msg *core.JobExecutionMessage) {
	delete(w.attempts, attemptKey(msg))
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return parameterString(msg.Parameters, "account_id")
}

func parameterString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
