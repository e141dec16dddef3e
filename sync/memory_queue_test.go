package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-social-connect/core"
)

func TestInProcessQueue_DeliversEnqueuedMessages(t *testing.T) {
	queue := NewInProcessQueue(4)
	ctx := context.Background()

	if err := queue.Enqueue(ctx, syncMessage("acct-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	delivery, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != core.JobIDAccountSync {
		t.Fatalf("expected account-sync message, got %+v", msg)
	}
	if got := msg.Parameters["account_id"]; got != "acct-1" {
		t.Fatalf("expected account_id acct-1, got %v", got)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestInProcessQueue_EnqueueCopiesMessage(t *testing.T) {
	queue := NewInProcessQueue(1)
	ctx := context.Background()

	original := syncMessage("acct-1")
	if err := queue.Enqueue(ctx, original); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	original.Parameters["account_id"] = "mutated"

	delivery, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got := delivery.Message().Parameters["account_id"]; got != "acct-1" {
		t.Fatalf("delivery must not see caller mutations, got %v", got)
	}
}

func TestInProcessQueue_NackRequeuesAndDeadLetterDrops(t *testing.T) {
	queue := NewInProcessQueue(4)
	ctx := context.Background()

	if err := queue.Enqueue(ctx, syncMessage("acct-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	delivery, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := delivery.Nack(ctx, core.JobNackOptions{Requeue: true}); err != nil {
		t.Fatalf("nack: %v", err)
	}

	redelivered, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue redelivery: %v", err)
	}
	if got := redelivered.Message().Parameters["account_id"]; got != "acct-1" {
		t.Fatalf("expected redelivered message, got %v", got)
	}
	if err := redelivered.Nack(ctx, core.JobNackOptions{DeadLetter: true}); err != nil {
		t.Fatalf("dead-letter nack: %v", err)
	}

	drained, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := queue.Dequeue(drained); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("dead-lettered message must not redeliver, got %v", err)
	}
}

func TestInProcessQueue_DelayedRequeue(t *testing.T) {
	queue := NewInProcessQueue(4)
	ctx := context.Background()

	if err := queue.Enqueue(ctx, syncMessage("acct-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	delivery, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := delivery.Nack(ctx, core.JobNackOptions{Requeue: true, Delay: 10 * time.Millisecond}); err != nil {
		t.Fatalf("nack: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	redelivered, err := queue.Dequeue(waitCtx)
	if err != nil {
		t.Fatalf("expected delayed redelivery, got %v", err)
	}
	if got := redelivered.Message().Parameters["account_id"]; got != "acct-1" {
		t.Fatalf("expected redelivered message, got %v", got)
	}
}

func TestInProcessQueue_DrivesWorkerEndToEnd(t *testing.T) {
	queue := NewInProcessQueue(4)
	service := &stubSyncService{}

	worker, err := NewWorker(service, queue)
	if err != nil {
		t.Fatalf("build worker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Enqueue(ctx, syncMessage("acct-1")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	delivery, err := queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	worker.Handle(ctx, delivery)

	if len(service.calls) != 1 || service.calls[0] != "acct-1" {
		t.Fatalf("expected one sync for acct-1, got %v", service.calls)
	}
}
