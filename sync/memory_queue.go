package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-social-connect/core"
)

const defaultQueueCapacity = 64

// InProcessQueue is a channel-backed job queue for single-process
// deployments: the connector enqueues seeded sync jobs and a Worker in the
// same process drains them. Requeued nacks come back after their delay;
// dead-lettered deliveries are dropped. Multi-process deployments should
// use a durable queue through adapters/gojob instead.
type InProcessQueue struct {
	jobs chan *core.JobExecutionMessage
}

func NewInProcessQueue(capacity int) *InProcessQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &InProcessQueue{jobs: make(chan *core.JobExecutionMessage, capacity)}
}

func (q *InProcessQueue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("sync: message is required")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- cloneMessage(msg):
		return nil
	}
}

func (q *InProcessQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-q.jobs:
		return &inProcessDelivery{queue: q, msg: msg}, nil
	}
}

type inProcessDelivery struct {
	queue *InProcessQueue
	msg   *core.JobExecutionMessage
}

func (d *inProcessDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *inProcessDelivery) Ack(context.Context) error { return nil }

// Nack requeues after the requested delay. Dead letters are dropped; the
// seeded job is an idempotent upsert, so a later manual sync backfills. A
// delayed redelivery that finds the buffer full is dropped for the same
// reason.
func (d *inProcessDelivery) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if opts.DeadLetter || !opts.Requeue {
		return nil
	}
	if opts.Delay <= 0 {
		return d.queue.Enqueue(ctx, d.msg)
	}
	msg := d.msg
	queue := d.queue
	time.AfterFunc(opts.Delay, func() {
		select {
		case queue.jobs <- msg:
		default:
		}
	})
	return nil
}

func cloneMessage(msg *core.JobExecutionMessage) *core.JobExecutionMessage {
	copied := &core.JobExecutionMessage{
		JobID:          msg.JobID,
		IdempotencyKey: msg.IdempotencyKey,
		DedupPolicy:    msg.DedupPolicy,
	}
	if len(msg.Parameters) > 0 {
		copied.Parameters = make(map[string]any, len(msg.Parameters))
		for key, value := range msg.Parameters {
			copied.Parameters[key] = value
		}
	}
	return copied
}

var (
	_ core.JobEnqueuer = (*InProcessQueue)(nil)
	_ core.JobDequeuer = (*InProcessQueue)(nil)
	_ core.JobDelivery = (*inProcessDelivery)(nil)
)
