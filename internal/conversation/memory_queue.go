package conversation

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"
)

// MemoryQueue is the in-process turn queue used when no SQS queue is
// configured. Messages are lost on restart.
type MemoryQueue struct {
	ch  chan QueueMessage
	seq atomic.Uint64
}

func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryQueue{ch: make(chan QueueMessage, buffer)}
}

// Send blocks while the buffer is full.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	id := strconv.FormatUint(q.seq.Add(1), 10)
	select {
	case q.ch <- QueueMessage{ID: id, Body: body, ReceiptHandle: id}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to waitSeconds (forever when zero) for the first message,
// then drains whatever else is buffered up to maxMessages.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	var first QueueMessage
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case first = <-q.ch:
	}

	out := []QueueMessage{first}
	for len(out) < maxMessages {
		select {
		case msg := <-q.ch:
			out = append(out, msg)
		default:
			return out, nil
		}
	}
	return out, nil
}

// Delete is a no-op; receiving already removed the message.
func (q *MemoryQueue) Delete(context.Context, string) error { return nil }

// Len reports how many messages are buffered.
func (q *MemoryQueue) Len() int { return len(q.ch) }
