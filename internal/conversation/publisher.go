package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// Publisher enqueues debounced turns for the workers.
type Publisher struct {
	queue  Queue
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil, in which
// case turns are not tracked.
func NewPublisher(queue Queue, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, jobs: jobs, logger: logger}
}

// PublishTurn enqueues a turn and returns its job id.
func (p *Publisher) PublishTurn(ctx context.Context, turn TurnRequest) (string, error) {
	if strings.TrimSpace(turn.Address) == "" {
		return "", errors.New("conversation: turn address required")
	}
	payload, body, err := encodePayload(turnPayload{Turn: turn, TrackStatus: p.jobs != nil})
	if err != nil {
		return "", err
	}
	if p.jobs != nil {
		if err := p.jobs.PutPending(ctx, &JobRecord{JobID: payload.ID, Address: turn.Address}); err != nil {
			return "", err
		}
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue turn: %w", err)
	}
	p.logger.Debug("turn enqueued", "job_id", payload.ID, "address", turn.Address)
	return payload.ID, nil
}
