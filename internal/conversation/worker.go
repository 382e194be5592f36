package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/clinic-booking-agent/internal/messaging"
	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// PauseMarker splits a reply into separately delivered messages.
const PauseMarker = "[PAUSE]"

// TurnFailureText is sent when a turn fails before producing a reply.
const TurnFailureText = "Desculpe, tive um problema técnico. Por favor, tente novamente em alguns instantes."

const (
	defaultWorkerCount  = 2
	defaultWaitSeconds  = 2
	defaultBatchSize    = 5
	maxWaitSeconds      = 20
	maxReceiveBatchSize = 10
	typingPerChar       = 25 * time.Millisecond
	maxTyping           = 3500 * time.Millisecond
	deleteTimeout       = 5 * time.Second
)

// TurnHandler runs one agent turn.
type TurnHandler interface {
	HandleTurn(ctx context.Context, address, text string) (Reply, error)
}

// Worker consumes turn jobs, runs the agent and delivers the reply.
type Worker struct {
	handler TurnHandler
	queue   Queue
	jobs    JobUpdater
	sender  messaging.Sender
	metrics *metrics.Metrics
	logger  *logging.Logger
	sleep   func(ctx context.Context, d time.Duration)

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	metrics          *metrics.Metrics
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(cfg *workerConfig) { cfg.metrics = m }
}

// NewWorker wires a worker. jobs may be nil when turns are not tracked.
func NewWorker(handler TurnHandler, queue Queue, jobs JobUpdater, sender messaging.Sender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: turn handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if sender == nil {
		panic("conversation: sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{
		handler: handler,
		queue:   queue,
		jobs:    jobs,
		sender:  sender,
		metrics: cfg.metrics,
		logger:  logger.Component("turn-worker"),
		sleep:   sleepCtx,
		cfg:     cfg,
	}
}

func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("turn worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			w.logger.Debug("turn worker stopping", "worker_id", workerID)
			return
		}
		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			w.logger.Error("failed to receive turn jobs", "error", err, "worker_id", workerID)
			w.sleep(ctx, backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg QueueMessage) {
	defer w.deleteMessage(msg.ReceiptHandle)

	var payload turnPayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode turn job", "error", err, "msg_id", msg.ID)
		return
	}
	turn := payload.Turn
	w.logger.Info("worker processing turn", "job_id", payload.ID, "address", turn.Address, "messages", len(turn.MessageIDs))

	reply, err := w.runTurn(ctx, turn)
	if err != nil {
		w.logger.Error("turn failed", "error", err, "job_id", payload.ID, "address", turn.Address)
		text := reply.Text
		if strings.TrimSpace(text) == "" {
			text = TurnFailureText
		}
		w.Deliver(ctx, turn.Address, text)
		if payload.TrackStatus && w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
		return
	}

	w.Deliver(ctx, turn.Address, reply.Text)

	if payload.TrackStatus && w.jobs != nil {
		if err := w.jobs.MarkCompleted(ctx, payload.ID, reply.ConversationID.String(), reply.Text); err != nil {
			w.logger.Error("failed to update job status", "error", err, "job_id", payload.ID)
		}
	}
}

func (w *Worker) runTurn(ctx context.Context, turn TurnRequest) (reply Reply, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("turn panicked", "panic", r, "address", turn.Address)
			err = errors.New("conversation: turn panicked")
		}
	}()
	return w.handler.HandleTurn(ctx, turn.Address, turn.Text)
}

// Deliver sends a reply part by part, showing the typing indicator before
// each part. Failures are logged; the reply is already persisted.
func (w *Worker) Deliver(ctx context.Context, address, text string) {
	for _, part := range SplitReply(text) {
		typing := TypingDuration(part)
		if err := w.sender.SendTyping(ctx, address, int(typing/time.Millisecond)); err != nil {
			w.logger.Warn("typing indicator failed", "error", err, "address", address)
		}
		w.sleep(ctx, typing)
		if err := w.sender.SendText(ctx, address, part); err != nil {
			w.metrics.ObserveOutbound("error")
			w.logger.Error("reply delivery failed", "error", err, "address", address)
			return
		}
		w.metrics.ObserveOutbound("sent")
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete turn job", "error", err)
	}
}

// SplitReply breaks a reply on PauseMarker and drops empty parts.
func SplitReply(text string) []string {
	raw := strings.Split(text, PauseMarker)
	parts := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// TypingDuration is proportional to the text length, capped at 3.5s.
func TypingDuration(text string) time.Duration {
	d := time.Duration(len([]rune(text))) * typingPerChar
	if d > maxTyping {
		return maxTyping
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
