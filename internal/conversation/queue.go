package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue carries serialized turn jobs between the intake gate and workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received job. ReceiptHandle acknowledges it on Delete.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// TurnRequest is one debounced batch of patient text.
type TurnRequest struct {
	Address    string    `json:"address"`
	Text       string    `json:"text"`
	MessageIDs []string  `json:"messageIds,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

type turnPayload struct {
	ID          string      `json:"id"`
	Turn        TurnRequest `json:"turn"`
	TrackStatus bool        `json:"track_status"`
}

func encodePayload(payload turnPayload) (turnPayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return turnPayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
