package messaging

import "context"

// Sender is the outbound side of the chat gateway.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	MarkRead(ctx context.Context, remoteJID, messageID string) error
	SendTyping(ctx context.Context, to string, duration int) error
}
