package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging"
	"github.com/wolfman30/clinic-booking-agent/internal/messaging/evolution"
	"github.com/wolfman30/clinic-booking-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking-agent/pkg/logging"
)

// NonTextReply answers media, stickers and voice notes.
const NonTextReply = "Desculpe, por enquanto só consigo ler mensagens de texto. Pode escrever o que precisa?"

const publishTimeout = 10 * time.Second

// Result says what the gate did with an event.
type Result string

const (
	ResultIgnored   Result = "ignored"
	ResultFromMe    Result = "from_me"
	ResultGroup     Result = "group"
	ResultDuplicate Result = "duplicate"
	ResultNonText   Result = "non_text"
	ResultOperator  Result = "operator"
	ResultEscalated Result = "escalated"
	ResultBuffered  Result = "buffered"
)

// TurnPublisher hands a debounced turn to the workers.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, turn conversation.TurnRequest) (string, error)
}

// EscalationLookup finds an escalated conversation for an address.
type EscalationLookup interface {
	EscalatedByAddress(ctx context.Context, address string) (*conversation.Conversation, error)
}

// OperatorHandler answers commands sent from the clinic operator's phone.
type OperatorHandler interface {
	Handle(ctx context.Context, text string) string
}

// Config configures a Gate.
type Config struct {
	OperatorAddress string
	DebounceWindow  time.Duration
}

// Gate filters inbound gateway events and coalesces patient text into turns.
type Gate struct {
	dedupe    Deduper
	sender    messaging.Sender
	escalated EscalationLookup
	operator  OperatorHandler
	publisher TurnPublisher
	debouncer *Debouncer
	cfg       Config
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

func NewGate(dedupe Deduper, sender messaging.Sender, escalated EscalationLookup, operator OperatorHandler, publisher TurnPublisher, cfg Config, m *metrics.Metrics, logger *logging.Logger) *Gate {
	switch {
	case dedupe == nil:
		panic("intake: deduper cannot be nil")
	case sender == nil:
		panic("intake: sender cannot be nil")
	case escalated == nil:
		panic("intake: escalation lookup cannot be nil")
	case publisher == nil:
		panic("intake: publisher cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	g := &Gate{
		dedupe:    dedupe,
		sender:    sender,
		escalated: escalated,
		operator:  operator,
		publisher: publisher,
		cfg:       cfg,
		metrics:   m,
		logger:    logger.Component("intake"),
	}
	g.debouncer = NewDebouncer(cfg.DebounceWindow, g.publish)
	return g
}

// HandleEvent runs one webhook event through the gate.
func (g *Gate) HandleEvent(ctx context.Context, evt evolution.WebhookEvent) (Result, error) {
	result, err := g.handle(ctx, evt)
	g.metrics.ObserveInbound(string(result))
	return result, err
}

func (g *Gate) handle(ctx context.Context, evt evolution.WebhookEvent) (Result, error) {
	if evt.NormalizedEvent() != evolution.EventMessagesUpsert {
		return ResultIgnored, nil
	}
	key := evt.Data.Key
	if key.FromMe {
		return ResultFromMe, nil
	}
	if messaging.IsGroupJID(key.RemoteJID) {
		return ResultGroup, nil
	}
	address := messaging.AddressFromJID(key.RemoteJID)
	if address == "" {
		return ResultIgnored, nil
	}

	if key.ID != "" {
		fresh, err := g.dedupe.MarkSeen(ctx, key.ID)
		if err != nil {
			g.logger.Warn("dedupe failed, processing anyway", "error", err, "message_id", key.ID)
		} else if !fresh {
			return ResultDuplicate, nil
		}
	}

	text := evt.Data.Text()
	if text == "" {
		if err := g.sender.SendText(ctx, address, NonTextReply); err != nil {
			return ResultNonText, err
		}
		return ResultNonText, nil
	}

	if g.isOperator(address) {
		if g.operator == nil {
			return ResultOperator, nil
		}
		reply := g.operator.Handle(ctx, text)
		if strings.TrimSpace(reply) == "" {
			return ResultOperator, nil
		}
		return ResultOperator, g.sender.SendText(ctx, address, reply)
	}

	conv, err := g.escalated.EscalatedByAddress(ctx, address)
	switch {
	case err == nil && conv != nil:
		g.logger.Info("message suppressed for escalated conversation", "conversation_id", conv.ID, "address", address)
		return ResultEscalated, nil
	case err != nil && !errors.Is(err, conversation.ErrNotFound):
		g.logger.Warn("escalation lookup failed", "error", err, "address", address)
	}

	if key.ID != "" {
		if err := g.sender.MarkRead(ctx, key.RemoteJID, key.ID); err != nil {
			g.logger.Warn("mark read failed", "error", err, "address", address)
		}
	}
	g.debouncer.Add(address, text, key.ID)
	return ResultBuffered, nil
}

func (g *Gate) isOperator(address string) bool {
	return g.cfg.OperatorAddress != "" && messaging.PhonesMatch(address, g.cfg.OperatorAddress)
}

func (g *Gate) publish(b Batch) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	jobID, err := g.publisher.PublishTurn(ctx, conversation.TurnRequest{
		Address:    b.Address,
		Text:       b.Text(),
		MessageIDs: b.MessageIDs,
		ReceivedAt: b.FirstAt,
	})
	if err != nil {
		g.logger.Error("failed to publish turn", "error", err, "address", b.Address, "messages", len(b.Texts))
		return
	}
	g.logger.Info("turn published", "job_id", jobID, "address", b.Address, "messages", len(b.Texts))
}

// Flush publishes every buffered batch now.
func (g *Gate) Flush() {
	g.debouncer.FlushAll()
}
