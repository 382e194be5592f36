package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("clinic.internal.conversation")

// ErrNotFound is returned when no conversation matches.
var ErrNotFound = errors.New("conversation: not found")

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusEscalated Status = "ESCALATED"
)

type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
)

// Conversation is one dialogue thread with a patient. Address is the
// patient's messaging address, read through the patient row.
type Conversation struct {
	ID           uuid.UUID
	PatientID    uuid.UUID
	Address      string
	Status       Status
	LastActivity time.Time
	CreatedAt    time.Time
}

// Message is an append-only transcript entry.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Direction      Direction
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Store persists conversations and their transcripts.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// ActiveByAddress returns the ACTIVE conversation with the latest
	// activity among the patients at address.
	ActiveByAddress(ctx context.Context, address string) (*Conversation, error)
	// EscalatedByAddress returns the most recent ESCALATED conversation at
	// address.
	EscalatedByAddress(ctx context.Context, address string) (*Conversation, error)
	Create(ctx context.Context, c *Conversation) error
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendMessage(ctx context.Context, m *Message) error
	// RecentMessages returns up to limit of the latest messages in
	// chronological order.
	RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	ReassignPatient(ctx context.Context, conversationID, patientID uuid.UUID) error
	MarkEscalated(ctx context.Context, conversationID uuid.UUID) error
	Reactivate(ctx context.Context, conversationID uuid.UUID) error
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on the relational database.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{db: db}
}

const conversationSelect = `
	SELECT c.id, c.patient_id, p.address, c.status, c.last_activity, c.created_at
	FROM conversations c
	JOIN patients p ON p.id = c.patient_id`

func (s *PostgresStore) ActiveByAddress(ctx context.Context, address string) (*Conversation, error) {
	return s.byAddress(ctx, address, StatusActive)
}

func (s *PostgresStore) EscalatedByAddress(ctx context.Context, address string) (*Conversation, error) {
	return s.byAddress(ctx, address, StatusEscalated)
}

func (s *PostgresStore) byAddress(ctx context.Context, address string, status Status) (*Conversation, error) {
	ctx, span := tracer.Start(ctx, "conversation.by_address")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.status", string(status)))

	c, err := scanConversation(s.db.QueryRow(ctx, conversationSelect+`
		WHERE p.address = $1 AND c.status = $2
		ORDER BY c.last_activity DESC
		LIMIT 1`, address, string(status)))
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return c, err
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return scanConversation(s.db.QueryRow(ctx, conversationSelect+` WHERE c.id = $1`, id))
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var st string
	if err := row.Scan(&c.ID, &c.PatientID, &c.Address, &st, &c.LastActivity, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	c.Status = Status(st)
	return &c, nil
}

func (s *PostgresStore) Create(ctx context.Context, c *Conversation) error {
	if c == nil {
		return errors.New("conversation: conversation cannot be nil")
	}
	now := time.Now().UTC()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Status == "" {
		c.Status = StatusActive
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.LastActivity.IsZero() {
		c.LastActivity = c.CreatedAt
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, patient_id, status, last_activity, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PatientID, string(c.Status), c.LastActivity, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversation: insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.update(ctx, `UPDATE conversations SET last_activity = $2 WHERE id = $1`, id, at)
}

func (s *PostgresStore) ReassignPatient(ctx context.Context, conversationID, patientID uuid.UUID) error {
	return s.update(ctx, `UPDATE conversations SET patient_id = $2 WHERE id = $1`, conversationID, patientID)
}

func (s *PostgresStore) MarkEscalated(ctx context.Context, conversationID uuid.UUID) error {
	return s.update(ctx, `UPDATE conversations SET status = $2 WHERE id = $1`, conversationID, string(StatusEscalated))
}

func (s *PostgresStore) Reactivate(ctx context.Context, conversationID uuid.UUID) error {
	return s.update(ctx, `UPDATE conversations SET status = $2, last_activity = $3 WHERE id = $1`,
		conversationID, string(StatusActive), time.Now().UTC())
}

func (s *PostgresStore) update(ctx context.Context, sql string, id uuid.UUID, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("conversation: update %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return errors.New("conversation: message cannot be nil")
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, direction, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ConversationID, string(m.Direction), m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "conversation.recent_messages")
	defer span.End()

	if limit <= 0 {
		limit = MaxHistory
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, direction, role, content, created_at
		FROM (
			SELECT id, conversation_id, direction, role, content, created_at
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var dir string
		if err := rows.Scan(&m.ID, &m.ConversationID, &dir, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Direction = Direction(dir)
		out = append(out, m)
	}
	return out, rows.Err()
}
