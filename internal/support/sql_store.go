package support

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

var escalationTracer = otel.Tracer("clinic.internal.support")

// SQLStore keeps escalations in Postgres through database/sql.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		panic("support: sql db required")
	}
	return &SQLStore{db: db}
}

const escalationColumns = `id, conversation_id, reason, status, created_at, resolved_at`

func (s *SQLStore) Create(ctx context.Context, e *Escalation) error {
	ctx, span := escalationTracer.Start(ctx, "escalation.insert")
	defer span.End()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escalations (id, conversation_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ConversationID, e.Reason, string(e.Status), e.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("support: store escalation: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id uuid.UUID) (*Escalation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+escalationColumns+` FROM escalations WHERE id = $1`, id)
	e, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *SQLStore) List(ctx context.Context, statuses []Status, limit int) ([]Escalation, error) {
	if limit <= 0 {
		limit = 50
	}
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+escalationColumns+`
		FROM escalations
		WHERE status = ANY($1)
		ORDER BY created_at ASC
		LIMIT $2`, pq.Array(values), limit)
	if err != nil {
		return nil, fmt.Errorf("support: list escalations: %w", err)
	}
	defer rows.Close()

	var out []Escalation
	for rows.Next() {
		e, err := scanEscalation(rows)
		if err != nil {
			return nil, fmt.Errorf("support: scan escalation: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *SQLStore) Resolve(ctx context.Context, id uuid.UUID, at time.Time) (*Escalation, error) {
	ctx, span := escalationTracer.Start(ctx, "escalation.resolve")
	defer span.End()

	row := s.db.QueryRowContext(ctx, `
		UPDATE escalations
		SET status = $2, resolved_at = $3
		WHERE id = $1 AND status = $4
		RETURNING `+escalationColumns,
		id, string(StatusResolved), at, string(StatusPending),
	)
	e, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("support: resolve escalation: %w", err)
	}
	return e, nil
}

func (s *SQLStore) ResolveForConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE escalations
		SET status = $2, resolved_at = $3
		WHERE conversation_id = $1 AND status = $4`,
		conversationID, string(StatusResolved), at, string(StatusPending),
	)
	if err != nil {
		return 0, fmt.Errorf("support: resolve conversation escalations: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*Escalation, error) {
	var e Escalation
	var reason sql.NullString
	var status string
	var resolvedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.ConversationID, &reason, &status, &e.CreatedAt, &resolvedAt); err != nil {
		return nil, err
	}
	e.Status = Status(status)
	if reason.Valid {
		e.Reason = &reason.String
	}
	if resolvedAt.Valid {
		e.ResolvedAt = &resolvedAt.Time
	}
	return &e, nil
}
