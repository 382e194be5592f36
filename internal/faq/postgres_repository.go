package faq

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository searches the faqs table.
type PostgresRepository struct {
	db DB
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("faq: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

// Search returns active entries whose question or answer contains any keyword.
func (r *PostgresRepository) Search(ctx context.Context, keywords []string, category string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	patterns := make([]string, 0, len(keywords))
	for _, k := range keywords {
		patterns = append(patterns, "%"+k+"%")
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	var categoryArg *string
	if c := strings.TrimSpace(category); c != "" {
		categoryArg = &c
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, question, answer, category, sort_order
		FROM faqs
		WHERE active
		  AND ($2::text IS NULL OR lower(category) = lower($2))
		  AND (question ILIKE ANY($1) OR answer ILIKE ANY($1))
		ORDER BY sort_order ASC
		LIMIT $3`, patterns, categoryArg, limit)
	if err != nil {
		return nil, fmt.Errorf("faq: search: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Active: true}
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &e.Category, &e.Order); err != nil {
			return nil, fmt.Errorf("faq: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("faq: rows: %w", err)
	}
	return out, nil
}
