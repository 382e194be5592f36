package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository reads the catalog from the relational database.
type PostgresRepository struct {
	db DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const providerColumns = `id, name, specialty, bio, calendar_ref, active`
const procedureColumns = `p.id, p.name, p.description, p.duration_minutes, p.price_cents, p.active`

func (r *PostgresRepository) ListActiveProviders(ctx context.Context) ([]Provider, error) {
	rows, err := r.db.Query(ctx, `SELECT `+providerColumns+` FROM providers WHERE active ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list providers: %w", err)
	}
	providers, err := collectProviders(rows)
	if err != nil {
		return nil, err
	}
	for i := range providers {
		if err := r.hydrate(ctx, &providers[i]); err != nil {
			return nil, err
		}
	}
	return providers, nil
}

func (r *PostgresRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	err := r.db.QueryRow(ctx, `SELECT `+providerColumns+` FROM providers WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Specialty, &p.Bio, &p.CalendarRef, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("catalog: get provider: %w", err)
	}
	if err := r.hydrate(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) ListActiveProcedures(ctx context.Context) ([]Procedure, error) {
	rows, err := r.db.Query(ctx, `SELECT `+procedureColumns+` FROM procedures p WHERE p.active ORDER BY p.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list procedures: %w", err)
	}
	return collectProcedures(rows)
}

func (r *PostgresRepository) ListProviderProcedures(ctx context.Context, providerID uuid.UUID) ([]Procedure, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+procedureColumns+`
		FROM procedures p
		JOIN provider_procedures pp ON pp.procedure_id = p.id
		WHERE pp.provider_id = $1 AND p.active
		ORDER BY p.name ASC`, providerID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list provider procedures: %w", err)
	}
	return collectProcedures(rows)
}

func (r *PostgresRepository) GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error) {
	var p Procedure
	err := r.db.QueryRow(ctx, `SELECT `+procedureColumns+` FROM procedures p WHERE p.id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.DurationMinutes, &p.PriceCents, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProcedureNotFound
		}
		return nil, fmt.Errorf("catalog: get procedure: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) hydrate(ctx context.Context, p *Provider) error {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, start_time, end_time, active
		FROM working_hours
		WHERE provider_id = $1
		ORDER BY weekday ASC`, p.ID)
	if err != nil {
		return fmt.Errorf("catalog: working hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			wh      WorkingHours
			weekday int16
		)
		if err := rows.Scan(&weekday, &wh.Start, &wh.End, &wh.Active); err != nil {
			return fmt.Errorf("catalog: scan working hours: %w", err)
		}
		wh.Weekday = time.Weekday(weekday)
		p.WorkingHours = append(p.WorkingHours, wh)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("catalog: working hours rows: %w", err)
	}

	procs, err := r.ListProviderProcedures(ctx, p.ID)
	if err != nil {
		return err
	}
	p.Procedures = procs
	return nil
}

func collectProviders(rows pgx.Rows) ([]Provider, error) {
	defer rows.Close()
	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Specialty, &p.Bio, &p.CalendarRef, &p.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan provider: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: provider rows: %w", err)
	}
	return out, nil
}

func collectProcedures(rows pgx.Rows) ([]Procedure, error) {
	defer rows.Close()
	var out []Procedure
	for rows.Next() {
		var p Procedure
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.DurationMinutes, &p.PriceCents, &p.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan procedure: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: procedure rows: %w", err)
	}
	return out, nil
}
