package patients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("clinic.internal.patients")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores patients in the relational database.
type PostgresRepository struct {
	db DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	if db == nil {
		panic("patients: pgx pool required")
	}
	return &PostgresRepository{db: db}
}

const patientColumns = `id, address, name, tax_id, created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

// FindPrimaryByAddress returns the oldest patient registered at address.
func (r *PostgresRepository) FindPrimaryByAddress(ctx context.Context, address string) (*Patient, error) {
	ctx, span := tracer.Start(ctx, "patients.find_primary")
	defer span.End()

	row := r.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE address = $1
		ORDER BY created_at ASC
		LIMIT 1`, address)
	p, err := scanPatient(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		span.RecordError(err)
	}
	return p, err
}

func (r *PostgresRepository) FindByTaxID(ctx context.Context, taxID string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE tax_id = $1`, taxID)
	return scanPatient(row)
}

func (r *PostgresRepository) Create(ctx context.Context, p *Patient) error {
	if p == nil {
		return errors.New("patients: patient cannot be nil")
	}
	stamp(p, time.Now().UTC())
	_, err := r.db.Exec(ctx, `
		INSERT INTO patients (id, address, name, tax_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Address, p.Name, p.TaxID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTaxIDTaken
		}
		return fmt.Errorf("patients: insert failed: %w", err)
	}
	return nil
}

// UpdateDetails sets name and/or tax id; nil arguments keep the stored value.
func (r *PostgresRepository) UpdateDetails(ctx context.Context, id uuid.UUID, name, taxID *string) (*Patient, error) {
	ctx, span := tracer.Start(ctx, "patients.update_details")
	defer span.End()
	span.SetAttributes(attribute.String("patient.id", id.String()))

	row := r.db.QueryRow(ctx, `
		UPDATE patients
		SET name = COALESCE($2, name),
		    tax_id = COALESCE($3, tax_id),
		    updated_at = $4
		WHERE id = $1
		RETURNING `+patientColumns,
		id, name, taxID, time.Now().UTC(),
	)
	p, err := scanPatient(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrTaxIDTaken
		}
		span.RecordError(err)
		return nil, err
	}
	return p, nil
}

// Search matches names case-insensitively and addresses by substring.
func (r *PostgresRepository) Search(ctx context.Context, query string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 5
	}
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.db.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE name ILIKE $1 OR address LIKE $1
		ORDER BY created_at ASC
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("patients: search: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("patients: search rows: %w", err)
	}
	return out, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Address, &p.Name, &p.TaxID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("patients: scan: %w", err)
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
