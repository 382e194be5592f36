package patients

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists patients.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindPrimaryByAddress(ctx context.Context, address string) (*Patient, error)
	FindByTaxID(ctx context.Context, taxID string) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
	UpdateDetails(ctx context.Context, id uuid.UUID, name, taxID *string) (*Patient, error)
	Search(ctx context.Context, query string, limit int) ([]Patient, error)
}

// FindOrCreatePrimary returns the oldest patient at address, creating an
// empty record when the address is new.
func FindOrCreatePrimary(ctx context.Context, repo Repository, address string) (*Patient, error) {
	address = strings.TrimSpace(address)
	p, err := repo.FindPrimaryByAddress(ctx, address)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	p = &Patient{Address: address}
	if err := repo.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func stamp(p *Patient, now time.Time) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
}
