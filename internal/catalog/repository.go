package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads providers and procedures. Writes belong to the admin
// surface and are not part of this interface.
type Repository interface {
	ListActiveProviders(ctx context.Context) ([]Provider, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error)
	ListActiveProcedures(ctx context.Context) ([]Procedure, error)
	ListProviderProcedures(ctx context.Context, providerID uuid.UUID) ([]Procedure, error)
	GetProcedure(ctx context.Context, id uuid.UUID) (*Procedure, error)
}
