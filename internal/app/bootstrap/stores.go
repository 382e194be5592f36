package bootstrap

import (
	"database/sql"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/clinic-booking-agent/internal/appointments"
	"github.com/wolfman30/clinic-booking-agent/internal/catalog"
	"github.com/wolfman30/clinic-booking-agent/internal/conversation"
	"github.com/wolfman30/clinic-booking-agent/internal/faq"
	"github.com/wolfman30/clinic-booking-agent/internal/patients"
	"github.com/wolfman30/clinic-booking-agent/internal/support"
)

// Stores groups the persistence layer.
type Stores struct {
	Patients      patients.Repository
	Catalog       catalog.Repository
	Appointments  appointments.Repository
	Conversations conversation.Store
	FAQ           faq.Repository
	Escalations   support.Store
}

// NewPostgresStores backs every store with Postgres. Escalations go through
// database/sql; the rest share the pgx pool.
func NewPostgresStores(pool *pgxpool.Pool, db *sql.DB) *Stores {
	if pool == nil || db == nil {
		panic("bootstrap: postgres pool and sql db are required")
	}
	return &Stores{
		Patients:      patients.NewPostgresRepository(pool),
		Catalog:       catalog.NewPostgresRepository(pool),
		Appointments:  appointments.NewPostgresRepository(pool),
		Conversations: conversation.NewPostgresStore(pool),
		FAQ:           faq.NewPostgresRepository(pool),
		Escalations:   support.NewSQLStore(db),
	}
}

// NewMemoryStores keeps everything in process. Used for local runs and
// tests; nothing survives a restart.
func NewMemoryStores() *Stores {
	return &Stores{
		Patients:      patients.NewInMemoryRepository(),
		Catalog:       catalog.NewInMemoryRepository(),
		Appointments:  appointments.NewInMemoryRepository(),
		Conversations: conversation.NewMemoryStore(),
		FAQ:           faq.NewInMemoryRepository(),
		Escalations:   support.NewMemoryStore(),
	}
}
