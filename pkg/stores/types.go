package stores

import (
	"context"
	"database/sql"
	"errors"

	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/imports"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("not found")

// ImportBatch is everything one import writes. Entities with an id that
// already exists are updated, others are inserted.
type ImportBatch struct {
	Application       *domain.Application
	Pages             []*domain.NewPage
	ActionCollections []*domain.ActionCollection
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Application operations
	SaveApplication(ctx context.Context, app *domain.Application) error
	GetApplication(ctx context.Context, id string) (*domain.Application, error)

	// Page operations
	imports.PageRepository
	SavePage(ctx context.Context, page *domain.NewPage) error
	GetPage(ctx context.Context, id string) (*domain.NewPage, error)

	// Action collection operations
	imports.ActionCollectionRepository
	SaveActionCollection(ctx context.Context, collection *domain.ActionCollection) error
	GetActionCollection(ctx context.Context, id string) (*domain.ActionCollection, error)
	DeleteActionCollection(ctx context.Context, id string) error

	// SaveImport writes batch in one transaction.
	SaveImport(ctx context.Context, batch ImportBatch) error

	// Utility
	HealthCheck(ctx context.Context) error
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}
