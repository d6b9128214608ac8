package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/domain"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	cfg    Config
	logger zerolog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *zerolog.Logger
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: opens a separate database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &SQLiteStore{
		cfg:    cfg,
		logger: logger.With().Str("component", "sqlite-store").Logger(),
	}, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	s.logger.Debug().Str("path", s.cfg.Path).Msg("Database opened")
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	s.logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("Database migrated")
	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveApplication inserts app or replaces the stored row with the same id.
func (s *SQLiteStore) SaveApplication(ctx context.Context, app *domain.Application) error {
	return saveApplication(ctx, s.db, app)
}

func saveApplication(ctx context.Context, q querier, app *domain.Application) error {
	if app.ID == "" {
		return fmt.Errorf("failed to save application: id is required")
	}

	pages, err := encodeJSON(app.Pages)
	if err != nil {
		return err
	}
	git, err := encodeNullableJSON(app.GitApplicationMetadata)
	if err != nil {
		return err
	}
	policies, err := encodeJSON(app.Policies)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO applications (id, name, workspace_id, git_sync_id, pages, git_metadata, policies,
			created_by, modified_by, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			workspace_id = excluded.workspace_id,
			git_sync_id = excluded.git_sync_id,
			pages = excluded.pages,
			git_metadata = excluded.git_metadata,
			policies = excluded.policies,
			modified_by = excluded.modified_by,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`

	_, err = q.ExecContext(ctx, query,
		app.ID,
		app.Name,
		app.WorkspaceID,
		app.GitSyncID,
		pages,
		git,
		policies,
		app.CreatedBy,
		app.ModifiedBy,
		app.CreatedAt,
		app.UpdatedAt,
		app.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application by ID
func (s *SQLiteStore) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	query := `
		SELECT id, name, workspace_id, git_sync_id, pages, git_metadata, policies,
			created_by, modified_by, created_at, updated_at, deleted_at
		FROM applications
		WHERE id = ?
	`

	app := &domain.Application{}
	var pages, git, policies sql.NullString
	var created, updated, deleted sql.NullTime
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&app.ID,
		&app.Name,
		&app.WorkspaceID,
		&app.GitSyncID,
		&pages,
		&git,
		&policies,
		&app.CreatedBy,
		&app.ModifiedBy,
		&created,
		&updated,
		&deleted,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}

	app.CreatedAt, app.UpdatedAt, app.DeletedAt = timePtr(created), timePtr(updated), timePtr(deleted)
	if err := decodeJSON(pages, &app.Pages); err != nil {
		return nil, err
	}
	if err := decodeJSON(git, &app.GitApplicationMetadata); err != nil {
		return nil, err
	}
	if err := decodeJSON(policies, &app.Policies); err != nil {
		return nil, err
	}
	return app, nil
}

const pageColumns = `id, application_id, git_sync_id, default_resources, unpublished, published, policies,
	created_by, modified_by, created_at, updated_at, deleted_at`

// SavePage inserts page or replaces the stored row with the same id.
func (s *SQLiteStore) SavePage(ctx context.Context, page *domain.NewPage) error {
	return savePage(ctx, s.db, page)
}

func savePage(ctx context.Context, q querier, page *domain.NewPage) error {
	if page.ID == "" {
		return fmt.Errorf("failed to save page: id is required")
	}

	defaults, err := encodeNullableJSON(page.DefaultResources)
	if err != nil {
		return err
	}
	unpublished, err := encodeNullableJSON(page.UnpublishedPage)
	if err != nil {
		return err
	}
	published, err := encodeNullableJSON(page.PublishedPage)
	if err != nil {
		return err
	}
	policies, err := encodeJSON(page.Policies)
	if err != nil {
		return err
	}

	var defaultApplicationID string
	if page.DefaultResources != nil {
		defaultApplicationID = page.DefaultResources.ApplicationID
	}

	query := `
		INSERT INTO pages (` + pageColumns + `, default_application_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			default_application_id = excluded.default_application_id,
			application_id = excluded.application_id,
			git_sync_id = excluded.git_sync_id,
			default_resources = excluded.default_resources,
			unpublished = excluded.unpublished,
			published = excluded.published,
			policies = excluded.policies,
			modified_by = excluded.modified_by,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at
	`

	_, err = q.ExecContext(ctx, query,
		page.ID,
		page.ApplicationID,
		page.GitSyncID,
		defaults,
		unpublished,
		published,
		policies,
		page.CreatedBy,
		page.ModifiedBy,
		page.CreatedAt,
		page.UpdatedAt,
		page.DeletedAt,
		defaultApplicationID,
	)
	if err != nil {
		return fmt.Errorf("failed to save page: %w", err)
	}
	return nil
}

// GetPage retrieves a page by ID, including soft-deleted pages.
func (s *SQLiteStore) GetPage(ctx context.Context, id string) (*domain.NewPage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, id)

	page, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return page, nil
}

// FindPagesByApplicationID streams the live pages of an application.
func (s *SQLiteStore) FindPagesByApplicationID(ctx context.Context, applicationID string) iter.Seq2[*domain.NewPage, error] {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE application_id = ? AND deleted_at IS NULL ORDER BY created_at, id`
	return stream(ctx, s.db, scanPage, query, applicationID)
}

// FindPagesByDefaultApplicationID streams the live pages of every branch
// of a git-connected application.
func (s *SQLiteStore) FindPagesByDefaultApplicationID(ctx context.Context, defaultApplicationID string) iter.Seq2[*domain.NewPage, error] {
	query := `SELECT ` + pageColumns + ` FROM pages WHERE default_application_id = ? AND deleted_at IS NULL ORDER BY created_at, id`
	return stream(ctx, s.db, scanPage, query, defaultApplicationID)
}

func scanPage(row scanner) (*domain.NewPage, error) {
	page := &domain.NewPage{}
	var defaults, unpublished, published, policies sql.NullString
	var created, updated, deleted sql.NullTime

	err := row.Scan(
		&page.ID,
		&page.ApplicationID,
		&page.GitSyncID,
		&defaults,
		&unpublished,
		&published,
		&policies,
		&page.CreatedBy,
		&page.ModifiedBy,
		&created,
		&updated,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	page.CreatedAt, page.UpdatedAt, page.DeletedAt = timePtr(created), timePtr(updated), timePtr(deleted)
	for _, col := range []struct {
		src sql.NullString
		dst any
	}{
		{defaults, &page.DefaultResources},
		{unpublished, &page.UnpublishedPage},
		{published, &page.PublishedPage},
		{policies, &page.Policies},
	} {
		if err := decodeJSON(col.src, col.dst); err != nil {
			return nil, err
		}
	}
	return page, nil
}

const actionCollectionColumns = `id, application_id, workspace_id, git_sync_id, default_resources,
	unpublished, published, policies, created_by, modified_by, created_at, updated_at, deleted_at`

// SaveActionCollection inserts collection or replaces the stored row with
// the same id.
func (s *SQLiteStore) SaveActionCollection(ctx context.Context, collection *domain.ActionCollection) error {
	return saveActionCollection(ctx, s.db, collection)
}

func saveActionCollection(ctx context.Context, q querier, c *domain.ActionCollection) error {
	if c.ID == "" {
		return fmt.Errorf("failed to save action collection: id is required")
	}

	defaults, err := encodeNullableJSON(c.DefaultResources)
	if err != nil {
		return err
	}
	unpublished, err := encodeNullableJSON(c.UnpublishedCollection)
	if err != nil {
		return err
	}
	published, err := encodeNullableJSON(c.PublishedCollection)
	if err != nil {
		return err
	}
	policies, err := encodeJSON(c.Policies)
	if err != nil {
		return err
	}

	var defaultApplicationID string
	if c.DefaultResources != nil {
		defaultApplicationID = c.DefaultResources.ApplicationID
	}

	query := `
		INSERT INTO action_collections (` + actionCollectionColumns + `, default_application_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			application_id = excluded.application_id,
			workspace_id = excluded.workspace_id,
			git_sync_id = excluded.git_sync_id,
			default_resources = excluded.default_resources,
			unpublished = excluded.unpublished,
			published = excluded.published,
			policies = excluded.policies,
			modified_by = excluded.modified_by,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			default_application_id = excluded.default_application_id
	`

	_, err = q.ExecContext(ctx, query,
		c.ID,
		c.ApplicationID,
		c.WorkspaceID,
		c.GitSyncID,
		defaults,
		unpublished,
		published,
		policies,
		c.CreatedBy,
		c.ModifiedBy,
		c.CreatedAt,
		c.UpdatedAt,
		c.DeletedAt,
		defaultApplicationID,
	)
	if err != nil {
		return fmt.Errorf("failed to save action collection %s: %w", c.ID, err)
	}
	return nil
}

// GetActionCollection retrieves an action collection by ID, including
// soft-deleted collections.
func (s *SQLiteStore) GetActionCollection(ctx context.Context, id string) (*domain.ActionCollection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+actionCollectionColumns+` FROM action_collections WHERE id = ?`, id)

	c, err := scanActionCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("action collection %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action collection: %w", err)
	}
	return c, nil
}

// DeleteActionCollection soft-deletes an action collection.
func (s *SQLiteStore) DeleteActionCollection(ctx context.Context, id string) error {
	c, err := s.GetActionCollection(ctx, id)
	if err != nil {
		return err
	}
	c.MarkDeleted()
	return s.SaveActionCollection(ctx, c)
}

// FindByApplicationID streams the live action collections of an
// application.
func (s *SQLiteStore) FindByApplicationID(ctx context.Context, applicationID string) iter.Seq2[*domain.ActionCollection, error] {
	query := `SELECT ` + actionCollectionColumns + ` FROM action_collections
		WHERE application_id = ? AND deleted_at IS NULL ORDER BY created_at, id`
	return stream(ctx, s.db, scanActionCollection, query, applicationID)
}

// FindByDefaultApplicationID streams the live action collections of every
// branch of a git-connected application.
func (s *SQLiteStore) FindByDefaultApplicationID(ctx context.Context, defaultApplicationID string) iter.Seq2[*domain.ActionCollection, error] {
	query := `SELECT ` + actionCollectionColumns + ` FROM action_collections
		WHERE default_application_id = ? AND deleted_at IS NULL ORDER BY created_at, id`
	return stream(ctx, s.db, scanActionCollection, query, defaultApplicationID)
}

func scanActionCollection(row scanner) (*domain.ActionCollection, error) {
	c := &domain.ActionCollection{}
	var defaults, unpublished, published, policies sql.NullString
	var created, updated, deleted sql.NullTime

	err := row.Scan(
		&c.ID,
		&c.ApplicationID,
		&c.WorkspaceID,
		&c.GitSyncID,
		&defaults,
		&unpublished,
		&published,
		&policies,
		&c.CreatedBy,
		&c.ModifiedBy,
		&created,
		&updated,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	c.CreatedAt, c.UpdatedAt, c.DeletedAt = timePtr(created), timePtr(updated), timePtr(deleted)
	for _, col := range []struct {
		src sql.NullString
		dst any
	}{
		{defaults, &c.DefaultResources},
		{unpublished, &c.UnpublishedCollection},
		{published, &c.PublishedCollection},
		{policies, &c.Policies},
	} {
		if err := decodeJSON(col.src, col.dst); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SaveImport writes batch in one transaction. Nothing is written if any
// entity fails.
func (s *SQLiteStore) SaveImport(ctx context.Context, batch ImportBatch) (err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = s.RollbackTx(tx)
		}
	}()

	if batch.Application != nil {
		if err = saveApplication(ctx, tx, batch.Application); err != nil {
			return err
		}
	}
	for _, page := range batch.Pages {
		if err = savePage(ctx, tx, page); err != nil {
			return err
		}
	}
	for _, c := range batch.ActionCollections {
		if err = saveActionCollection(ctx, tx, c); err != nil {
			return err
		}
	}

	if err = s.CommitTx(tx); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	s.logger.Debug().
		Int("pages", len(batch.Pages)).
		Int("action_collections", len(batch.ActionCollections)).
		Msg("Import saved")
	return nil
}

// HealthCheck verifies the database connection
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	return nil
}

// stream runs query and yields one scanned row at a time. Iteration stops
// at the first error or when ctx is done.
func stream[T any](ctx context.Context, q querier, scan func(scanner) (T, error), query string, args ...any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, fmt.Errorf("failed to query: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			if err := ctx.Err(); err != nil {
				yield(zero, err)
				return
			}
			v, err := scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("failed to scan row: %w", err))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("failed to iterate rows: %w", err))
		}
	}
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	if string(b) == "null" {
		return "[]", nil
	}
	return string(b), nil
}

// encodeNullableJSON returns nil for nil pointers so the column stays NULL.
func encodeNullableJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column: %w", err)
	}
	return string(b), nil
}

// decodeJSON leaves v untouched for NULL, null and empty array columns.
func decodeJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" || s.String == "null" || s.String == "[]" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
