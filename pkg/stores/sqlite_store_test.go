package stores

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/imports"
	"github.com/appforge/appforge/pkg/permissions"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func seedApplication(t *testing.T, store *SQLiteStore, id string, git *domain.GitArtifactMetadata) *domain.Application {
	t.Helper()

	app := &domain.Application{
		BaseDomain:             domain.BaseDomain{ID: id},
		Name:                   "orders",
		GitApplicationMetadata: git,
	}
	if err := store.SaveApplication(context.Background(), app); err != nil {
		t.Fatalf("failed to save application: %v", err)
	}
	return app
}

func collection(id, applicationID, defaultApplicationID, gitSyncID string) *domain.ActionCollection {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.ActionCollection{
		BaseDomain: domain.BaseDomain{
			ID:        id,
			GitSyncID: gitSyncID,
			CreatedAt: &now,
			UpdatedAt: &now,
			Policies:  []domain.Policy{{Permission: permissions.PermissionManageActions, PermissionGroups: []string{"developers"}}},
		},
		ApplicationID:    applicationID,
		DefaultResources: &domain.DefaultResources{ApplicationID: defaultApplicationID, CollectionID: id},
		UnpublishedCollection: &domain.ActionCollectionDTO{
			Name:             "utils",
			PageID:           "pg-1",
			Body:             "export default {}",
			Variables:        []domain.JSValue{{Name: "count", Value: "0"}},
			DefaultResources: &domain.DefaultResources{PageID: "pg-1"},
		},
	}
}

func collectIDs(t *testing.T, seq iter.Seq2[*domain.ActionCollection, error]) []string {
	t.Helper()

	var ids []string
	for c, err := range seq {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		ids = append(ids, c.ID)
	}
	return ids
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	tables := []string{"applications", "pages", "action_collections"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		t.Errorf("expected second migration to be a no-op, got %v", err)
	}
}

func TestApplicationCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	git := &domain.GitArtifactMetadata{DefaultArtifactID: "app-main", BranchName: "feature", RemoteURL: "git@example.com:acme/orders.git"}
	app := seedApplication(t, store, "app-feature", git)

	got, err := store.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("failed to get application: %v", err)
	}
	if got.Name != "orders" {
		t.Errorf("expected name orders, got %s", got.Name)
	}
	if got.GitMetadata() == nil || *got.GitMetadata() != *git {
		t.Errorf("expected git metadata %+v, got %+v", git, got.GitMetadata())
	}

	app.Name = "orders-v2"
	app.Pages = []domain.ApplicationPage{{ID: "pg-1", IsDefault: true}}
	if err := store.SaveApplication(ctx, app); err != nil {
		t.Fatalf("failed to update application: %v", err)
	}

	got, err = store.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("failed to get updated application: %v", err)
	}
	if got.Name != "orders-v2" || got.DefaultPageID() != "pg-1" {
		t.Errorf("unexpected application after update: %+v", got)
	}

	if _, err := store.GetApplication(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPageCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedApplication(t, store, "app-1", nil)

	pages := []*domain.NewPage{
		{BaseDomain: domain.BaseDomain{ID: "pg-1"}, ApplicationID: "app-1", UnpublishedPage: &domain.PageDTO{Name: "Home"}},
		{BaseDomain: domain.BaseDomain{ID: "pg-2"}, ApplicationID: "app-1", UnpublishedPage: &domain.PageDTO{Name: "Settings"},
			DefaultResources: &domain.DefaultResources{ApplicationID: "app-1", PageID: "pg-main-2"}},
		{BaseDomain: domain.BaseDomain{ID: "pg-3"}, ApplicationID: "app-1", UnpublishedPage: &domain.PageDTO{Name: "Old"}},
	}
	for _, p := range pages {
		if err := store.SavePage(ctx, p); err != nil {
			t.Fatalf("failed to save page %s: %v", p.ID, err)
		}
	}

	pages[2].MarkDeleted()
	if err := store.SavePage(ctx, pages[2]); err != nil {
		t.Fatalf("failed to delete page: %v", err)
	}

	var names []string
	for p, err := range store.FindPagesByApplicationID(ctx, "app-1") {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		names = append(names, p.ContextName())
	}
	if len(names) != 2 || names[0] != "Home" || names[1] != "Settings" {
		t.Errorf("expected [Home Settings], got %v", names)
	}

	got, err := store.GetPage(ctx, "pg-2")
	if err != nil {
		t.Fatalf("failed to get page: %v", err)
	}
	if got.DefaultContextID() != "pg-main-2" {
		t.Errorf("expected canonical id pg-main-2, got %s", got.DefaultContextID())
	}

	deleted, err := store.GetPage(ctx, "pg-3")
	if err != nil {
		t.Fatalf("failed to get deleted page: %v", err)
	}
	if !deleted.IsDeleted() {
		t.Error("expected deletedAt to round-trip")
	}
}

func TestActionCollectionCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedApplication(t, store, "app-1", nil)

	c := collection("col-1", "app-1", "app-1", "sync-1")
	if err := store.SaveActionCollection(ctx, c); err != nil {
		t.Fatalf("failed to save collection: %v", err)
	}

	got, err := store.GetActionCollection(ctx, "col-1")
	if err != nil {
		t.Fatalf("failed to get collection: %v", err)
	}
	if got.GitSyncID != "sync-1" || got.Name() != "utils" {
		t.Errorf("unexpected collection %+v", got)
	}
	if got.CreatedAt == nil || !got.CreatedAt.Equal(*c.CreatedAt) {
		t.Errorf("expected createdAt %v, got %v", c.CreatedAt, got.CreatedAt)
	}
	if got.DefaultResources == nil || *got.DefaultResources != *c.DefaultResources {
		t.Errorf("expected defaults %+v, got %+v", c.DefaultResources, got.DefaultResources)
	}
	if dto := got.UnpublishedCollection; len(dto.Variables) != 1 || dto.DefaultResources.PageID != "pg-1" {
		t.Errorf("unexpected DTO %+v", dto)
	}
	if got.PublishedCollection != nil {
		t.Errorf("expected no published state, got %+v", got.PublishedCollection)
	}
	if len(got.Policies) != 1 || !got.Policies[0].Allows([]string{"developers"}) {
		t.Errorf("unexpected policies %+v", got.Policies)
	}

	if err := store.DeleteActionCollection(ctx, "col-1"); err != nil {
		t.Fatalf("failed to delete collection: %v", err)
	}
	if ids := collectIDs(t, store.FindByApplicationID(ctx, "app-1")); len(ids) != 0 {
		t.Errorf("expected deleted collection to be skipped, got %v", ids)
	}
	if _, err := store.GetActionCollection(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByDefaultApplicationID(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedApplication(t, store, "app-main", &domain.GitArtifactMetadata{DefaultArtifactID: "app-main", BranchName: "main"})
	seedApplication(t, store, "app-feature", &domain.GitArtifactMetadata{DefaultArtifactID: "app-main", BranchName: "feature"})
	seedApplication(t, store, "app-other", nil)

	for _, c := range []*domain.ActionCollection{
		collection("col-main", "app-main", "app-main", "sync-1"),
		collection("col-feature", "app-feature", "app-main", "sync-1"),
		collection("col-other", "app-other", "app-other", "sync-1"),
	} {
		if err := store.SaveActionCollection(ctx, c); err != nil {
			t.Fatalf("failed to save %s: %v", c.ID, err)
		}
	}

	ids := collectIDs(t, store.FindByDefaultApplicationID(ctx, "app-main"))
	if len(ids) != 2 {
		t.Errorf("expected both branches, got %v", ids)
	}

	ids = collectIDs(t, store.FindByApplicationID(ctx, "app-feature"))
	if len(ids) != 1 || ids[0] != "col-feature" {
		t.Errorf("expected [col-feature], got %v", ids)
	}
}

func TestUniqueSyncIDPerBranch(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedApplication(t, store, "app-1", nil)

	if err := store.SaveActionCollection(ctx, collection("col-1", "app-1", "app-1", "sync-1")); err != nil {
		t.Fatalf("failed to save first collection: %v", err)
	}
	if err := store.SaveActionCollection(ctx, collection("col-2", "app-1", "app-1", "sync-1")); err == nil {
		t.Error("expected a second live collection with the same sync id to be rejected")
	}

	if err := store.DeleteActionCollection(ctx, "col-1"); err != nil {
		t.Fatalf("failed to delete collection: %v", err)
	}
	if err := store.SaveActionCollection(ctx, collection("col-2", "app-1", "app-1", "sync-1")); err != nil {
		t.Errorf("expected sync id to be reusable after delete, got %v", err)
	}
}

func TestStreamCancellation(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	seedApplication(t, store, "app-1", nil)
	for _, id := range []string{"col-1", "col-2", "col-3"} {
		if err := store.SaveActionCollection(context.Background(), collection(id, "app-1", "app-1", id)); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n := 0
	var streamErr error
	for _, err := range store.FindByApplicationID(ctx, "app-1") {
		if err != nil {
			streamErr = err
			break
		}
		n++
		cancel()
	}
	if !errors.Is(streamErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", streamErr)
	}
	if n != 1 {
		t.Errorf("expected one collection before cancellation, got %d", n)
	}

	// An abandoned stream must release its connection.
	for range store.FindByApplicationID(context.Background(), "app-1") {
		break
	}
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed after early break: %v", err)
	}
}

func TestSaveImportIsAtomic(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	seedApplication(t, store, "app-1", nil)

	err := store.SaveImport(ctx, ImportBatch{
		Pages: []*domain.NewPage{
			{BaseDomain: domain.BaseDomain{ID: "pg-1"}, ApplicationID: "app-1", UnpublishedPage: &domain.PageDTO{Name: "Home"}},
		},
		ActionCollections: []*domain.ActionCollection{
			collection("col-1", "app-missing", "app-missing", "sync-1"),
		},
	})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}

	if _, err := store.GetPage(ctx, "pg-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected page to be rolled back, got %v", err)
	}
}

func TestImportRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	app := seedApplication(t, store, "app-1", nil)
	home := &domain.NewPage{
		BaseDomain:      domain.BaseDomain{ID: "pg-1"},
		ApplicationID:   "app-1",
		UnpublishedPage: &domain.PageDTO{Name: "Home"},
	}
	if err := store.SavePage(ctx, home); err != nil {
		t.Fatalf("failed to save page: %v", err)
	}

	reconciler := imports.NewReconciler(imports.NewActionCollectionImportStrategy(store))
	meta := imports.NewImportingMeta("", permissions.AllowAll, "Home")
	mapped := &imports.MappedImportableResources{ContextMap: map[string]domain.Context{"Home": home}}
	incoming := []*domain.ActionCollection{{
		BaseDomain:            domain.BaseDomain{GitSyncID: "sync-1"},
		UnpublishedCollection: &domain.ActionCollectionDTO{Name: "utils", PageID: "Home", Body: "v1"},
	}}

	first, err := reconciler.Reconcile(ctx, meta, mapped, app, incoming)
	if err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	if err := store.SaveImport(ctx, ImportBatch{ActionCollections: first.Created()}); err != nil {
		t.Fatalf("failed to save first import: %v", err)
	}

	incoming[0].UnpublishedCollection.Body = "v2"
	second, err := reconciler.Reconcile(ctx, meta, mapped, app, incoming)
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if second.Count(imports.OutcomeUpdated) != 1 {
		t.Fatalf("expected re-import to update, got %+v", second.Resources)
	}
	if err := store.SaveImport(ctx, ImportBatch{ActionCollections: second.Updated()}); err != nil {
		t.Fatalf("failed to save second import: %v", err)
	}

	stored, err := store.GetActionCollection(ctx, first.Created()[0].ID)
	if err != nil {
		t.Fatalf("failed to get collection: %v", err)
	}
	if stored.UnpublishedCollection.Body != "v2" || stored.GitSyncID != "sync-1" {
		t.Errorf("unexpected stored collection %+v", stored.UnpublishedCollection)
	}
	if ids := collectIDs(t, store.FindByApplicationID(ctx, "app-1")); len(ids) != 1 {
		t.Errorf("expected one collection after re-import, got %v", ids)
	}
}
