package imports

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/permissions"
)

func manifestPage(name, gitSyncID string) *domain.NewPage {
	return &domain.NewPage{
		BaseDomain:      domain.BaseDomain{GitSyncID: gitSyncID},
		UnpublishedPage: &domain.PageDTO{Name: name},
	}
}

func TestPageImportCreates(t *testing.T) {
	importer := NewPageImporter(&memoryPageRepository{}, zerolog.Nop())
	app := application("app-1", nil)
	app.Policies = []domain.Policy{{Permission: permissions.PermissionManagePages, PermissionGroups: []string{"developers"}}}

	home := manifestPage("Home", "sync-a")
	home.ID = "manifest-pg-1"
	before := home.Clone()

	result, err := importer.Import(context.Background(), &ImportingMeta{PermissionProvider: permissions.AllowAll}, app, []*domain.NewPage{home})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(result.Created) != 1 || len(result.Updated) != 0 {
		t.Fatalf("expected one created page, got %d created %d updated", len(result.Created), len(result.Updated))
	}

	page := result.Created[0]
	if page.ID == "" || page.ID == "manifest-pg-1" || page.ApplicationID != "app-1" {
		t.Errorf("unexpected identity id=%s app=%s", page.ID, page.ApplicationID)
	}
	want := domain.DefaultResources{ApplicationID: "app-1", PageID: page.ID}
	if !reflect.DeepEqual(*page.DefaultResources, want) {
		t.Errorf("unexpected defaults:\n got: %+v\nwant: %+v", *page.DefaultResources, want)
	}
	if page.GitSyncID != "sync-a" {
		t.Errorf("expected sync-a, got %s", page.GitSyncID)
	}
	if len(page.Policies) != 1 || page.Policies[0].Permission != permissions.PermissionManagePages {
		t.Errorf("expected policies inherited from the application, got %+v", page.Policies)
	}
	for _, ref := range []string{"Home", "manifest-pg-1"} {
		if got := result.Mapped.ContextMap[ref]; got != domain.Context(page) {
			t.Errorf("expected %s to resolve to the created page, got %v", ref, got)
		}
	}
	if !reflect.DeepEqual(home, before) {
		t.Error("input page was modified")
	}
}

func TestPageImportUpdatesMatched(t *testing.T) {
	repo := &memoryPageRepository{pages: []*domain.NewPage{{
		BaseDomain:       domain.BaseDomain{ID: "pg-1", GitSyncID: "sync-a"},
		ApplicationID:    "app-1",
		DefaultResources: &domain.DefaultResources{ApplicationID: "app-1", PageID: "pg-1"},
		UnpublishedPage:  &domain.PageDTO{Name: "Home"},
	}}}
	importer := NewPageImporter(repo, zerolog.Nop())

	incoming := manifestPage("Home", "sync-a")
	incoming.UnpublishedPage.Slug = "home"

	result, err := importer.Import(context.Background(), &ImportingMeta{PermissionProvider: permissions.DenyAll}, application("app-1", nil), []*domain.NewPage{incoming})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(result.Updated) != 1 || len(result.Created) != 0 || len(result.Denied) != 0 {
		t.Fatalf("expected one update, got %+v", result)
	}
	page := result.Updated[0]
	if page.ID != "pg-1" || page.UnpublishedPage.Slug != "home" {
		t.Errorf("unexpected updated page %+v", page)
	}
	if len(result.Mapped.ContextRenames) != 0 {
		t.Errorf("expected no renames, got %+v", result.Mapped.ContextRenames)
	}
	if result.Mapped.ContextMap["Home"].ContextID() != "pg-1" {
		t.Error("expected Home to resolve to pg-1")
	}
}

func TestPageImportRenamesCollisions(t *testing.T) {
	repo := &memoryPageRepository{pages: []*domain.NewPage{{
		BaseDomain:      domain.BaseDomain{ID: "pg-1", GitSyncID: "sync-x"},
		ApplicationID:   "app-1",
		UnpublishedPage: &domain.PageDTO{Name: "Home"},
	}}}
	app := application("app-1", nil)
	meta := &ImportingMeta{PermissionProvider: permissions.AllowAll}

	pages, err := NewPageImporter(repo, zerolog.Nop()).Import(context.Background(), meta, app, []*domain.NewPage{
		manifestPage("Home", "sync-a"),
		manifestPage("Home1", "sync-b"),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	wantRenames := []ContextRename{
		{OldName: "Home", NewName: "Home1"},
		{OldName: "Home1", NewName: "Home11"},
	}
	if !reflect.DeepEqual(pages.Mapped.ContextRenames, wantRenames) {
		t.Fatalf("unexpected renames:\n got: %+v\nwant: %+v", pages.Mapped.ContextRenames, wantRenames)
	}

	reconciler := NewReconciler(NewActionCollectionImportStrategy(&memoryRepository{}))
	result, err := reconciler.Reconcile(context.Background(), meta, pages.Mapped, app, []*domain.ActionCollection{
		incomingCollection("a", "Home", ""),
		incomingCollection("b", "Home1", ""),
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	for i, wantSync := range []string{"sync-a", "sync-b"} {
		c := result.Resources[i].Resource
		if c == nil {
			t.Fatalf("resource %d: expected created, got %s", i, result.Resources[i].Outcome)
		}
		parent := pages.Created[i]
		if parent.GitSyncID != wantSync || c.UnpublishedCollection.PageID != parent.ID {
			t.Errorf("resource %d: expected parent %s (%s), got page %s", i, parent.ContextName(), wantSync, c.UnpublishedCollection.PageID)
		}
	}
}

func TestPageImportSharesIdentityAcrossBranches(t *testing.T) {
	repo := &memoryPageRepository{pages: []*domain.NewPage{{
		BaseDomain:       domain.BaseDomain{ID: "pg-main", GitSyncID: "sync-a"},
		ApplicationID:    "app-main",
		DefaultResources: &domain.DefaultResources{ApplicationID: "app-main", PageID: "pg-main", BranchName: "main"},
		UnpublishedPage:  &domain.PageDTO{Name: "Home"},
	}}}
	app := application("app-feature", &domain.GitArtifactMetadata{DefaultArtifactID: "app-main", BranchName: "feature"})
	meta := &ImportingMeta{BranchName: "feature", PermissionProvider: permissions.AllowAll}

	result, err := NewPageImporter(repo, zerolog.Nop()).Import(context.Background(), meta, app, []*domain.NewPage{
		manifestPage("Home", "sync-a"),
		manifestPage("Settings", "sync-b"),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("expected two created pages, got %d", len(result.Created))
	}

	home, settings := result.Created[0], result.Created[1]
	if want := (domain.DefaultResources{ApplicationID: "app-main", PageID: "pg-main", BranchName: "feature"}); *home.DefaultResources != want {
		t.Errorf("unexpected home defaults %+v", *home.DefaultResources)
	}
	if want := (domain.DefaultResources{ApplicationID: "app-main", PageID: settings.ID, BranchName: "feature"}); *settings.DefaultResources != want {
		t.Errorf("unexpected settings defaults %+v", *settings.DefaultResources)
	}
	if home.DefaultContextID() != "pg-main" {
		t.Errorf("expected canonical page id pg-main, got %s", home.DefaultContextID())
	}
}

func TestPageImportDenied(t *testing.T) {
	provider := permissions.NewPolicySetProvider(permissions.Principal{UserID: "u-1", Groups: []string{"viewers"}})
	meta := &ImportingMeta{PermissionProvider: provider}

	result, err := NewPageImporter(&memoryPageRepository{}, zerolog.Nop()).Import(context.Background(), meta, application("app-1", nil), []*domain.NewPage{
		manifestPage("Home", "sync-a"),
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(result.Created) != 0 || len(result.Denied) != 1 {
		t.Fatalf("expected one denial, got %+v", result)
	}
	if !errors.Is(result.Denied[0], ErrAccessDenied) {
		t.Errorf("expected access denied, got %v", result.Denied[0])
	}
	if _, ok := result.Mapped.ContextMap["Home"]; ok {
		t.Error("denied page must not be resolvable")
	}
}
