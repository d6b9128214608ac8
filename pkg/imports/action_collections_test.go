package imports

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/permissions"
)

func TestUpdateContextInResource(t *testing.T) {
	strategy := NewActionCollectionImportStrategy(&memoryRepository{})
	contextMap := map[string]domain.Context{
		"oldPageName": newPage("pg-123", "oldPageName", "default-pg-7"),
		"Home":        newPage("pg-1", "Home", ""),
		"Checkout":    &domain.Module{BaseDomain: domain.BaseDomain{ID: "mod-1"}, Name: "Checkout"},
	}

	tests := []struct {
		name        string
		pageRef     string
		fallback    string
		wantParent  string
		wantPageID  string
		wantDefault string
		wantErr     error
	}{
		{
			name:        "resolves name to storage and canonical ids",
			pageRef:     "oldPageName",
			wantParent:  "pg-123",
			wantPageID:  "pg-123",
			wantDefault: "default-pg-7",
		},
		{
			name:        "page without defaults is its own origin",
			pageRef:     "Home",
			wantParent:  "pg-1",
			wantPageID:  "pg-1",
			wantDefault: "pg-1",
		},
		{
			name:        "empty reference uses fallback",
			fallback:    "Home",
			wantParent:  "pg-1",
			wantPageID:  "pg-1",
			wantDefault: "pg-1",
		},
		{
			name:       "unknown reference is left untouched",
			pageRef:    "Missing",
			fallback:   "Home",
			wantPageID: "Missing",
		},
		{
			name:       "module reference is malformed",
			pageRef:    "Checkout",
			wantPageID: "Checkout",
			wantErr:    ErrMalformedReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dto := &domain.ActionCollectionDTO{Name: "utils", PageID: tt.pageRef}

			parent, err := strategy.UpdateContextInResource(dto, contextMap, tt.fallback)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.wantParent == "" {
				if parent != nil {
					t.Errorf("expected no parent, got %s", parent.ContextID())
				}
				if dto.DefaultResources != nil {
					t.Errorf("expected defaults untouched, got %+v", dto.DefaultResources)
				}
			} else if parent == nil || parent.ContextID() != tt.wantParent {
				t.Errorf("expected parent %s, got %v", tt.wantParent, parent)
			}

			if dto.PageID != tt.wantPageID {
				t.Errorf("expected pageId %s, got %s", tt.wantPageID, dto.PageID)
			}
			if tt.wantDefault != "" && (dto.DefaultResources == nil || dto.DefaultResources.PageID != tt.wantDefault) {
				t.Errorf("expected default pageId %s, got %+v", tt.wantDefault, dto.DefaultResources)
			}
		})
	}
}

func TestPopulateDefaultResources(t *testing.T) {
	strategy := NewActionCollectionImportStrategy(&memoryRepository{})
	git := &domain.GitArtifactMetadata{DefaultArtifactID: "app-main", BranchName: "feature"}

	sibling := &domain.ActionCollection{
		BaseDomain:       domain.BaseDomain{ID: "col-main", GitSyncID: "sync-1"},
		ApplicationID:    "app-main",
		DefaultResources: &domain.DefaultResources{ApplicationID: "app-main", CollectionID: "col-main", BranchName: "main"},
		UnpublishedCollection: &domain.ActionCollectionDTO{
			Name:             "utils",
			PageID:           "pg-main",
			DefaultResources: &domain.DefaultResources{PageID: "default-pg-7", BranchName: "main"},
		},
	}

	tests := []struct {
		name     string
		artifact domain.Artifact
		sibling  *domain.ActionCollection
		want     domain.DefaultResources
	}{
		{
			name:     "no git metadata",
			artifact: application("app-1", nil),
			want:     domain.DefaultResources{ApplicationID: "app-1", CollectionID: "col-new"},
		},
		{
			name:     "sibling on another branch",
			artifact: application("app-feature", git),
			sibling:  sibling,
			want:     domain.DefaultResources{ApplicationID: "app-main", CollectionID: "col-main", BranchName: "feature"},
		},
		{
			name:     "first on its branch",
			artifact: application("app-feature", git),
			want:     domain.DefaultResources{ApplicationID: "app-main", CollectionID: "col-new", BranchName: "feature"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := &ImportingMeta{BranchName: "feature"}
			if tt.artifact.GitMetadata() == nil {
				meta.BranchName = ""
			}
			c := incomingCollection("utils", "pg-feature", "sync-1")
			c.ID = "col-new"

			if err := strategy.PopulateDefaultResources(meta, &MappedImportableResources{}, tt.artifact, tt.sibling, c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.ApplicationID != tt.artifact.ArtifactID() {
				t.Errorf("expected applicationId %s, got %s", tt.artifact.ArtifactID(), c.ApplicationID)
			}
			if !reflect.DeepEqual(*c.DefaultResources, tt.want) {
				t.Errorf("unexpected defaults:\n got: %+v\nwant: %+v", *c.DefaultResources, tt.want)
			}
		})
	}

	if sibling.DefaultResources.BranchName != "main" || sibling.UnpublishedCollection.DefaultResources.BranchName != "main" {
		t.Error("sibling defaults were modified")
	}
}

func TestPopulateDefaultResourcesSiblingWithoutIdentity(t *testing.T) {
	strategy := NewActionCollectionImportStrategy(&memoryRepository{})
	artifact := application("app-feature", &domain.GitArtifactMetadata{DefaultArtifactID: "app-main", BranchName: "feature"})
	sibling := &domain.ActionCollection{BaseDomain: domain.BaseDomain{ID: "col-main", GitSyncID: "sync-1"}}

	err := strategy.PopulateDefaultResources(&ImportingMeta{BranchName: "feature"}, &MappedImportableResources{}, artifact, sibling, incomingCollection("utils", "pg-1", "sync-1"))
	if err == nil {
		t.Fatal("expected error for sibling without default resources")
	}
}

func TestCreateNewResource(t *testing.T) {
	strategy := NewActionCollectionImportStrategy(&memoryRepository{})
	ctx := context.Background()

	t.Run("denied leaves the collection untouched", func(t *testing.T) {
		meta := &ImportingMeta{PermissionProvider: permissions.DenyAll}
		c := incomingCollection("utils", "pg-1", "")
		before := c.Clone()

		err := strategy.CreateNewResource(ctx, meta, c, newPage("pg-1", "Home", ""))
		if !errors.Is(err, ErrAccessDenied) {
			t.Fatalf("expected access denied, got %v", err)
		}
		var ie *ImportError
		if !errors.As(err, &ie) || ie.ResourceKind != "page" || ie.ResourceID != "pg-1" {
			t.Errorf("expected denial naming page pg-1, got %v", err)
		}
		if !reflect.DeepEqual(c, before) {
			t.Errorf("collection modified on denial: %+v", c)
		}
	})

	t.Run("module parent is malformed", func(t *testing.T) {
		meta := &ImportingMeta{PermissionProvider: permissions.AllowAll}
		module := &domain.Module{BaseDomain: domain.BaseDomain{ID: "mod-1"}, Name: "Checkout"}

		err := strategy.CreateNewResource(ctx, meta, incomingCollection("utils", "mod-1", ""), module)
		if !errors.Is(err, ErrMalformedReference) {
			t.Fatalf("expected malformed reference, got %v", err)
		}
	})

	t.Run("assigns identity and inherits policies", func(t *testing.T) {
		provider := permissions.NewPolicySetProvider(permissions.Principal{UserID: "u-1", Groups: []string{"developers"}})
		meta := &ImportingMeta{BranchName: "main", PermissionProvider: provider}
		c := incomingCollection("utils", "pg-1", "")
		c.ApplicationID = "app-1"

		if err := strategy.CreateNewResource(ctx, meta, c, newPage("pg-1", "Home", "", "developers")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.ID == "" || c.CreatedAt == nil || c.UpdatedAt == nil {
			t.Errorf("expected id and timestamps, got %+v", c.BaseDomain)
		}
		if c.GitSyncID == "" {
			t.Error("expected a generated gitSyncId")
		}
		if c.DefaultResources.CollectionID != c.ID || c.DefaultResources.ApplicationID != "app-1" {
			t.Errorf("unexpected defaults %+v", c.DefaultResources)
		}
		if c.UnpublishedCollection.DefaultResources.PageID != "pg-1" {
			t.Errorf("expected DTO default pageId pg-1, got %+v", c.UnpublishedCollection.DefaultResources)
		}
		if !provider.HasEditPermission(ctx, c) {
			t.Error("expected the creator's groups to be able to edit the collection")
		}
	})

	t.Run("keeps a given gitSyncId", func(t *testing.T) {
		meta := &ImportingMeta{PermissionProvider: permissions.AllowAll}
		c := incomingCollection("utils", "pg-1", "sync-1")

		if err := strategy.CreateNewResource(ctx, meta, c, newPage("pg-1", "Home", "")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.GitSyncID != "sync-1" {
			t.Errorf("expected sync-1, got %s", c.GitSyncID)
		}
	})
}

func TestExistingResourcesInOtherBranches(t *testing.T) {
	repo := &memoryRepository{collections: []*domain.ActionCollection{
		{BaseDomain: domain.BaseDomain{ID: "c-main"}, ApplicationID: "app-main", DefaultResources: &domain.DefaultResources{ApplicationID: "app-main"}},
		{BaseDomain: domain.BaseDomain{ID: "c-feature"}, ApplicationID: "app-feature", DefaultResources: &domain.DefaultResources{ApplicationID: "app-main"}},
		{BaseDomain: domain.BaseDomain{ID: "c-other"}, ApplicationID: "app-other", DefaultResources: &domain.DefaultResources{ApplicationID: "app-other"}},
	}}
	strategy := NewActionCollectionImportStrategy(repo)

	var ids []string
	for c, err := range strategy.GetExistingResourcesInOtherBranches(context.Background(), "app-main", "app-feature") {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, c.ID)
	}
	if !reflect.DeepEqual(ids, []string{"c-main"}) {
		t.Errorf("expected [c-main], got %v", ids)
	}
}

func TestImportedContextNames(t *testing.T) {
	strategy := NewActionCollectionImportStrategy(&memoryRepository{})
	home := newPage("pg-1", "Home", "")
	mapped := &MappedImportableResources{ContextMap: map[string]domain.Context{
		"Home":     home,
		"pg-1":     home,
		"Settings": newPage("pg-2", "Settings", ""),
		"Checkout": &domain.Module{BaseDomain: domain.BaseDomain{ID: "mod-1"}, Name: "Checkout"},
	}}

	got := strategy.GetImportedContextNames(mapped)
	if !reflect.DeepEqual(got, []string{"Home", "Settings"}) {
		t.Errorf("expected [Home Settings], got %v", got)
	}
}

func TestRenameContextInImportableResources(t *testing.T) {
	strategy := NewActionCollectionImportStrategy(&memoryRepository{})
	a := incomingCollection("a", "Home", "")
	b := incomingCollection("b", "Settings", "")
	c := &domain.ActionCollection{}

	strategy.RenameContextInImportableResources([]*domain.ActionCollection{a, b, c}, "Home", "Home1")

	if a.UnpublishedCollection.PageID != "Home1" {
		t.Errorf("expected Home1, got %s", a.UnpublishedCollection.PageID)
	}
	if b.UnpublishedCollection.PageID != "Settings" {
		t.Errorf("expected Settings untouched, got %s", b.UnpublishedCollection.PageID)
	}
}
