package defaultresources

import (
	"errors"
	"testing"

	"github.com/appforge/appforge/pkg/domain"
)

func newCollection(id string, defaults *domain.DefaultResources) *domain.ActionCollection {
	return &domain.ActionCollection{
		BaseDomain:       domain.BaseDomain{ID: id},
		DefaultResources: defaults,
	}
}

func TestSetFromOtherBranch(t *testing.T) {
	svc := NewService[*domain.ActionCollection](ActionCollectionKind)

	tests := []struct {
		name   string
		target *domain.ActionCollection
		source *domain.ActionCollection
		want   domain.DefaultResources
	}{
		{
			name:   "sibling carries full identity",
			target: newCollection("c-feature", nil),
			source: newCollection("c-main", &domain.DefaultResources{
				ApplicationID: "app-main",
				CollectionID:  "c-main",
				BranchName:    "main",
			}),
			want: domain.DefaultResources{
				ApplicationID: "app-main",
				CollectionID:  "c-main",
				BranchName:    "feature",
			},
		},
		{
			name:   "own id established from target when sibling lacks it",
			target: newCollection("c-feature", nil),
			source: newCollection("c-main", &domain.DefaultResources{ApplicationID: "app-main"}),
			want: domain.DefaultResources{
				ApplicationID: "app-main",
				CollectionID:  "c-feature",
				BranchName:    "feature",
			},
		},
		{
			name: "ids outside the kind are preserved",
			target: newCollection("c-feature", &domain.DefaultResources{
				ApplicationID: "stale",
				PageID:        "page-canonical",
			}),
			source: newCollection("c-main", &domain.DefaultResources{
				ApplicationID: "app-main",
				CollectionID:  "c-main",
			}),
			want: domain.DefaultResources{
				ApplicationID: "app-main",
				PageID:        "page-canonical",
				CollectionID:  "c-main",
				BranchName:    "feature",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.SetFromOtherBranch(tt.target, tt.source, "feature"); err != nil {
				t.Fatalf("SetFromOtherBranch failed: %v", err)
			}

			got := tt.target.DefaultResources
			if got == nil {
				t.Fatal("expected default resources on target")
			}
			if *got != tt.want {
				t.Errorf("unexpected default resources:\n got: %+v\nwant: %+v", *got, tt.want)
			}
			if got == tt.source.DefaultResources {
				t.Error("target must not share default resources with source")
			}
		})
	}
}

func TestSetFromOtherBranchWithoutSourceIdentity(t *testing.T) {
	svc := NewService[*domain.ActionCollection](ActionCollectionKind)
	target := newCollection("c-feature", nil)

	err := svc.SetFromOtherBranch(target, newCollection("c-main", nil), "feature")
	if !errors.Is(err, ErrNoSourceIdentity) {
		t.Fatalf("expected ErrNoSourceIdentity, got %v", err)
	}
	if target.DefaultResources != nil {
		t.Error("target must be unchanged on failure")
	}
}

func TestSetFromOtherBranchDTO(t *testing.T) {
	svc := NewService[*domain.ActionCollectionDTO](ActionCollectionDTOKind)

	target := &domain.ActionCollectionDTO{
		Name:             "utils",
		PageID:           "pg-feature",
		DefaultResources: &domain.DefaultResources{PageID: "pg-resolved"},
	}
	source := &domain.ActionCollectionDTO{
		Name:             "utils",
		PageID:           "pg-main",
		DefaultResources: &domain.DefaultResources{PageID: "pg-canonical"},
	}

	if err := svc.SetFromOtherBranch(target, source, "feature"); err != nil {
		t.Fatalf("SetFromOtherBranch failed: %v", err)
	}

	if target.DefaultResources.PageID != "pg-canonical" {
		t.Errorf("expected shared canonical page id, got %s", target.DefaultResources.PageID)
	}
	if target.DefaultResources.CollectionID != "" {
		t.Errorf("DTO kind owns no id, got collectionId %s", target.DefaultResources.CollectionID)
	}
	if target.DefaultResources.BranchName != "feature" {
		t.Errorf("expected branch feature, got %s", target.DefaultResources.BranchName)
	}
}

func TestFieldAccessors(t *testing.T) {
	d := &domain.DefaultResources{}
	for _, f := range []Field{FieldApplication, FieldPage, FieldCollection, FieldAction} {
		f.Set(d, f.String())
	}
	for _, f := range []Field{FieldApplication, FieldPage, FieldCollection, FieldAction} {
		if got := f.Get(d); got != f.String() {
			t.Errorf("field %s: expected %s, got %s", f, f.String(), got)
		}
	}
	if FieldNone.Get(d) != "" {
		t.Error("FieldNone must read empty")
	}
	if FieldPage.Get(nil) != "" {
		t.Error("reading from nil default resources must be empty")
	}
}
