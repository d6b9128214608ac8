package defaultresources

import (
	"testing"

	"github.com/appforge/appforge/pkg/domain"
)

func TestMergeActionCollectionIDs(t *testing.T) {
	tests := []struct {
		name    string
		given   *domain.DefaultResources
		current *domain.DefaultResources
		want    domain.DefaultResources
	}{
		{
			name:  "computed ids fill gaps",
			given: nil,
			want: domain.DefaultResources{
				ApplicationID: "app-1",
				CollectionID:  "c-1",
				BranchName:    "main",
			},
		},
		{
			name:  "manifest ids win over computed ids",
			given: &domain.DefaultResources{ApplicationID: "app-origin", CollectionID: "c-origin", BranchName: "old"},
			current: &domain.DefaultResources{
				ApplicationID: "app-1",
				CollectionID:  "c-1",
			},
			want: domain.DefaultResources{
				ApplicationID: "app-origin",
				CollectionID:  "c-origin",
				BranchName:    "main",
			},
		},
		{
			name:    "partial manifest ids keep computed remainder",
			given:   &domain.DefaultResources{CollectionID: "c-origin"},
			current: &domain.DefaultResources{ApplicationID: "app-canonical", CollectionID: "c-1"},
			want: domain.DefaultResources{
				ApplicationID: "app-canonical",
				CollectionID:  "c-origin",
				BranchName:    "main",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &domain.ActionCollection{
				BaseDomain:       domain.BaseDomain{ID: "c-1"},
				ApplicationID:    "app-1",
				DefaultResources: tt.current,
				UnpublishedCollection: &domain.ActionCollectionDTO{
					Name:   "utils",
					PageID: "pg-1",
				},
			}

			MergeActionCollectionIDs(c, tt.given, "main")

			if *c.DefaultResources != tt.want {
				t.Errorf("unexpected default resources:\n got: %+v\nwant: %+v", *c.DefaultResources, tt.want)
			}
			dto := c.UnpublishedCollection.DefaultResources
			if dto == nil || dto.PageID != "pg-1" {
				t.Errorf("expected DTO page id gap filled with pg-1, got %+v", dto)
			}
		})
	}
}

func TestMergeKeepsDTOPageID(t *testing.T) {
	c := &domain.ActionCollection{
		BaseDomain: domain.BaseDomain{ID: "c-1"},
		UnpublishedCollection: &domain.ActionCollectionDTO{
			PageID:           "pg-1",
			DefaultResources: &domain.DefaultResources{PageID: "pg-canonical"},
		},
		PublishedCollection: &domain.ActionCollectionDTO{PageID: "pg-1"},
	}

	MergeActionCollectionIDs(c, nil, "")

	if got := c.UnpublishedCollection.DefaultResources.PageID; got != "pg-canonical" {
		t.Errorf("expected canonical page id to be kept, got %s", got)
	}
	if got := c.PublishedCollection.DefaultResources.PageID; got != "pg-1" {
		t.Errorf("expected published page id gap filled, got %s", got)
	}
}
