package imports

import (
	"context"
	"errors"
	"iter"
	"sort"

	"github.com/appforge/appforge/pkg/defaultresources"
	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/idgen"
	"github.com/appforge/appforge/pkg/permissions"
)

// ActionCollectionRepository streams stored action collections. Both
// lookups skip soft-deleted collections.
type ActionCollectionRepository interface {
	FindByApplicationID(ctx context.Context, applicationID string) iter.Seq2[*domain.ActionCollection, error]
	FindByDefaultApplicationID(ctx context.Context, defaultApplicationID string) iter.Seq2[*domain.ActionCollection, error]
}

// ActionCollectionImportStrategy imports the action collections of an
// application. Collections are parented by pages.
type ActionCollectionImportStrategy struct {
	repository ActionCollectionRepository
	collection *defaultresources.Service[*domain.ActionCollection]
	dto        *defaultresources.Service[*domain.ActionCollectionDTO]
}

var _ ArtifactImportStrategy[*domain.ActionCollection, *domain.ActionCollectionDTO] = (*ActionCollectionImportStrategy)(nil)

// NewActionCollectionImportStrategy returns a strategy reading existing
// collections from repository.
func NewActionCollectionImportStrategy(repository ActionCollectionRepository) *ActionCollectionImportStrategy {
	return &ActionCollectionImportStrategy{
		repository: repository,
		collection: defaultresources.NewService[*domain.ActionCollection](defaultresources.ActionCollectionKind),
		dto:        defaultresources.NewService[*domain.ActionCollectionDTO](defaultresources.ActionCollectionDTOKind),
	}
}

func (s *ActionCollectionImportStrategy) Kind() string { return "actionCollection" }

// GetImportedContextNames returns the distinct names of the pages in the
// context map, sorted.
func (s *ActionCollectionImportStrategy) GetImportedContextNames(mapped *MappedImportableResources) []string {
	seen := make(map[string]bool)
	var names []string
	for _, c := range mapped.ContextMap {
		page, ok := c.(*domain.NewPage)
		if !ok || seen[page.ID] {
			continue
		}
		seen[page.ID] = true
		names = append(names, page.ContextName())
	}
	sort.Strings(names)
	return names
}

func (s *ActionCollectionImportStrategy) RenameContextInImportableResources(collections []*domain.ActionCollection, oldName, newName string) {
	for _, c := range collections {
		if c.UnpublishedCollection != nil && c.UnpublishedCollection.PageID == oldName {
			c.UnpublishedCollection.PageID = newName
		}
	}
}

func (s *ActionCollectionImportStrategy) GetExistingResourcesInCurrentArtifact(ctx context.Context, artifactID string) iter.Seq2[*domain.ActionCollection, error] {
	return s.repository.FindByApplicationID(ctx, artifactID)
}

func (s *ActionCollectionImportStrategy) GetExistingResourcesInOtherBranches(ctx context.Context, canonicalArtifactID, currentArtifactID string) iter.Seq2[*domain.ActionCollection, error] {
	return func(yield func(*domain.ActionCollection, error) bool) {
		for c, err := range s.repository.FindByDefaultApplicationID(ctx, canonicalArtifactID) {
			if err == nil && c.ApplicationID == currentArtifactID {
				continue
			}
			if !yield(c, err) {
				return
			}
		}
	}
}

func (s *ActionCollectionImportStrategy) ContextDTOs(c *domain.ActionCollection) []*domain.ActionCollectionDTO {
	var dtos []*domain.ActionCollectionDTO
	if c.UnpublishedCollection != nil {
		dtos = append(dtos, c.UnpublishedCollection)
	}
	if c.PublishedCollection != nil {
		dtos = append(dtos, c.PublishedCollection)
	}
	return dtos
}

func (s *ActionCollectionImportStrategy) DropContextDTO(c *domain.ActionCollection, dto *domain.ActionCollectionDTO) {
	if c.PublishedCollection == dto {
		c.PublishedCollection = nil
	}
}

// UpdateContextInResource resolves dto.PageID against contextMap. On
// success PageID becomes the page's storage id and the DTO's default
// resources carry the page's canonical id.
func (s *ActionCollectionImportStrategy) UpdateContextInResource(dto *domain.ActionCollectionDTO, contextMap map[string]domain.Context, fallbackContextRef string) (domain.Context, error) {
	ref := dto.PageID
	if ref == "" {
		ref = fallbackContextRef
	}

	c, ok := contextMap[ref]
	if !ok || c == nil {
		return nil, nil
	}
	page, ok := c.(*domain.NewPage)
	if !ok {
		return nil, NewMalformedReferenceError(ref, c.ContextKind(), domain.ContextKindPage)
	}

	dto.PageID = page.ID
	dto.DefaultResources = &domain.DefaultResources{PageID: page.DefaultContextID()}
	return page, nil
}

// PopulateDefaultResources moves collection into artifact and sets its
// default resources by branch origin:
//
//   - no git metadata: the collection is its own origin
//   - a sibling on another branch: ids are transplanted from the sibling
//   - otherwise: the canonical artifact id paired with the collection id
func (s *ActionCollectionImportStrategy) PopulateDefaultResources(meta *ImportingMeta, _ *MappedImportableResources, artifact domain.Artifact, sibling, collection *domain.ActionCollection) error {
	collection.ApplicationID = artifact.ArtifactID()

	git := artifact.GitMetadata()
	switch {
	case git == nil:
		collection.DefaultResources = &domain.DefaultResources{
			ApplicationID: artifact.ArtifactID(),
			CollectionID:  collection.ID,
		}
	case sibling != nil:
		if err := s.collection.SetFromOtherBranch(collection, sibling, meta.BranchName); err != nil {
			return err
		}
		if collection.UnpublishedCollection != nil && sibling.UnpublishedCollection != nil {
			err := s.dto.SetFromOtherBranch(collection.UnpublishedCollection, sibling.UnpublishedCollection, meta.BranchName)
			if err != nil && !errors.Is(err, defaultresources.ErrNoSourceIdentity) {
				return err
			}
		}
	default:
		collection.DefaultResources = &domain.DefaultResources{
			ApplicationID: git.DefaultArtifactID,
			CollectionID:  collection.ID,
			BranchName:    meta.BranchName,
		}
	}
	return nil
}

// CreateNewResource rejects the collection unless the principal may create
// actions on parent, then assigns its id, timestamps, policies and sync id.
func (s *ActionCollectionImportStrategy) CreateNewResource(ctx context.Context, meta *ImportingMeta, collection *domain.ActionCollection, parent domain.Context) error {
	page, ok := parent.(*domain.NewPage)
	if !ok {
		return NewMalformedReferenceError(parent.ContextName(), parent.ContextKind(), domain.ContextKindPage)
	}
	if !meta.PermissionProvider.CanCreateAction(ctx, page) {
		return NewAccessDeniedError(string(domain.ContextKindPage), page.ID)
	}

	collection.UpdateForBulkWriteOperation()
	collection.Policies = permissions.ActionPolicies(page)
	if collection.WorkspaceID == "" && collection.UnpublishedCollection != nil {
		collection.WorkspaceID = collection.UnpublishedCollection.WorkspaceID
	}

	defaultresources.MergeActionCollectionIDs(collection, nil, meta.BranchName)

	if collection.GitSyncID == "" {
		collection.GitSyncID = idgen.NewGitSyncID(collection.ApplicationID)
	}
	return nil
}

// UpdateExistingResource replaces the collection states of existing with
// those of incoming. Identity, audit and policy fields of existing are kept.
func (s *ActionCollectionImportStrategy) UpdateExistingResource(ctx context.Context, meta *ImportingMeta, existing, incoming *domain.ActionCollection) error {
	if !meta.PermissionProvider.HasEditPermission(ctx, existing) {
		return NewAccessDeniedError(s.Kind(), existing.ID)
	}

	existing.UnpublishedCollection = incoming.UnpublishedCollection
	existing.PublishedCollection = incoming.PublishedCollection
	existing.DeletedAt = nil
	existing.UpdateForBulkWriteOperation()

	defaultresources.MergeActionCollectionIDs(existing, nil, meta.BranchName)
	return nil
}
