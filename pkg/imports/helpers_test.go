package imports

import (
	"context"
	"iter"

	"github.com/appforge/appforge/pkg/domain"
)

// memoryRepository serves collections from memory and counts the rows it
// yields.
type memoryRepository struct {
	collections []*domain.ActionCollection
	yielded     int
	err         error
}

func (m *memoryRepository) stream(ctx context.Context, match func(*domain.ActionCollection) bool) iter.Seq2[*domain.ActionCollection, error] {
	return func(yield func(*domain.ActionCollection, error) bool) {
		if m.err != nil {
			yield(nil, m.err)
			return
		}
		for _, c := range m.collections {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if c.IsDeleted() || !match(c) {
				continue
			}
			m.yielded++
			if !yield(c.Clone(), nil) {
				return
			}
		}
	}
}

func (m *memoryRepository) FindByApplicationID(ctx context.Context, applicationID string) iter.Seq2[*domain.ActionCollection, error] {
	return m.stream(ctx, func(c *domain.ActionCollection) bool { return c.ApplicationID == applicationID })
}

func (m *memoryRepository) FindByDefaultApplicationID(ctx context.Context, defaultApplicationID string) iter.Seq2[*domain.ActionCollection, error] {
	return m.stream(ctx, func(c *domain.ActionCollection) bool {
		return c.DefaultResources != nil && c.DefaultResources.ApplicationID == defaultApplicationID
	})
}

func newPage(id, name, canonicalID string, groups ...string) *domain.NewPage {
	page := &domain.NewPage{
		BaseDomain:      domain.BaseDomain{ID: id},
		UnpublishedPage: &domain.PageDTO{Name: name},
	}
	if canonicalID != "" {
		page.DefaultResources = &domain.DefaultResources{PageID: canonicalID}
	}
	if len(groups) > 0 {
		page.Policies = []domain.Policy{
			{Permission: "create:pageActions", PermissionGroups: groups},
			{Permission: "manage:pages", PermissionGroups: groups},
		}
	}
	return page
}

func incomingCollection(name, pageRef, gitSyncID string) *domain.ActionCollection {
	return &domain.ActionCollection{
		BaseDomain: domain.BaseDomain{GitSyncID: gitSyncID},
		UnpublishedCollection: &domain.ActionCollectionDTO{
			Name:   name,
			PageID: pageRef,
			Body:   "export default { run() { return 1 } }",
		},
	}
}

func application(id string, git *domain.GitArtifactMetadata) *domain.Application {
	return &domain.Application{
		BaseDomain:             domain.BaseDomain{ID: id},
		Name:                   "orders",
		GitApplicationMetadata: git,
	}
}

type memoryPageRepository struct {
	pages []*domain.NewPage
}

func (m *memoryPageRepository) find(ctx context.Context, match func(*domain.NewPage) bool) iter.Seq2[*domain.NewPage, error] {
	return func(yield func(*domain.NewPage, error) bool) {
		for _, p := range m.pages {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if p.IsDeleted() || !match(p) {
				continue
			}
			if !yield(p.Clone(), nil) {
				return
			}
		}
	}
}

func (m *memoryPageRepository) FindPagesByApplicationID(ctx context.Context, applicationID string) iter.Seq2[*domain.NewPage, error] {
	return m.find(ctx, func(p *domain.NewPage) bool { return p.ApplicationID == applicationID })
}

func (m *memoryPageRepository) FindPagesByDefaultApplicationID(ctx context.Context, defaultApplicationID string) iter.Seq2[*domain.NewPage, error] {
	return m.find(ctx, func(p *domain.NewPage) bool {
		return p.DefaultResources != nil && p.DefaultResources.ApplicationID == defaultApplicationID
	})
}
