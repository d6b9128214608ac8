package imports

import (
	"context"
	"errors"
	"iter"

	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/defaultresources"
	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/idgen"
	"github.com/appforge/appforge/pkg/permissions"
)

// PageRepository streams stored pages. Both lookups skip soft-deleted
// pages.
type PageRepository interface {
	FindPagesByApplicationID(ctx context.Context, applicationID string) iter.Seq2[*domain.NewPage, error]
	FindPagesByDefaultApplicationID(ctx context.Context, defaultApplicationID string) iter.Seq2[*domain.NewPage, error]
}

// PageImportResult is the outcome of importing the pages of a manifest.
type PageImportResult struct {
	// Mapped resolves the page references of the other resources in the
	// manifest.
	Mapped *MappedImportableResources

	Created []*domain.NewPage
	Updated []*domain.NewPage

	// Denied holds one access-denied error per page the principal may not
	// create. Resources referencing those pages are skipped.
	Denied []error
}

// PageImporter imports the pages of an application. It runs before the
// importers of resources parented by pages.
type PageImporter struct {
	repository PageRepository
	identity   *defaultresources.Service[*domain.NewPage]
	logger     zerolog.Logger
}

// NewPageImporter returns a page importer reading existing pages from
// repository.
func NewPageImporter(repository PageRepository, logger zerolog.Logger) *PageImporter {
	return &PageImporter{
		repository: repository,
		identity:   defaultresources.NewService[*domain.NewPage](defaultresources.PageKind),
		logger:     logger.With().Str("component", "page-importer").Logger(),
	}
}

// Import matches incoming pages against the pages of app by sync id.
// Matched pages take the incoming content. Unmatched pages are created,
// renamed first when their name is already used in app. The input pages
// are never modified.
func (p *PageImporter) Import(ctx context.Context, meta *ImportingMeta, app *domain.Application, incoming []*domain.NewPage) (*PageImportResult, error) {
	current, err := drain(p.repository.FindPagesByApplicationID(ctx, app.ID), "current_artifact")
	if err != nil {
		return nil, err
	}

	siblings := make(map[string]*domain.NewPage)
	if git := app.GitMetadata(); git != nil && git.DefaultArtifactID != "" {
		all, err := drain(p.repository.FindPagesByDefaultApplicationID(ctx, git.DefaultArtifactID), "other_branches")
		if err != nil {
			return nil, err
		}
		for _, page := range all {
			if page.ApplicationID != app.ID && page.GitSyncID != "" {
				siblings[page.GitSyncID] = page
			}
		}
	}

	bySync := make(map[string]*domain.NewPage, len(current))
	for _, page := range current {
		if page.GitSyncID != "" {
			bySync[page.GitSyncID] = page
		}
	}

	result := &PageImportResult{
		Mapped: &MappedImportableResources{ContextMap: make(map[string]domain.Context)},
	}

	matched := make(map[string]bool)
	var fresh []*domain.NewPage
	for _, in := range incoming {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		existing, ok := bySync[in.GitSyncID]
		if !ok || in.GitSyncID == "" {
			page := in.Clone()
			if page.UnpublishedPage == nil {
				page.UnpublishedPage = &domain.PageDTO{}
			}
			fresh = append(fresh, page)
			continue
		}

		updated := existing.Clone()
		updated.UnpublishedPage = in.UnpublishedPage.Clone()
		updated.PublishedPage = in.PublishedPage.Clone()
		updated.DeletedAt = nil
		updated.UpdateForBulkWriteOperation()

		matched[existing.ID] = true
		result.Updated = append(result.Updated, updated)
		p.register(result.Mapped, in, updated)
	}

	var used []string
	for _, page := range current {
		if !matched[page.ID] {
			used = append(used, page.ContextName())
		}
	}
	for _, page := range result.Updated {
		used = append(used, page.ContextName())
	}

	var names []string
	for _, page := range fresh {
		names = append(names, page.ContextName())
	}
	renames := PlanContextRenames(used, names)
	result.Mapped.ContextRenames = renames

	renamed := make(map[string]string, len(renames))
	for _, r := range renames {
		renamed[r.OldName] = r.NewName
	}

	for _, page := range fresh {
		original := page.Clone()
		if newName, ok := renamed[page.ContextName()]; ok {
			page.UnpublishedPage.Name = newName
		}

		if !meta.PermissionProvider.CanCreatePage(ctx, app) {
			err := NewAccessDeniedError("application", app.ID)
			result.Denied = append(result.Denied, err)
			p.logger.Warn().Err(err).Str("page", original.ContextName()).Msg("Page import denied")
			continue
		}

		if err := p.create(meta, app, siblings[page.GitSyncID], page); err != nil {
			return nil, newIdentityError(page.GitSyncID, err)
		}
		result.Created = append(result.Created, page)
		p.register(result.Mapped, original, page)
	}

	p.logger.Info().
		Str("import_id", meta.ImportID).
		Str("artifact_id", app.ID).
		Int("created", len(result.Created)).
		Int("updated", len(result.Updated)).
		Int("denied", len(result.Denied)).
		Int("renamed", len(renames)).
		Msg("Pages imported")

	return result, nil
}

func (p *PageImporter) create(meta *ImportingMeta, app *domain.Application, sibling, page *domain.NewPage) error {
	page.MakePristine()
	page.ApplicationID = app.ID
	page.UpdateForBulkWriteOperation()
	page.Policies = permissions.PagePolicies(app)

	git := app.GitMetadata()
	switch {
	case git == nil:
		page.DefaultResources = &domain.DefaultResources{ApplicationID: app.ID, PageID: page.ID}
	case sibling != nil:
		err := p.identity.SetFromOtherBranch(page, sibling, meta.BranchName)
		if err == nil {
			break
		}
		if !errors.Is(err, defaultresources.ErrNoSourceIdentity) {
			return err
		}
		page.DefaultResources = &domain.DefaultResources{ApplicationID: git.DefaultArtifactID, PageID: page.ID, BranchName: meta.BranchName}
	default:
		page.DefaultResources = &domain.DefaultResources{ApplicationID: git.DefaultArtifactID, PageID: page.ID, BranchName: meta.BranchName}
	}

	if page.GitSyncID == "" {
		page.GitSyncID = idgen.NewGitSyncID(app.ID)
	}
	return nil
}

// register maps the references a manifest may use for in, its final name
// and its manifest id, to the persisted page.
func (p *PageImporter) register(mapped *MappedImportableResources, in, page *domain.NewPage) {
	mapped.ContextMap[page.ContextName()] = page
	if in.ID != "" {
		if _, taken := mapped.ContextMap[in.ID]; !taken {
			mapped.ContextMap[in.ID] = page
		}
	}
}

func drain[T any](seq iter.Seq2[T, error], scope string) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, newLookupError(scope, err)
		}
		out = append(out, v)
	}
	return out, nil
}
