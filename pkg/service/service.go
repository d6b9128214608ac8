package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/imports"
	"github.com/appforge/appforge/pkg/manifest"
	"github.com/appforge/appforge/pkg/permissions"
	"github.com/appforge/appforge/pkg/stores"
	"github.com/appforge/appforge/pkg/telemetry"
)

// Config wires a Service.
type Config struct {
	Store    stores.Store
	Provider permissions.Provider

	// Principal receives the policies of applications created by an
	// import.
	Principal permissions.Principal

	FailurePolicy imports.FailurePolicy
	Logger        zerolog.Logger
	Metrics       *telemetry.Metrics
	Tracer        *telemetry.Tracer
}

// Service imports manifests into the store and exports stored
// applications.
type Service struct {
	store       stores.Store
	provider    permissions.Provider
	principal   permissions.Principal
	policy      imports.FailurePolicy
	codec       *manifest.Codec
	pages       *imports.PageImporter
	collections *imports.Reconciler[*domain.ActionCollection, *domain.ActionCollectionDTO]
	locks       *imports.ArtifactLocks
	tracer      *telemetry.Tracer
	logger      zerolog.Logger
}

// New returns a service over cfg.Store.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("permission provider is required")
	}

	codec, err := manifest.NewCodec(cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		store:     cfg.Store,
		provider:  cfg.Provider,
		principal: cfg.Principal,
		policy:    cfg.FailurePolicy,
		codec:     codec,
		pages:     imports.NewPageImporter(cfg.Store, cfg.Logger),
		collections: imports.NewReconciler(
			imports.NewActionCollectionImportStrategy(cfg.Store),
			imports.WithFailurePolicy(cfg.FailurePolicy),
			imports.WithLogger(cfg.Logger),
			imports.WithMetrics(cfg.Metrics),
			imports.WithTracer(cfg.Tracer),
		),
		locks:  imports.NewArtifactLocks(),
		tracer: cfg.Tracer,
		logger: cfg.Logger.With().Str("component", "service").Logger(),
	}, nil
}

// Codec returns the manifest codec used by the service.
func (s *Service) Codec() *manifest.Codec {
	return s.codec
}

// ImportOptions selects the application a manifest is imported into.
type ImportOptions struct {
	// ApplicationID imports into an existing application. When empty a
	// new application is created from the manifest.
	ApplicationID string

	// BranchOf creates the new application as a branch of an existing
	// one, sharing the canonical ids of its resources. Requires
	// BranchName.
	BranchOf string

	// BranchName is the branch of a new application. Ignored when
	// ApplicationID is set.
	BranchName string
}

// ImportSummary reports what an import wrote.
type ImportSummary struct {
	ImportID      string
	ApplicationID string
	BranchName    string
	Created       bool

	PagesCreated int
	PagesUpdated int
	PagesDenied  int
	PageRenames  []imports.ContextRename

	Collections *imports.Result[*domain.ActionCollection]

	// Errors joins the page denials and the collection failures that did
	// not stop the import.
	Errors error
}

// Import decodes a manifest from r and reconciles it into the store. All
// writes happen in one transaction after every resource has been
// reconciled; under FailurePolicyAbort a denied or failed resource leaves
// the store untouched. Imports into one existing application run one at a
// time, from reading the application to saving the batch.
func (s *Service) Import(ctx context.Context, r io.Reader, opts ImportOptions) (summary *ImportSummary, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.import", attribute.String("application_id", opts.ApplicationID))
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}()

	m, err := s.codec.Decode(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	// New applications get a fresh id and need no lock.
	if opts.ApplicationID != "" {
		unlock, err := s.locks.Lock(ctx, opts.ApplicationID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	app, created, err := s.resolveApplication(ctx, m, opts)
	if err != nil {
		return nil, err
	}

	var branch string
	if git := app.GitMetadata(); git != nil {
		branch = git.BranchName
	}
	meta := imports.NewImportingMeta(branch, s.provider, m.DefaultPageName())
	logger := s.logger.With().Str("import_id", meta.ImportID).Str("application_id", app.ID).Logger()

	pages, err := s.pages.Import(ctx, meta, app, m.PageList)
	if err != nil {
		return nil, fmt.Errorf("failed to import pages: %w", err)
	}
	if len(pages.Denied) > 0 && s.policy == imports.FailurePolicyAbort {
		return nil, fmt.Errorf("failed to import pages: %w", errors.Join(pages.Denied...))
	}

	for _, rename := range pages.Mapped.ContextRenames {
		if rename.OldName == meta.FallbackContextRef {
			meta.FallbackContextRef = rename.NewName
			break
		}
	}

	collections, err := s.collections.Reconcile(ctx, meta, pages.Mapped, app, m.ActionCollectionList)
	if err != nil {
		return nil, fmt.Errorf("failed to import action collections: %w", err)
	}

	addPages(app, pages.Created, meta.FallbackContextRef)
	app.UpdateForBulkWriteOperation()

	batch := stores.ImportBatch{
		Application:       app,
		Pages:             append(pages.Created, pages.Updated...),
		ActionCollections: append(collections.Created(), collections.Updated()...),
	}
	if err := s.store.SaveImport(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save import: %w", err)
	}

	summary = &ImportSummary{
		ImportID:      meta.ImportID,
		ApplicationID: app.ID,
		BranchName:    branch,
		Created:       created,
		PagesCreated:  len(pages.Created),
		PagesUpdated:  len(pages.Updated),
		PagesDenied:   len(pages.Denied),
		PageRenames:   pages.Mapped.ContextRenames,
		Collections:   collections,
		Errors:        errors.Join(append(pages.Denied, collections.Errors())...),
	}

	logger.Info().
		Bool("new_application", created).
		Int("pages_created", summary.PagesCreated).
		Int("pages_updated", summary.PagesUpdated).
		Int("collections_created", collections.Count(imports.OutcomeCreated)).
		Int("collections_updated", collections.Count(imports.OutcomeUpdated)).
		Msg("Application imported")

	return summary, nil
}

func (s *Service) resolveApplication(ctx context.Context, m *manifest.ApplicationJSON, opts ImportOptions) (*domain.Application, bool, error) {
	if opts.ApplicationID != "" {
		app, err := s.store.GetApplication(ctx, opts.ApplicationID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load application %s: %w", opts.ApplicationID, err)
		}
		return app, false, nil
	}

	app := m.ExportedApplication.Clone()
	app.MakePristine()
	app.CreatedAt = nil
	app.ModifiedBy = ""
	app.GitSyncID = ""
	app.Pages = nil
	app.GitApplicationMetadata = nil
	app.DeletedAt = nil
	app.UpdateForBulkWriteOperation()
	app.Policies = permissions.ApplicationPolicies(s.principal.Groups)
	app.CreatedBy = s.principal.UserID

	switch {
	case opts.BranchOf != "":
		if opts.BranchName == "" {
			return nil, false, errors.New("a branch name is required to branch an application")
		}
		source, err := s.store.GetApplication(ctx, opts.BranchOf)
		if err != nil {
			return nil, false, fmt.Errorf("failed to load application %s: %w", opts.BranchOf, err)
		}
		canonical := source.ID
		if git := source.GitMetadata(); git != nil && git.DefaultArtifactID != "" {
			canonical = git.DefaultArtifactID
		}
		app.GitApplicationMetadata = &domain.GitArtifactMetadata{DefaultArtifactID: canonical, BranchName: opts.BranchName}
	case opts.BranchName != "":
		app.GitApplicationMetadata = &domain.GitArtifactMetadata{DefaultArtifactID: app.ID, BranchName: opts.BranchName}
	}

	return app, true, nil
}

// addPages lists created pages in app. The page named defaultPage becomes
// the default when app has none.
func addPages(app *domain.Application, created []*domain.NewPage, defaultPage string) {
	hasDefault := false
	for _, p := range app.Pages {
		hasDefault = hasDefault || p.IsDefault
	}
	for _, page := range created {
		isDefault := !hasDefault && page.ContextName() == defaultPage
		hasDefault = hasDefault || isDefault
		app.Pages = append(app.Pages, domain.ApplicationPage{ID: page.ID, IsDefault: isDefault})
	}
}

// Export writes the manifest of a stored application to w.
func (s *Service) Export(ctx context.Context, applicationID string, w io.Writer) (err error) {
	ctx, span := s.tracer.StartSpan(ctx, "service.export", attribute.String("application_id", applicationID))
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}()

	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("failed to load application %s: %w", applicationID, err)
	}
	pages, err := collect(s.store.FindPagesByApplicationID(ctx, applicationID))
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}
	collections, err := collect(s.store.FindByApplicationID(ctx, applicationID))
	if err != nil {
		return fmt.Errorf("failed to load action collections: %w", err)
	}

	if err := s.codec.Encode(ctx, w, manifest.Export(app, pages, nil, collections)); err != nil {
		return err
	}

	s.logger.Info().
		Str("application_id", applicationID).
		Int("pages", len(pages)).
		Int("action_collections", len(collections)).
		Msg("Application exported")
	return nil
}

func collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
