package imports

import (
	"context"
	"iter"

	"github.com/appforge/appforge/pkg/defaultresources"
	"github.com/appforge/appforge/pkg/domain"
)

// Importable is a resource a strategy can import. Clone must return a deep
// copy so that a failed import leaves the input untouched.
type Importable[R any] interface {
	domain.Entity
	defaultresources.Holder
	Clone() R
}

// ArtifactImportStrategy is implemented once per resource kind. R is the
// resource and D the per-state DTO that carries its parent reference.
type ArtifactImportStrategy[R Importable[R], D any] interface {
	// Kind names the resource kind in logs and metrics.
	Kind() string

	// GetImportedContextNames returns the names of the contexts already
	// resolved for the artifact.
	GetImportedContextNames(mapped *MappedImportableResources) []string

	// RenameContextInImportableResources rewrites every parent reference
	// equal to oldName to newName.
	RenameContextInImportableResources(resources []R, oldName, newName string)

	// GetExistingResourcesInCurrentArtifact streams the resources stored
	// under artifactID. Each call re-issues the query.
	GetExistingResourcesInCurrentArtifact(ctx context.Context, artifactID string) iter.Seq2[R, error]

	// GetExistingResourcesInOtherBranches streams the resources sharing the
	// canonical artifact, excluding those under currentArtifactID.
	GetExistingResourcesInOtherBranches(ctx context.Context, canonicalArtifactID, currentArtifactID string) iter.Seq2[R, error]

	// ContextDTOs returns the DTOs of resource that carry a parent
	// reference, the primary (unpublished) one first.
	ContextDTOs(resource R) []D

	// DropContextDTO removes a secondary DTO of resource whose parent
	// reference does not resolve.
	DropContextDTO(resource R, dto D)

	// UpdateContextInResource resolves the parent reference of dto. It
	// returns nil and leaves dto untouched when the reference is unknown,
	// and ErrMalformedReference when it names a context of the wrong kind.
	UpdateContextInResource(dto D, contextMap map[string]domain.Context, fallbackContextRef string) (domain.Context, error)

	// PopulateDefaultResources establishes the default resources of
	// resource. sibling is the same logical resource on another branch, or
	// the zero value.
	PopulateDefaultResources(meta *ImportingMeta, mapped *MappedImportableResources, artifact domain.Artifact, sibling R, resource R) error

	// CreateNewResource gates, backfills and assigns the sync id of a
	// resource that does not exist in the artifact yet.
	CreateNewResource(ctx context.Context, meta *ImportingMeta, resource R, parent domain.Context) error

	// UpdateExistingResource copies the imported content of incoming onto
	// existing, keeping the identity of existing.
	UpdateExistingResource(ctx context.Context, meta *ImportingMeta, existing R, incoming R) error
}
