package imports

import (
	"github.com/google/uuid"

	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/permissions"
)

// ImportingMeta is the per-import context handed to every strategy.
type ImportingMeta struct {
	// ImportID correlates logs, metrics and spans of one import.
	ImportID string

	// BranchName is the branch being imported into, empty for artifacts
	// without git metadata.
	BranchName string

	PermissionProvider permissions.Provider

	// FallbackContextRef is the context reference substituted for resources
	// that declare no parent, usually the default page name.
	FallbackContextRef string
}

// NewImportingMeta returns meta for a new import with a fresh ImportID.
func NewImportingMeta(branchName string, provider permissions.Provider, fallbackContextRef string) *ImportingMeta {
	return &ImportingMeta{
		ImportID:           uuid.NewString(),
		BranchName:         branchName,
		PermissionProvider: provider,
		FallbackContextRef: fallbackContextRef,
	}
}

// ContextRename renames a context referenced by incoming resources.
type ContextRename struct {
	OldName string
	NewName string
}

// MappedImportableResources holds what earlier import stages resolved.
type MappedImportableResources struct {
	// ContextMap resolves a context reference, as written in the manifest
	// after renames, to a persisted context.
	ContextMap map[string]domain.Context

	// ContextRenames are applied to incoming resources before their parents
	// are resolved. A resource is renamed at most once, so a rename may
	// take a name that a later rename frees.
	ContextRenames []ContextRename
}
