// Package domain defines the importable resources of appforge and the
// lifecycle contract they share.
//
// Every importable resource embeds BaseDomain, which carries the storage id,
// audit metadata, soft-delete marker, access policies and the git sync id.
// Resources that participate in version control also carry DefaultResources,
// the branch-independent canonical ids of the resource and its ancestors.
//
// Parent containers (Context) and version-controlled containers (Artifact)
// are closed unions: only the types declared in this package satisfy them.
//
// # Visibility
//
// Fields carry a `view` struct tag. Fields tagged "internal" or "transient"
// never cross instance boundaries and are stripped by
// BaseDomain.SanitiseToExportDBObject before an export is written.
package domain
