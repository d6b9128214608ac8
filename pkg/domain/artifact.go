package domain

// ArtifactKind names a variant of Artifact.
type ArtifactKind string

const (
	ArtifactKindApplication ArtifactKind = "application"
	ArtifactKindPackage     ArtifactKind = "package"
)

// GitArtifactMetadata is present on artifacts connected to version control.
type GitArtifactMetadata struct {
	// DefaultArtifactID is the canonical artifact id shared by all branches.
	DefaultArtifactID string `json:"defaultArtifactId"`
	BranchName        string `json:"branchName"`
	RemoteURL         string `json:"remoteUrl,omitempty"`
}

// Artifact is a version-controllable container. Implemented by *Application
// and *Package only.
type Artifact interface {
	ArtifactID() string
	ArtifactKind() ArtifactKind
	// GitMetadata returns nil when the artifact has no git ancestry.
	GitMetadata() *GitArtifactMetadata
	isArtifact()
}

var (
	_ Artifact = (*Application)(nil)
	_ Artifact = (*Package)(nil)
)

// ApplicationPage references a page of an application.
type ApplicationPage struct {
	ID        string `json:"id"`
	IsDefault bool   `json:"isDefault,omitempty"`
}

// Application is an artifact made of pages, actions and action collections.
type Application struct {
	BaseDomain
	Name                   string               `json:"name"`
	WorkspaceID            string               `json:"workspaceId,omitempty"`
	Pages                  []ApplicationPage    `json:"pages,omitempty"`
	GitApplicationMetadata *GitArtifactMetadata `json:"gitApplicationMetadata,omitempty"`
}

// Clone returns a deep copy of a.
func (a *Application) Clone() *Application {
	out := *a
	out.BaseDomain = a.BaseDomain.clone()
	out.Pages = append([]ApplicationPage(nil), a.Pages...)
	if a.GitApplicationMetadata != nil {
		git := *a.GitApplicationMetadata
		out.GitApplicationMetadata = &git
	}
	return &out
}

func (a *Application) ArtifactID() string { return a.ID }

func (a *Application) ArtifactKind() ArtifactKind { return ArtifactKindApplication }

func (a *Application) GitMetadata() *GitArtifactMetadata { return a.GitApplicationMetadata }

func (a *Application) isArtifact() {}

// DefaultPageID returns the id of the page marked default, or the first page.
func (a *Application) DefaultPageID() string {
	for _, p := range a.Pages {
		if p.IsDefault {
			return p.ID
		}
	}
	if len(a.Pages) > 0 {
		return a.Pages[0].ID
	}
	return ""
}

// Package is an artifact made of modules.
type Package struct {
	BaseDomain
	Name               string               `json:"name"`
	WorkspaceID        string               `json:"workspaceId,omitempty"`
	GitPackageMetadata *GitArtifactMetadata `json:"gitPackageMetadata,omitempty"`
}

func (p *Package) ArtifactID() string { return p.ID }

func (p *Package) ArtifactKind() ArtifactKind { return ArtifactKindPackage }

func (p *Package) GitMetadata() *GitArtifactMetadata { return p.GitPackageMetadata }

func (p *Package) isArtifact() {}
