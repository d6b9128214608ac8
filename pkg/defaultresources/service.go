// Package defaultresources maintains the canonical, branch-independent ids
// recorded in domain.DefaultResources.
//
// A resource created on the first branch of an artifact is the origin of its
// own canonical ids. Every branch created later inherits them through
// Service.SetFromOtherBranch, so the same logical resource keeps one set of
// canonical ids while its storage id differs from branch to branch.
package defaultresources

import (
	"errors"
	"fmt"

	"github.com/appforge/appforge/pkg/domain"
)

// ErrNoSourceIdentity is returned when the sibling resource carries no
// default resources to transplant.
var ErrNoSourceIdentity = errors.New("source resource has no default resources")

// Field selects one canonical id of domain.DefaultResources.
type Field int

const (
	FieldNone Field = iota
	FieldApplication
	FieldPage
	FieldCollection
	FieldAction
)

func (f Field) String() string {
	switch f {
	case FieldApplication:
		return "applicationId"
	case FieldPage:
		return "pageId"
	case FieldCollection:
		return "collectionId"
	case FieldAction:
		return "actionId"
	default:
		return "none"
	}
}

// Get returns the value of the field in d.
func (f Field) Get(d *domain.DefaultResources) string {
	if d == nil {
		return ""
	}
	switch f {
	case FieldApplication:
		return d.ApplicationID
	case FieldPage:
		return d.PageID
	case FieldCollection:
		return d.CollectionID
	case FieldAction:
		return d.ActionID
	default:
		return ""
	}
}

// Set assigns the field in d.
func (f Field) Set(d *domain.DefaultResources, v string) {
	switch f {
	case FieldApplication:
		d.ApplicationID = v
	case FieldPage:
		d.PageID = v
	case FieldCollection:
		d.CollectionID = v
	case FieldAction:
		d.ActionID = v
	}
}

// Kind describes which canonical ids a resource kind owns and inherits.
type Kind struct {
	Name string
	// Own is the kind's own identity field, FieldNone for DTOs whose
	// identity lives on the enclosing resource.
	Own       Field
	Ancestors []Field
}

var (
	ActionCollectionKind    = Kind{Name: "actionCollection", Own: FieldCollection, Ancestors: []Field{FieldApplication}}
	ActionCollectionDTOKind = Kind{Name: "actionCollectionDTO", Ancestors: []Field{FieldPage}}
	PageKind                = Kind{Name: "page", Own: FieldPage, Ancestors: []Field{FieldApplication}}
	ActionKind              = Kind{Name: "action", Own: FieldAction, Ancestors: []Field{FieldApplication}}
	ActionDTOKind           = Kind{Name: "actionDTO", Ancestors: []Field{FieldPage, FieldCollection}}
)

// Holder is a resource or DTO carrying default resources.
type Holder interface {
	GetID() string
	GetDefaultResources() *domain.DefaultResources
	SetDefaultResources(*domain.DefaultResources)
}

// Service establishes default resources for one resource kind.
type Service[T Holder] struct {
	kind Kind
}

// NewService returns a service for resources of the given kind.
func NewService[T Holder](kind Kind) *Service[T] {
	return &Service[T]{kind: kind}
}

// Kind returns the kind the service operates on.
func (s *Service[T]) Kind() Kind { return s.kind }

// SetFromOtherBranch gives target the canonical ids of source, the same
// logical resource on another branch. Ancestor ids are copied from source
// where source has them. The own id is copied from source, or set to the
// target's storage id when no branch has established it yet. Ids outside
// the kind are left as they are.
func (s *Service[T]) SetFromOtherBranch(target, source T, branchName string) error {
	src := source.GetDefaultResources()
	if src == nil {
		return fmt.Errorf("%s %s: %w", s.kind.Name, source.GetID(), ErrNoSourceIdentity)
	}

	out := target.GetDefaultResources().Clone()
	if out == nil {
		out = &domain.DefaultResources{}
	}

	for _, f := range s.kind.Ancestors {
		if v := f.Get(src); v != "" {
			f.Set(out, v)
		}
	}

	if s.kind.Own != FieldNone {
		switch {
		case s.kind.Own.Get(src) != "":
			s.kind.Own.Set(out, s.kind.Own.Get(src))
		case s.kind.Own.Get(out) == "":
			s.kind.Own.Set(out, target.GetID())
		}
	}

	out.BranchName = branchName
	target.SetDefaultResources(out)
	return nil
}
