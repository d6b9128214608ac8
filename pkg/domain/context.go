package domain

import "time"

// ContextKind names a variant of Context.
type ContextKind string

const (
	ContextKindPage   ContextKind = "page"
	ContextKindModule ContextKind = "module"
)

// Context is a parent container of importable resources. It can be located
// by its storage id or its name. Implemented by *NewPage and *Module only.
type Context interface {
	ContextID() string
	ContextName() string
	// DefaultContextID returns the canonical id shared across branches.
	DefaultContextID() string
	ContextKind() ContextKind
	isContext()
}

var (
	_ Context = (*NewPage)(nil)
	_ Context = (*Module)(nil)
)

// PageDTO is the editable view of a page.
type PageDTO struct {
	Name      string     `json:"name"`
	Slug      string     `json:"slug,omitempty"`
	IsHidden  bool       `json:"isHidden,omitempty"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// Clone returns a copy of d, or nil when d is nil.
func (d *PageDTO) Clone() *PageDTO {
	if d == nil {
		return nil
	}
	c := *d
	c.DeletedAt = cloneTime(d.DeletedAt)
	return &c
}

// NewPage is a page of an application.
type NewPage struct {
	BaseDomain
	ApplicationID    string            `json:"applicationId,omitempty"`
	DefaultResources *DefaultResources `json:"defaultResources,omitempty"`
	UnpublishedPage  *PageDTO          `json:"unpublishedPage,omitempty"`
	PublishedPage    *PageDTO          `json:"publishedPage,omitempty"`
}

// Clone returns a deep copy of p.
func (p *NewPage) Clone() *NewPage {
	out := *p
	out.BaseDomain = p.BaseDomain.clone()
	out.DefaultResources = p.DefaultResources.Clone()
	out.UnpublishedPage = p.UnpublishedPage.Clone()
	out.PublishedPage = p.PublishedPage.Clone()
	return &out
}

// SanitiseToExportDBObject strips the base fields and the default
// resources of p.
func (p *NewPage) SanitiseToExportDBObject() {
	p.BaseDomain.SanitiseToExportDBObject()
	p.DefaultResources = nil
}

func (p *NewPage) ContextID() string { return p.ID }

func (p *NewPage) ContextName() string {
	if p.UnpublishedPage == nil {
		return ""
	}
	return p.UnpublishedPage.Name
}

// DefaultContextID returns the canonical page id. A page without default
// resources is its own origin.
func (p *NewPage) DefaultContextID() string {
	if p.DefaultResources != nil && p.DefaultResources.PageID != "" {
		return p.DefaultResources.PageID
	}
	return p.ID
}

func (p *NewPage) ContextKind() ContextKind { return ContextKindPage }

func (p *NewPage) isContext() {}

func (p *NewPage) GetDefaultResources() *DefaultResources { return p.DefaultResources }

func (p *NewPage) SetDefaultResources(d *DefaultResources) { p.DefaultResources = d }

// Module is a reusable unit inside a package.
type Module struct {
	BaseDomain
	PackageID        string            `json:"packageId,omitempty"`
	Name             string            `json:"name"`
	DefaultResources *DefaultResources `json:"defaultResources,omitempty"`
}

func (m *Module) ContextID() string { return m.ID }

func (m *Module) ContextName() string { return m.Name }

func (m *Module) DefaultContextID() string { return m.ID }

func (m *Module) ContextKind() ContextKind { return ContextKindModule }

func (m *Module) isContext() {}
