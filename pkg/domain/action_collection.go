package domain

import "time"

// JSValue is a variable declared in an action collection body.
type JSValue struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// ActionCollectionDTO is one state (unpublished or published) of an action
// collection. PageID references the parent page, by name in an import
// manifest and by storage id once resolved.
type ActionCollectionDTO struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	PageID           string            `json:"pageId,omitempty"`
	ApplicationID    string            `json:"applicationId,omitempty"`
	WorkspaceID      string            `json:"workspaceId,omitempty"`
	PluginID         string            `json:"pluginId,omitempty"`
	PluginType       string            `json:"pluginType,omitempty"`
	Body             string            `json:"body,omitempty"`
	Variables        []JSValue         `json:"variables,omitempty"`
	DefaultResources *DefaultResources `json:"defaultResources,omitempty"`
	DeletedAt        *time.Time        `json:"deletedAt,omitempty"`
}

func (d *ActionCollectionDTO) GetID() string { return d.ID }

func (d *ActionCollectionDTO) GetDefaultResources() *DefaultResources { return d.DefaultResources }

func (d *ActionCollectionDTO) SetDefaultResources(r *DefaultResources) { d.DefaultResources = r }

// Clone returns a deep copy of d, or nil when d is nil.
func (d *ActionCollectionDTO) Clone() *ActionCollectionDTO {
	if d == nil {
		return nil
	}
	c := *d
	c.Variables = append([]JSValue(nil), d.Variables...)
	c.DefaultResources = d.DefaultResources.Clone()
	c.DeletedAt = cloneTime(d.DeletedAt)
	return &c
}

// ActionCollection groups JS functions under a page.
type ActionCollection struct {
	BaseDomain
	ApplicationID         string               `json:"applicationId,omitempty"`
	WorkspaceID           string               `json:"workspaceId,omitempty"`
	DefaultResources      *DefaultResources    `json:"defaultResources,omitempty"`
	UnpublishedCollection *ActionCollectionDTO `json:"unpublishedCollection,omitempty"`
	PublishedCollection   *ActionCollectionDTO `json:"publishedCollection,omitempty"`
}

var _ Entity = (*ActionCollection)(nil)

func (c *ActionCollection) GetArtifactID() string { return c.ApplicationID }

func (c *ActionCollection) SetArtifactID(id string) { c.ApplicationID = id }

func (c *ActionCollection) GetDefaultResources() *DefaultResources { return c.DefaultResources }

func (c *ActionCollection) SetDefaultResources(r *DefaultResources) { c.DefaultResources = r }

// Clone returns a deep copy of c.
func (c *ActionCollection) Clone() *ActionCollection {
	out := *c
	out.BaseDomain = c.BaseDomain.clone()
	out.DefaultResources = c.DefaultResources.Clone()
	out.UnpublishedCollection = c.UnpublishedCollection.Clone()
	out.PublishedCollection = c.PublishedCollection.Clone()
	return &out
}

// SanitiseToExportDBObject strips the base fields and the default
// resources of c and its states. Canonical ids are local to the instance
// that stored them.
func (c *ActionCollection) SanitiseToExportDBObject() {
	c.BaseDomain.SanitiseToExportDBObject()
	c.DefaultResources = nil
	for _, dto := range []*ActionCollectionDTO{c.UnpublishedCollection, c.PublishedCollection} {
		if dto != nil {
			dto.DefaultResources = nil
		}
	}
}

// Name returns the unpublished collection name.
func (c *ActionCollection) Name() string {
	if c.UnpublishedCollection == nil {
		return ""
	}
	return c.UnpublishedCollection.Name
}
