package domain

import "time"

// ActionDTO is one state of an action. CollectionID is set for actions that
// belong to an action collection.
type ActionDTO struct {
	ID               string            `json:"id,omitempty"`
	Name             string            `json:"name"`
	PageID           string            `json:"pageId,omitempty"`
	CollectionID     string            `json:"collectionId,omitempty"`
	DefaultResources *DefaultResources `json:"defaultResources,omitempty"`
	DeletedAt        *time.Time        `json:"deletedAt,omitempty"`
}

func (d *ActionDTO) GetID() string { return d.ID }

func (d *ActionDTO) GetDefaultResources() *DefaultResources { return d.DefaultResources }

func (d *ActionDTO) SetDefaultResources(r *DefaultResources) { d.DefaultResources = r }

// Clone returns a copy of d, or nil when d is nil.
func (d *ActionDTO) Clone() *ActionDTO {
	if d == nil {
		return nil
	}
	c := *d
	c.DefaultResources = d.DefaultResources.Clone()
	c.DeletedAt = cloneTime(d.DeletedAt)
	return &c
}

// NewAction is a query or API call.
type NewAction struct {
	BaseDomain
	ApplicationID     string            `json:"applicationId,omitempty"`
	PluginID          string            `json:"pluginId,omitempty"`
	DefaultResources  *DefaultResources `json:"defaultResources,omitempty"`
	UnpublishedAction *ActionDTO        `json:"unpublishedAction,omitempty"`
	PublishedAction   *ActionDTO        `json:"publishedAction,omitempty"`
}

var _ Entity = (*NewAction)(nil)

func (a *NewAction) GetDefaultResources() *DefaultResources { return a.DefaultResources }

func (a *NewAction) SetDefaultResources(r *DefaultResources) { a.DefaultResources = r }

// Clone returns a deep copy of a.
func (a *NewAction) Clone() *NewAction {
	out := *a
	out.BaseDomain = a.BaseDomain.clone()
	out.DefaultResources = a.DefaultResources.Clone()
	out.UnpublishedAction = a.UnpublishedAction.Clone()
	out.PublishedAction = a.PublishedAction.Clone()
	return &out
}

// SanitiseToExportDBObject strips the base fields and the default
// resources of a and its states.
func (a *NewAction) SanitiseToExportDBObject() {
	a.BaseDomain.SanitiseToExportDBObject()
	a.DefaultResources = nil
	for _, dto := range []*ActionDTO{a.UnpublishedAction, a.PublishedAction} {
		if dto != nil {
			dto.DefaultResources = nil
		}
	}
}
