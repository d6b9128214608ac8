package manifest

import (
	"github.com/appforge/appforge/pkg/domain"
)

// CurrentSchemaVersion is the server schema version written by Encode and
// the highest version Decode accepts.
const CurrentSchemaVersion = 1

// ApplicationJSON is the exported form of an application. Resources refer
// to their parent page by page name.
type ApplicationJSON struct {
	ClientSchemaVersion  int                        `json:"clientSchemaVersion,omitempty"`
	ServerSchemaVersion  int                        `json:"serverSchemaVersion"`
	ExportedApplication  *domain.Application        `json:"exportedApplication"`
	PageList             []*domain.NewPage          `json:"pageList"`
	ActionList           []*domain.NewAction        `json:"actionList,omitempty"`
	ActionCollectionList []*domain.ActionCollection `json:"actionCollectionList,omitempty"`
}

// Export builds the manifest of app. Soft-deleted resources are left out,
// page references of actions and collections are replaced by page names,
// and every entity is sanitised. The arguments are not modified.
func Export(app *domain.Application, pages []*domain.NewPage, actions []*domain.NewAction, collections []*domain.ActionCollection) *ApplicationJSON {
	names := make(map[string]string, len(pages))
	for _, p := range pages {
		names[p.ID] = p.ContextName()
	}
	pageName := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return id
	}

	m := &ApplicationJSON{
		ServerSchemaVersion: CurrentSchemaVersion,
		ExportedApplication: app.Clone(),
		PageList:            []*domain.NewPage{},
	}

	for _, p := range pages {
		if !p.IsDeleted() {
			m.PageList = append(m.PageList, p.Clone())
		}
	}

	for _, a := range actions {
		if a.IsDeleted() {
			continue
		}
		a = a.Clone()
		for _, dto := range []*domain.ActionDTO{a.UnpublishedAction, a.PublishedAction} {
			if dto != nil {
				dto.PageID = pageName(dto.PageID)
			}
		}
		m.ActionList = append(m.ActionList, a)
	}

	for _, c := range collections {
		if c.IsDeleted() {
			continue
		}
		c = c.Clone()
		for _, dto := range []*domain.ActionCollectionDTO{c.UnpublishedCollection, c.PublishedCollection} {
			if dto != nil {
				dto.PageID = pageName(dto.PageID)
			}
		}
		m.ActionCollectionList = append(m.ActionCollectionList, c)
	}

	m.sanitise()
	return m
}

// Sanitised returns a copy of m with every entity sanitised for export.
func (m *ApplicationJSON) Sanitised() *ApplicationJSON {
	out := &ApplicationJSON{
		ClientSchemaVersion: m.ClientSchemaVersion,
		ServerSchemaVersion: m.ServerSchemaVersion,
		PageList:            make([]*domain.NewPage, 0, len(m.PageList)),
	}
	if m.ExportedApplication != nil {
		out.ExportedApplication = m.ExportedApplication.Clone()
	}
	for _, p := range m.PageList {
		out.PageList = append(out.PageList, p.Clone())
	}
	for _, a := range m.ActionList {
		out.ActionList = append(out.ActionList, a.Clone())
	}
	for _, c := range m.ActionCollectionList {
		out.ActionCollectionList = append(out.ActionCollectionList, c.Clone())
	}

	out.sanitise()
	return out
}

func (m *ApplicationJSON) sanitise() {
	if m.ExportedApplication != nil {
		m.ExportedApplication.SanitiseToExportDBObject()
	}
	for _, p := range m.PageList {
		p.SanitiseToExportDBObject()
	}
	for _, a := range m.ActionList {
		a.SanitiseToExportDBObject()
	}
	for _, c := range m.ActionCollectionList {
		c.SanitiseToExportDBObject()
	}
}

// DefaultPageName returns the name of the page the application marks as
// default, or of the first page.
func (m *ApplicationJSON) DefaultPageName() string {
	if m.ExportedApplication != nil {
		if id := m.ExportedApplication.DefaultPageID(); id != "" {
			for _, p := range m.PageList {
				if p.ID == id {
					return p.ContextName()
				}
			}
		}
	}
	if len(m.PageList) > 0 {
		return m.PageList[0].ContextName()
	}
	return ""
}
