package defaultresources

import "github.com/appforge/appforge/pkg/domain"

var canonicalFields = []Field{FieldApplication, FieldPage, FieldCollection, FieldAction}

// Overlay copies every non-empty canonical id of given onto dst.
func Overlay(dst, given *domain.DefaultResources) {
	if dst == nil || given == nil {
		return
	}
	for _, f := range canonicalFields {
		if v := f.Get(given); v != "" {
			f.Set(dst, v)
		}
	}
}

// MergeActionCollectionIDs merges ids supplied by an import manifest into
// the computed default resources of c. Supplied ids win; computed ids and
// the collection's own references fill the gaps. Both collection states get
// a page id when they lack one.
func MergeActionCollectionIDs(c *domain.ActionCollection, given *domain.DefaultResources, branchName string) {
	d := c.DefaultResources.Clone()
	if d == nil {
		d = &domain.DefaultResources{}
	}
	Overlay(d, given)

	if d.ApplicationID == "" {
		d.ApplicationID = c.ApplicationID
	}
	if d.CollectionID == "" {
		d.CollectionID = c.ID
	}
	d.BranchName = branchName
	c.DefaultResources = d

	for _, dto := range []*domain.ActionCollectionDTO{c.UnpublishedCollection, c.PublishedCollection} {
		if dto == nil {
			continue
		}
		dd := dto.DefaultResources.Clone()
		if dd == nil {
			dd = &domain.DefaultResources{}
		}
		if dd.PageID == "" {
			dd.PageID = dto.PageID
		}
		dd.BranchName = branchName
		dto.DefaultResources = dd
	}
}
