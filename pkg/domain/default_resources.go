package domain

// DefaultResources records the canonical, branch-independent ids of a
// resource and of its ancestor containers. The JSON names are part of the
// export format.
type DefaultResources struct {
	ApplicationID string `json:"applicationId,omitempty"`
	PageID        string `json:"pageId,omitempty"`
	CollectionID  string `json:"collectionId,omitempty"`
	ActionID      string `json:"actionId,omitempty"`
	BranchName    string `json:"branchName,omitempty"`
}

// Clone returns a copy of d, or nil when d is nil.
func (d *DefaultResources) Clone() *DefaultResources {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// IsEmpty reports whether no canonical id is set. BranchName is ignored.
func (d *DefaultResources) IsEmpty() bool {
	return d == nil || (d.ApplicationID == "" && d.PageID == "" && d.CollectionID == "" && d.ActionID == "")
}
