package domain

import (
	"time"

	"github.com/appforge/appforge/pkg/idgen"
)

// now is the clock used for audit timestamps.
var now = time.Now

// Policy grants a permission to a set of permission groups.
type Policy struct {
	Permission       string   `json:"permission"`
	PermissionGroups []string `json:"permissionGroups,omitempty"`
}

// Allows reports whether any of groups is granted by the policy.
func (p Policy) Allows(groups []string) bool {
	for _, want := range p.PermissionGroups {
		for _, g := range groups {
			if g == want {
				return true
			}
		}
	}
	return false
}

// Entity is the lifecycle contract of every importable resource.
type Entity interface {
	GetID() string
	IsNew() bool
	IsDeleted() bool
	GetGitSyncID() string
	SetGitSyncID(id string)
	MakePristine()
	SanitiseToExportDBObject()
	UpdateForBulkWriteOperation()
}

// BaseDomain holds identity, audit and access fields. Resource types embed it.
//
// DeletedAt is the only soft-delete signal. Tools that expect a boolean
// "deleted" flag should read IsDeleted.
type BaseDomain struct {
	ID         string     `json:"id,omitempty" view:"public"`
	CreatedAt  *time.Time `json:"createdAt,omitempty" view:"internal"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty" view:"internal"`
	CreatedBy  string     `json:"createdBy,omitempty" view:"internal"`
	ModifiedBy string     `json:"modifiedBy,omitempty" view:"internal"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty" view:"public"`
	Policies   []Policy   `json:"policies,omitempty" view:"internal"`

	// UserPermissions is computed per request and never persisted.
	UserPermissions []string `json:"userPermissions,omitempty" view:"transient"`

	// GitSyncID identifies the same logical resource across branches and
	// instances. Assigned once, then carried forward verbatim.
	GitSyncID string `json:"gitSyncId,omitempty" view:"public"`
}

// GetID returns the storage id, empty before the first save.
func (b *BaseDomain) GetID() string { return b.ID }

// IsNew reports whether the entity has never been persisted.
func (b *BaseDomain) IsNew() bool { return b.ID == "" }

// IsDeleted reports whether the entity is soft-deleted.
func (b *BaseDomain) IsDeleted() bool { return b.DeletedAt != nil }

// GetGitSyncID returns the cross-branch sync id.
func (b *BaseDomain) GetGitSyncID() string { return b.GitSyncID }

// SetGitSyncID sets the cross-branch sync id.
func (b *BaseDomain) SetGitSyncID(id string) { b.GitSyncID = id }

// MarkDeleted soft-deletes the entity.
func (b *BaseDomain) MarkDeleted() {
	t := now().UTC()
	deletedAt := t
	b.DeletedAt = &deletedAt
	b.UpdatedAt = &t
}

// SanitiseToExportDBObject strips audit and permission fields so that only
// fields meant to cross instance boundaries remain.
func (b *BaseDomain) SanitiseToExportDBObject() {
	b.CreatedAt = nil
	b.UpdatedAt = nil
	b.UserPermissions = nil
	b.Policies = nil
	b.CreatedBy = ""
	b.ModifiedBy = ""
}

// MakePristine prepares the entity to be saved as a new document. The
// policies container is kept but emptied.
func (b *BaseDomain) MakePristine() {
	b.ID = ""
	b.UpdatedAt = nil
	if b.Policies != nil {
		b.Policies = b.Policies[:0]
	}
}

// UpdateForBulkWriteOperation fills the fields a bulk insert does not
// generate: the id and createdAt when absent, and updatedAt always.
func (b *BaseDomain) UpdateForBulkWriteOperation() {
	if b.ID == "" {
		b.ID = idgen.NewID()
	}
	t := now().UTC()
	if b.CreatedAt == nil {
		createdAt := t
		b.CreatedAt = &createdAt
	}
	b.UpdatedAt = &t
}

// clone returns a copy that shares no mutable state with b.
func (b *BaseDomain) clone() BaseDomain {
	c := *b
	c.CreatedAt = cloneTime(b.CreatedAt)
	c.UpdatedAt = cloneTime(b.UpdatedAt)
	c.DeletedAt = cloneTime(b.DeletedAt)
	if b.Policies != nil {
		c.Policies = make([]Policy, len(b.Policies))
		for i, p := range b.Policies {
			c.Policies[i] = Policy{
				Permission:       p.Permission,
				PermissionGroups: append([]string(nil), p.PermissionGroups...),
			}
		}
	}
	if b.UserPermissions != nil {
		c.UserPermissions = append([]string{}, b.UserPermissions...)
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
