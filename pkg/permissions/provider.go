// Package permissions answers the access questions asked while importing
// resources: may the acting principal create a page in an application, an
// action under a page, or edit an existing action collection.
//
// Three providers are available. PolicySetProvider intersects the principal's
// permission groups with the policies stored on each entity. RegoProvider
// delegates the same question to Open Policy Agent. Static returns a fixed
// answer and is meant for tooling.
package permissions

import (
	"context"
	"slices"

	"github.com/appforge/appforge/pkg/domain"
)

// Permissions stored in entity policies.
const (
	PermissionCreatePages       = "create:pages"
	PermissionReadPages         = "read:pages"
	PermissionManagePages       = "manage:pages"
	PermissionDeletePages       = "delete:pages"
	PermissionCreatePageActions = "create:pageActions"
	PermissionReadActions       = "read:actions"
	PermissionManageActions     = "manage:actions"
	PermissionDeleteActions     = "delete:actions"
	PermissionExecuteActions    = "execute:actions"
)

// Operations evaluated by a Provider.
const (
	OperationCreatePage   = "create_page"
	OperationCreateAction = "create_action"
	OperationEdit         = "edit"
)

// Provider is the permission gate consulted during an import.
type Provider interface {
	CanCreatePage(ctx context.Context, app *domain.Application) bool
	CanCreateAction(ctx context.Context, page *domain.NewPage) bool
	HasEditPermission(ctx context.Context, collection *domain.ActionCollection) bool
}

// Principal is the user an import runs as.
type Principal struct {
	UserID string   `json:"id"`
	Groups []string `json:"groups"`
}

// PolicySetProvider grants an operation when one of the principal's groups
// holds the required permission in the entity's policies.
type PolicySetProvider struct {
	principal Principal
}

var _ Provider = (*PolicySetProvider)(nil)

// NewPolicySetProvider returns a provider acting for principal.
func NewPolicySetProvider(principal Principal) *PolicySetProvider {
	return &PolicySetProvider{principal: principal}
}

func (p *PolicySetProvider) CanCreatePage(_ context.Context, app *domain.Application) bool {
	return p.granted(app.Policies, PermissionCreatePages)
}

func (p *PolicySetProvider) CanCreateAction(_ context.Context, page *domain.NewPage) bool {
	return p.granted(page.Policies, PermissionCreatePageActions)
}

func (p *PolicySetProvider) HasEditPermission(_ context.Context, collection *domain.ActionCollection) bool {
	return p.granted(collection.Policies, PermissionManageActions)
}

func (p *PolicySetProvider) granted(policies []domain.Policy, permission string) bool {
	for _, policy := range policies {
		if policy.Permission == permission && policy.Allows(p.principal.Groups) {
			return true
		}
	}
	return false
}

// Static answers every question with the same value.
type Static bool

var _ Provider = Static(false)

// AllowAll grants every operation.
const AllowAll = Static(true)

// DenyAll rejects every operation.
const DenyAll = Static(false)

func (s Static) CanCreatePage(context.Context, *domain.Application) bool { return bool(s) }

func (s Static) CanCreateAction(context.Context, *domain.NewPage) bool { return bool(s) }

func (s Static) HasEditPermission(context.Context, *domain.ActionCollection) bool { return bool(s) }

var (
	applicationToPage = map[string]string{
		PermissionManagePages: PermissionManagePages,
		PermissionReadPages:   PermissionReadPages,
		PermissionDeletePages: PermissionDeletePages,
		PermissionCreatePages: PermissionCreatePageActions,
	}
	pageToAction = map[string]string{
		PermissionManagePages:       PermissionManageActions,
		PermissionReadPages:         PermissionReadActions,
		PermissionDeletePages:       PermissionDeleteActions,
		PermissionCreatePageActions: PermissionExecuteActions,
	}
)

// ApplicationPolicies grants groups every page permission on a new
// application.
func ApplicationPolicies(groups []string) []domain.Policy {
	permissions := []string{PermissionManagePages, PermissionReadPages, PermissionDeletePages, PermissionCreatePages}
	policies := make([]domain.Policy, 0, len(permissions))
	for _, permission := range permissions {
		policies = append(policies, domain.Policy{
			Permission:       permission,
			PermissionGroups: slices.Clone(groups),
		})
	}
	return policies
}

// PagePolicies derives the policies of a page created in app.
func PagePolicies(app *domain.Application) []domain.Policy {
	return inherit(app.Policies, applicationToPage)
}

// ActionPolicies derives the policies of an action or action collection
// created under page.
func ActionPolicies(page *domain.NewPage) []domain.Policy {
	return inherit(page.Policies, pageToAction)
}

func inherit(parent []domain.Policy, mapping map[string]string) []domain.Policy {
	byPermission := make(map[string][]string)
	var order []string
	for _, policy := range parent {
		child, ok := mapping[policy.Permission]
		if !ok {
			continue
		}
		if _, seen := byPermission[child]; !seen {
			order = append(order, child)
			byPermission[child] = nil
		}
		for _, g := range policy.PermissionGroups {
			if !slices.Contains(byPermission[child], g) {
				byPermission[child] = append(byPermission[child], g)
			}
		}
	}

	policies := make([]domain.Policy, 0, len(order))
	for _, permission := range order {
		policies = append(policies, domain.Policy{
			Permission:       permission,
			PermissionGroups: byPermission[permission],
		})
	}
	return policies
}
