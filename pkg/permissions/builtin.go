package permissions

// AllowQuery is the decision every module contributes to.
const AllowQuery = "data.appforge.permissions.allow"

// BuiltinModules returns the modules loaded by every RegoProvider.
func BuiltinModules() []Module {
	return []Module{
		policyGroupsModule(),
	}
}

// policyGroupsModule grants an operation when one of the principal's groups
// holds the permission the operation requires in the resource's policies.
func policyGroupsModule() Module {
	return Module{
		Name:        "policy-groups",
		Description: "Grants operations through permission groups stored on the resource",
		Rego: `package appforge.permissions

import rego.v1

default allow := false

required_permission := {
	"create_page": "create:pages",
	"create_action": "create:pageActions",
	"edit": "manage:actions",
}

allow if {
	permission := required_permission[input.operation]
	some policy in input.resource.policies
	policy.permission == permission
	some group in policy.permissionGroups
	group in input.principal.groups
}
`,
	}
}
