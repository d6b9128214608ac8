package permissions

import "time"

// Module is a Rego policy module evaluated by RegoProvider.
type Module struct {
	// Name is the unique name of the module.
	Name string `json:"name"`

	// Description is taken from the leading comment of the source file.
	Description string `json:"description,omitempty"`

	// Rego contains the Rego source.
	Rego string `json:"rego"`

	// Source is the file the module was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the module was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// regoInput is the document bound to input during evaluation.
type regoInput struct {
	Principal Principal    `json:"principal"`
	Operation string       `json:"operation"`
	Resource  regoResource `json:"resource"`
	Context   *regoContext `json:"context,omitempty"`
}

type regoResource struct {
	Kind     string       `json:"kind"`
	ID       string       `json:"id"`
	Name     string       `json:"name,omitempty"`
	Policies []regoPolicy `json:"policies"`
}

type regoPolicy struct {
	Permission       string   `json:"permission"`
	PermissionGroups []string `json:"permissionGroups"`
}

type regoContext struct {
	Timestamp time.Time `json:"timestamp"`
}
