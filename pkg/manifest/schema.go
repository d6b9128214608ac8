package manifest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// SchemaRegistry manages CUE schemas for validation. Every schema is a CUE
// source declaring one or more definitions; data is validated against a
// definition by name, for example "#ActionCollection". A cue.Context is not
// safe for concurrent use, so evaluation holds the write lock.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("manifest", builtinManifestSchema); err != nil {
		return nil, err
	}
	return sr, nil
}

// RegisterSchema compiles schema and registers every definition it
// declares. A definition already registered is replaced.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	it, err := val.Fields(cue.Definitions(true))
	if err != nil {
		return fmt.Errorf("failed to list definitions of %s: %w", name, err)
	}
	for it.Next() {
		if sel := it.Selector(); sel.IsDefinition() {
			sr.schemas[sel.String()] = it.Value()
		}
	}
	return nil
}

// GetSchema retrieves a definition by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ListSchemas returns all registered definition names, sorted.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateAgainstSchema validates a Go value against a named definition.
// The value is encoded through its JSON field names.
func (sr *SchemaRegistry) ValidateAgainstSchema(_ context.Context, schemaName string, data any) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	return unify(schema, dataVal)
}

// ValidateJSON validates a JSON document against a named definition.
func (sr *SchemaRegistry) ValidateJSON(_ context.Context, schemaName string, data []byte) error {
	expr, err := cuejson.Extract("manifest.json", data)
	if err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	schema, ok := sr.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	dataVal := sr.ctx.BuildExpr(expr)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to build value: %w", err)
	}

	return unify(schema, dataVal)
}

func unify(schema, data cue.Value) error {
	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return ValidationErrors(convertCUEErrors(err))
	}
	return nil
}

// ValidationError represents a validation error with location information.
type ValidationError struct {
	// Path is the field path of the error, e.g. "pageList.0.unpublishedPage.name".
	Path string `json:"path,omitempty"`

	// Line and Column locate the error in the validated document, when known.
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`

	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every violation found in one document.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// convertCUEErrors converts CUE errors to ValidationError slice.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError

	for _, e := range cueerrors.Errors(err) {
		v := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			v.Line = pos[0].Line()
			v.Column = pos[0].Column()
		}
		out = append(out, v)
	}

	return out
}

// Built-in schema definitions

const builtinManifestSchema = `
// Canonical and branch ids of a resource and its ancestors.
#DefaultResources: {
	applicationId?: string
	pageId?:        string
	collectionId?:  string
	actionId?:      string
	branchName?:    string
}

#Policy: {
	permission:        string & != ""
	permissionGroups?: [...string]
}

// Fields every importable resource may carry. Audit and access fields are
// accepted and discarded on import.
#Base: {
	id?:              string
	gitSyncId?:       string
	deletedAt?:       string
	createdAt?:       string
	updatedAt?:       string
	createdBy?:       string
	modifiedBy?:      string
	policies?:        [...#Policy]
	userPermissions?: [...string]
}

#GitMetadata: {
	defaultArtifactId: string & != ""
	branchName:        string & != ""
	remoteUrl?:        string
}

#Application: {
	#Base
	name:         string & != ""
	workspaceId?: string
	pages?: [...{
		id:         string
		isDefault?: bool
	}]
	gitApplicationMetadata?: #GitMetadata
}

#PageDTO: {
	name:       string & != ""
	slug?:      string
	isHidden?:  bool
	deletedAt?: string
}

#Page: {
	#Base
	applicationId?:    string
	defaultResources?: #DefaultResources
	unpublishedPage:   #PageDTO
	publishedPage?:    #PageDTO
}

#ActionDTO: {
	id?:               string
	name:              string & != ""
	pageId?:           string
	collectionId?:     string
	defaultResources?: #DefaultResources
	deletedAt?:        string
}

#Action: {
	#Base
	applicationId?:     string
	pluginId?:          string
	defaultResources?:  #DefaultResources
	unpublishedAction?: #ActionDTO
	publishedAction?:   #ActionDTO
}

#JSValue: {
	name:   string & != ""
	value?: string
}

#ActionCollectionDTO: {
	id?:               string
	// Collection names are JS identifiers.
	name:              string & =~"^[A-Za-z_$][A-Za-z0-9_$]*$"
	pageId?:           string
	applicationId?:    string
	workspaceId?:      string
	pluginId?:         string
	pluginType?:       string
	body?:             string
	variables?:        [...#JSValue]
	defaultResources?: #DefaultResources
	deletedAt?:        string
}

#ActionCollection: {
	#Base
	applicationId?:         string
	workspaceId?:           string
	defaultResources?:      #DefaultResources
	unpublishedCollection?: #ActionCollectionDTO
	publishedCollection?:   #ActionCollectionDTO
}

#ApplicationJSON: {
	clientSchemaVersion?: int & >=0
	serverSchemaVersion:  int & >=1 & <=1
	exportedApplication:  #Application
	pageList:             [...#Page]
	actionList?:          null | [...#Action]
	actionCollectionList?: null | [...#ActionCollection]
}
`
