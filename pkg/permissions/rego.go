package permissions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/domain"
)

// RegoProvider evaluates AllowQuery against the built-in module and any
// modules loaded from disk. Evaluation errors deny the operation.
type RegoProvider struct {
	mu        sync.RWMutex
	principal Principal
	modules   []Module
	query     rego.PreparedEvalQuery
	logger    zerolog.Logger
}

var _ Provider = (*RegoProvider)(nil)

// NewRegoProvider compiles the built-in modules plus extra.
func NewRegoProvider(ctx context.Context, principal Principal, logger zerolog.Logger, extra ...Module) (*RegoProvider, error) {
	p := &RegoProvider{
		principal: principal,
		logger:    logger.With().Str("component", "rego-permissions").Logger(),
	}
	if err := p.Reload(ctx, extra); err != nil {
		return nil, err
	}
	return p, nil
}

// Reload replaces the loaded modules with extra and recompiles. On failure
// the previous modules stay active.
func (p *RegoProvider) Reload(ctx context.Context, extra []Module) error {
	modules := append(BuiltinModules(), extra...)

	opts := []func(*rego.Rego){rego.Query(AllowQuery)}
	for i := range modules {
		if _, err := ast.ParseModule(modules[i].Name, modules[i].Rego); err != nil {
			return fmt.Errorf("failed to parse module %s: %w", modules[i].Name, err)
		}
		opts = append(opts, rego.Module(modules[i].Name, modules[i].Rego))
	}

	query, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare permission query: %w", err)
	}

	p.mu.Lock()
	p.modules = modules
	p.query = query
	p.mu.Unlock()

	p.logger.Debug().
		Int("modules", len(modules)).
		Msg("Permission modules compiled")

	return nil
}

// Modules returns the active modules.
func (p *RegoProvider) Modules() []Module {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return append([]Module(nil), p.modules...)
}

func (p *RegoProvider) CanCreatePage(ctx context.Context, app *domain.Application) bool {
	return p.allow(ctx, OperationCreatePage, "application", app.ID, app.Name, app.Policies)
}

func (p *RegoProvider) CanCreateAction(ctx context.Context, page *domain.NewPage) bool {
	return p.allow(ctx, OperationCreateAction, "page", page.ID, page.ContextName(), page.Policies)
}

func (p *RegoProvider) HasEditPermission(ctx context.Context, collection *domain.ActionCollection) bool {
	return p.allow(ctx, OperationEdit, "actionCollection", collection.ID, collection.Name(), collection.Policies)
}

func (p *RegoProvider) allow(ctx context.Context, operation, kind, id, name string, policies []domain.Policy) bool {
	input := regoInput{
		Principal: p.principal,
		Operation: operation,
		Resource: regoResource{
			Kind:     kind,
			ID:       id,
			Name:     name,
			Policies: make([]regoPolicy, 0, len(policies)),
		},
		Context: &regoContext{Timestamp: time.Now().UTC()},
	}
	for _, policy := range policies {
		groups := policy.PermissionGroups
		if groups == nil {
			groups = []string{}
		}
		input.Resource.Policies = append(input.Resource.Policies, regoPolicy{
			Permission:       policy.Permission,
			PermissionGroups: groups,
		})
	}

	p.mu.RLock()
	query := p.query
	p.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		p.logger.Error().Err(err).
			Str("operation", operation).
			Str("resource", id).
			Msg("Permission evaluation failed")
		return false
	}

	return results.Allowed()
}
