package imports

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/appforge/appforge/pkg/defaultresources"
	"github.com/appforge/appforge/pkg/domain"
	"github.com/appforge/appforge/pkg/telemetry"
)

// Outcome is the terminal state of one imported resource.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// FailurePolicy decides what a denied or failed resource does to the rest
// of the batch.
type FailurePolicy int

const (
	// FailurePolicyContinue records the failure and imports the remaining
	// resources.
	FailurePolicyContinue FailurePolicy = iota

	// FailurePolicyAbort stops at the first denied or failed resource and
	// returns its error with no resources to persist.
	FailurePolicyAbort
)

func (p FailurePolicy) String() string {
	if p == FailurePolicyAbort {
		return "abort"
	}
	return "continue"
}

// ResourceResult records what happened to the resource at Index in the
// input batch. Resource is the reconciled copy for created and updated
// outcomes and nil otherwise.
type ResourceResult[R any] struct {
	Index     int
	GitSyncID string
	Outcome   Outcome
	Resource  R
	Err       error
}

// Result is the outcome of one import pass.
type Result[R any] struct {
	ImportID  string
	Resources []ResourceResult[R]
}

// Created returns the resources to insert.
func (r *Result[R]) Created() []R { return r.with(OutcomeCreated) }

// Updated returns the resources to update in place.
func (r *Result[R]) Updated() []R { return r.with(OutcomeUpdated) }

func (r *Result[R]) with(outcome Outcome) []R {
	var out []R
	for _, res := range r.Resources {
		if res.Outcome == outcome {
			out = append(out, res.Resource)
		}
	}
	return out
}

// Count returns the number of resources that ended in outcome.
func (r *Result[R]) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Resources {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Errors joins the errors of denied and failed resources.
func (r *Result[R]) Errors() error {
	var errs []error
	for _, res := range r.Resources {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Reconciler drives one ArtifactImportStrategy over a batch of incoming
// resources. Passes for the same artifact are serialised.
type Reconciler[R Importable[R], D any] struct {
	strategy ArtifactImportStrategy[R, D]
	policy   FailurePolicy
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	locks    *keyedMutex
}

// Option configures a Reconciler.
type Option func(*reconcilerOptions)

type reconcilerOptions struct {
	policy  FailurePolicy
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	locks   *keyedMutex
}

// WithFailurePolicy sets the failure policy, FailurePolicyContinue by
// default.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *reconcilerOptions) { o.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *reconcilerOptions) { o.logger = l }
}

// WithMetrics records pass and resource metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *reconcilerOptions) { o.metrics = m }
}

// WithTracer records a span per pass.
func WithTracer(t *telemetry.Tracer) Option {
	return func(o *reconcilerOptions) { o.tracer = t }
}

// WithArtifactLocks shares artifact locks between reconcilers of different
// resource kinds.
func WithArtifactLocks(l *ArtifactLocks) Option {
	return func(o *reconcilerOptions) { o.locks = l.m }
}

// ArtifactLocks serialises import passes per artifact id.
type ArtifactLocks struct {
	m *keyedMutex
}

// NewArtifactLocks returns an empty lock set.
func NewArtifactLocks() *ArtifactLocks {
	return &ArtifactLocks{m: newKeyedMutex()}
}

// Lock blocks until id is free or ctx is done. The returned func releases
// the lock.
func (l *ArtifactLocks) Lock(ctx context.Context, id string) (func(), error) {
	return l.m.lock(ctx, id)
}

// NewReconciler returns a reconciler for strategy.
func NewReconciler[R Importable[R], D any](strategy ArtifactImportStrategy[R, D], opts ...Option) *Reconciler[R, D] {
	o := reconcilerOptions{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locks == nil {
		o.locks = newKeyedMutex()
	}

	return &Reconciler[R, D]{
		strategy: strategy,
		policy:   o.policy,
		logger:   o.logger.With().Str("component", "import-reconciler").Str("kind", strategy.Kind()).Logger(),
		metrics:  o.metrics,
		tracer:   o.tracer,
		locks:    o.locks,
	}
}

// Reconcile imports resources into artifact in manifest order. The input
// resources are never modified; reconciled copies are returned in the
// result for the caller to persist.
//
// Under FailurePolicyAbort the first denied or failed resource ends the
// pass and its error is returned along with a result that holds no
// resources to persist. Lookup failures and context cancellation always
// end the pass.
func (r *Reconciler[R, D]) Reconcile(ctx context.Context, meta *ImportingMeta, mapped *MappedImportableResources, artifact domain.Artifact, resources []R) (result *Result[R], err error) {
	kind := r.strategy.Kind()
	timer := telemetry.NewTimer()

	unlock, err := r.locks.lock(ctx, artifact.ArtifactID())
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx, span := r.tracer.StartImportSpan(ctx, meta.ImportID, kind, artifact.ArtifactID())
	defer span.End()

	r.metrics.RecordPassStarted(kind)
	logger := r.logger.With().
		Str("import_id", meta.ImportID).
		Str("artifact_id", artifact.ArtifactID()).
		Str("branch", meta.BranchName).
		Logger()

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			telemetry.RecordError(span, err)
			r.metrics.RecordError(ErrorCode(err))
		} else {
			telemetry.RecordSuccess(span)
			span.SetAttributes(
				telemetry.AttrCreated.Int(result.Count(OutcomeCreated)),
				telemetry.AttrUpdated.Int(result.Count(OutcomeUpdated)),
				telemetry.AttrSkipped.Int(result.Count(OutcomeSkipped)),
				telemetry.AttrDenied.Int(result.Count(OutcomeDenied)),
				telemetry.AttrFailed.Int(result.Count(OutcomeFailed)),
			)
		}
		r.metrics.RecordPassCompleted(kind, status, timer.Duration())
	}()

	current, err := r.collect(r.strategy.GetExistingResourcesInCurrentArtifact(ctx, artifact.ArtifactID()), "current_artifact")
	if err != nil {
		return nil, err
	}

	var siblings map[string]R
	if git := artifact.GitMetadata(); git != nil && git.DefaultArtifactID != "" {
		siblings, err = r.collect(r.strategy.GetExistingResourcesInOtherBranches(ctx, git.DefaultArtifactID, artifact.ArtifactID()), "other_branches")
		if err != nil {
			return nil, err
		}
	}

	work := make([]R, len(resources))
	for i, res := range resources {
		work[i] = res.Clone()
	}

	// Renames run last to first so that a name freed by one rename and
	// taken by an earlier one is not renamed twice.
	for _, rename := range slices.Backward(mapped.ContextRenames) {
		r.strategy.RenameContextInImportableResources(work, rename.OldName, rename.NewName)
	}

	result = &Result[R]{ImportID: meta.ImportID}
	for i, res := range work {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rr := r.reconcileOne(ctx, meta, mapped, artifact, current, siblings, res)
		rr.Index = i
		result.Resources = append(result.Resources, rr)

		r.metrics.RecordResource(kind, string(rr.Outcome))
		r.metrics.RecordError(ErrorCode(rr.Err))
		telemetry.AddResourceEvent(span, rr.GitSyncID, string(rr.Outcome))

		event := logger.Debug()
		if rr.Err != nil {
			event = logger.Warn().Err(rr.Err)
		}
		event.Int("index", i).
			Str("git_sync_id", rr.GitSyncID).
			Str("outcome", string(rr.Outcome)).
			Msg("Resource reconciled")

		if rr.Err != nil && r.policy == FailurePolicyAbort {
			logger.Error().Err(rr.Err).Int("index", i).Msg("Import aborted")
			return &Result[R]{ImportID: meta.ImportID}, fmt.Errorf("%s %d: %w", kind, i, rr.Err)
		}
	}

	logger.Info().
		Int("created", result.Count(OutcomeCreated)).
		Int("updated", result.Count(OutcomeUpdated)).
		Int("skipped", result.Count(OutcomeSkipped)).
		Int("denied", result.Count(OutcomeDenied)).
		Int("failed", result.Count(OutcomeFailed)).
		Dur("duration", timer.Duration()).
		Msg("Import pass completed")

	return result, nil
}

func (r *Reconciler[R, D]) reconcileOne(ctx context.Context, meta *ImportingMeta, mapped *MappedImportableResources, artifact domain.Artifact, current, siblings map[string]R, res R) ResourceResult[R] {
	var none R
	rr := ResourceResult[R]{GitSyncID: res.GetGitSyncID()}

	dtos := r.strategy.ContextDTOs(res)
	if len(dtos) == 0 {
		rr.Outcome = OutcomeSkipped
		return rr
	}

	parent, err := r.strategy.UpdateContextInResource(dtos[0], mapped.ContextMap, meta.FallbackContextRef)
	if err != nil {
		return failed(rr, err)
	}
	if parent == nil {
		rr.Outcome = OutcomeSkipped
		return rr
	}
	for _, dto := range dtos[1:] {
		c, err := r.strategy.UpdateContextInResource(dto, mapped.ContextMap, meta.FallbackContextRef)
		if err != nil {
			return failed(rr, err)
		}
		if c == nil {
			r.strategy.DropContextDTO(res, dto)
		}
	}

	if existing, ok := current[rr.GitSyncID]; ok && rr.GitSyncID != "" {
		updated := existing.Clone()
		if err := r.strategy.UpdateExistingResource(ctx, meta, updated, res); err != nil {
			return failed(rr, err)
		}
		rr.Outcome = OutcomeUpdated
		rr.Resource = updated
		return rr
	}

	given := res.GetDefaultResources().Clone()
	res.MakePristine()
	res.UpdateForBulkWriteOperation()

	sibling := none
	if s, ok := siblings[rr.GitSyncID]; ok && rr.GitSyncID != "" {
		sibling = s
	}
	if err := r.strategy.PopulateDefaultResources(meta, mapped, artifact, sibling, res); err != nil {
		return failed(rr, newIdentityError(rr.GitSyncID, err))
	}

	if err := r.strategy.CreateNewResource(ctx, meta, res, parent); err != nil {
		return failed(rr, err)
	}

	if given != nil {
		merged := res.GetDefaultResources().Clone()
		if merged == nil {
			merged = &domain.DefaultResources{}
		}
		defaultresources.Overlay(merged, given)
		merged.BranchName = meta.BranchName
		res.SetDefaultResources(merged)
	}

	rr.GitSyncID = res.GetGitSyncID()
	rr.Outcome = OutcomeCreated
	rr.Resource = res
	return rr
}

func failed[R any](rr ResourceResult[R], err error) ResourceResult[R] {
	rr.Err = err
	rr.Outcome = OutcomeFailed
	if IsAccessDenied(err) {
		rr.Outcome = OutcomeDenied
	}
	return rr
}

// collect drains seq into a map keyed by sync id. Resources without a sync
// id cannot be matched and are dropped.
func (r *Reconciler[R, D]) collect(seq iter.Seq2[R, error], scope string) (map[string]R, error) {
	out := make(map[string]R)
	n := 0
	for res, err := range seq {
		if err != nil {
			return nil, newLookupError(scope, err)
		}
		n++
		if id := res.GetGitSyncID(); id != "" {
			out[id] = res
		}
	}
	r.metrics.RecordScanned(r.strategy.Kind(), scope, n)
	return out, nil
}

// keyedMutex hands out one lock per key. Waiting honours ctx.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.release(key, l)
		}, nil
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) release(key string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}
