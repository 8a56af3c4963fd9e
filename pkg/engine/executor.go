package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultParallelism  = 4
	defaultMaxRetries   = 3
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryDelay       = time.Minute
)

// ExecOptions tunes one apply run.
type ExecOptions struct {
	// Parallelism caps the number of steps in flight at once.
	Parallelism int

	// ContinueOnError keeps independent branches running after a step
	// fails. Dependents of the failed step are always skipped.
	ContinueOnError bool

	// MaxRetries bounds how many times a transiently failing adapter call
	// is retried before the step fails.
	MaxRetries int

	// RetryBackoff is the delay before the first retry. It doubles per
	// attempt, capped at one minute, with jitter.
	RetryBackoff time.Duration
}

// Executor applies a plan against the adapters, committing each resource's
// snapshot to the store as it lands. Interrupting a run and re-applying
// later converges: committed resources diff as no-ops next time.
type Executor struct {
	adapters AdapterRegistry
	store    Store
	events   EventSink
	log      zerolog.Logger
	opts     ExecOptions
	tracer   trace.Tracer
}

// NewExecutor builds an executor. A nil events sink is replaced with a
// no-op sink; zero options get the defaults.
func NewExecutor(adapters AdapterRegistry, store Store, events EventSink, log zerolog.Logger, opts ExecOptions) *Executor {
	if events == nil {
		events = NopEventSink{}
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &Executor{
		adapters: adapters,
		store:    store,
		events:   events,
		log:      log,
		opts:     opts,
		tracer:   otel.Tracer("captura/engine"),
	}
}

// runtime is the shared mutable state of one apply run.
type runtime struct {
	mu sync.Mutex

	// outputs holds plaintext outputs produced by this run, keyed by
	// logical resource name.
	outputs map[string]map[string]any

	// state is the record loaded at the start of the run. Committed
	// snapshots also land here so later steps observe them.
	state *StateRecord

	graph *Graph
	runID string
}

// lookup resolves a referenced resource's outputs, preferring outputs
// produced earlier in this run over the loaded state.
func (rt *runtime) lookup(name string) (plain, redacted map[string]any, ok bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if out, found := rt.outputs[name]; found {
		return out, out, true
	}
	res, found := rt.graph.Resource(name)
	if !found {
		return nil, nil, false
	}
	rs, found := rt.state.Resource(res.ID())
	if !found || rs.Status == StatusDeleted {
		return nil, nil, false
	}
	return rs.Outputs, rs.Outputs, true
}

type stepOutcome struct {
	step     Step
	result   StepResult
	outputs  map[string]any
	snapshot *ResourceState
}

// Apply executes the plan. It acquires the store's advisory lock for the
// duration of the run and returns a report of every step's disposition. The
// returned error is non-nil when the run could not start or did not apply
// cleanly; the report is valid either way once the run has started.
func (e *Executor) Apply(ctx context.Context, graph *Graph, plan *Plan) (*Report, error) {
	runID := uuid.NewString()
	report := &Report{RunID: runID, StartedAt: time.Now()}

	if err := e.store.Lock(ctx, runID); err != nil {
		return nil, fmt.Errorf("acquiring state lock: %w", err)
	}
	defer func() {
		if err := e.store.Unlock(context.WithoutCancel(ctx), runID); err != nil {
			e.log.Error().Err(err).Str("run_id", runID).Msg("releasing state lock")
		}
	}()

	state, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}

	rt := &runtime{
		outputs: make(map[string]map[string]any),
		state:   state,
		graph:   graph,
		runID:   runID,
	}

	e.log.Info().
		Str("run_id", runID).
		Int("steps", len(plan.Steps)).
		Int("parallelism", e.opts.Parallelism).
		Msg("apply starting")
	e.events.Append(ctx, Event{
		RunID: runID, Level: "info",
		Message:   fmt.Sprintf("apply starting: %d step(s)", len(plan.Steps)),
		Timestamp: time.Now(),
	})

	e.schedule(ctx, rt, plan, report)

	report.FinishedAt = time.Now()
	if report.Succeeded > 0 || report.Failed > 0 {
		if err := e.store.Finalize(context.WithoutCancel(ctx), runID); err != nil {
			e.log.Error().Err(err).Str("run_id", runID).Msg("finalizing state record")
		}
	}

	level := "info"
	if !report.OK() {
		level = "error"
	}
	e.events.Append(ctx, Event{
		RunID: runID, Level: level,
		Message: fmt.Sprintf("apply finished: %d succeeded, %d failed, %d skipped, %d unchanged",
			report.Succeeded, report.Failed, report.Skipped, report.Unchanged),
		Timestamp: time.Now(),
	})
	e.log.Info().
		Str("run_id", runID).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Msg("apply finished")

	return report, report.Err()
}

// schedule dispatches mutating steps to a worker pool as their dependencies
// complete. Dependents of failed steps are skipped transitively.
func (e *Executor) schedule(ctx context.Context, rt *runtime, plan *Plan, report *Report) {
	steps := make(map[string]Step, len(plan.Steps))
	indeg := make(map[string]int, len(plan.Steps))
	dependents := make(map[string][]string)

	for _, step := range plan.Steps {
		if step.Op == OpNoop {
			report.record(StepResult{
				StepID:   step.ID,
				Resource: step.ResourceID(),
				Op:       OpNoop,
				Status:   StepUnchanged,
			})
			continue
		}
		steps[step.ID] = step
	}
	for id, step := range steps {
		for _, dep := range step.DependsOn {
			if _, inPlan := steps[dep]; !inPlan {
				continue
			}
			indeg[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for id := range steps {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	ready := make(chan Step)
	done := make(chan stepOutcome)
	var wg sync.WaitGroup
	for i := 0; i < e.opts.Parallelism; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range ready {
				done <- e.runStep(ctx, rt, step)
			}
		}()
	}

	settled := make(map[string]bool, len(steps))
	inflight := 0
	stopping := false

	for len(settled) < len(steps) {
		if stopping && inflight == 0 {
			for id := range steps {
				e.skipTree(ctx, rt, id, "run stopped after failure", report, steps, dependents, settled)
			}
			break
		}

		canDispatch := len(queue) > 0 && !stopping && ctx.Err() == nil
		if canDispatch {
			next := steps[queue[0]]
			select {
			case ready <- next:
				queue = queue[1:]
				inflight++
				continue
			case out := <-done:
				inflight--
				e.settle(ctx, rt, out, report, steps, dependents, &queue, settled, &stopping)
			}
			continue
		}

		if inflight == 0 {
			// Nothing running and nothing dispatchable. Either the context
			// is gone or the plan's dependency edges left steps stranded.
			cause := "run stopped"
			if ctx.Err() != nil {
				cause = "run canceled"
			}
			for id := range steps {
				e.skipTree(ctx, rt, id, cause, report, steps, dependents, settled)
			}
			break
		}

		out := <-done
		inflight--
		e.settle(ctx, rt, out, report, steps, dependents, &queue, settled, &stopping)
	}

	close(ready)
	wg.Wait()
}

// settle records a finished step, commits its snapshot, and releases any
// dependents that became ready.
func (e *Executor) settle(ctx context.Context, rt *runtime, out stepOutcome, report *Report,
	steps map[string]Step, dependents map[string][]string,
	queue *[]string, settled map[string]bool, stopping *bool) {

	id := out.step.ID
	settled[id] = true

	if out.result.Status == StepSucceeded && out.snapshot != nil {
		if err := e.store.CommitResource(context.WithoutCancel(ctx), *out.snapshot); err != nil {
			out.result.Status = StepFailed
			out.result.Error = fmt.Sprintf("committing state: %v", err)
		} else {
			rt.mu.Lock()
			rt.state.Resources[out.snapshot.ID()] = *out.snapshot
			if out.outputs != nil {
				rt.outputs[out.step.ResourceName] = out.outputs
			}
			rt.mu.Unlock()
		}
	}

	report.record(out.result)

	if out.result.Status == StepSucceeded {
		released := dependents[id]
		sort.Strings(released)
		for _, dep := range released {
			remaining := 0
			for _, need := range steps[dep].DependsOn {
				if _, inPlan := steps[need]; inPlan && !settled[need] {
					remaining++
				}
			}
			if remaining == 0 && !settled[dep] {
				*queue = append(*queue, dep)
			}
		}
		sort.Strings(*queue)
		return
	}

	// Failure path: dependents can never run.
	for _, dep := range dependents[id] {
		e.skipTree(ctx, rt, dep, fmt.Sprintf("depends on failed step %q", id),
			report, steps, dependents, settled)
	}
	if !e.opts.ContinueOnError {
		*stopping = true
	}
}

func (e *Executor) skipTree(ctx context.Context, rt *runtime, id, cause string, report *Report,
	steps map[string]Step, dependents map[string][]string, settled map[string]bool) {
	if settled[id] {
		return
	}
	settled[id] = true
	step := steps[id]
	report.record(StepResult{
		StepID:   step.ID,
		Resource: step.ResourceID(),
		Op:       step.Op,
		Status:   StepSkipped,
		Error:    cause,
	})
	e.events.Append(ctx, Event{
		RunID: rt.runID, Resource: step.ResourceID(), Level: "warning",
		Message:   "skipped: " + cause,
		Timestamp: time.Now(),
	})
	for _, dep := range dependents[id] {
		e.skipTree(ctx, rt, dep, fmt.Sprintf("depends on skipped step %q", id),
			report, steps, dependents, settled)
	}
}

// runStep performs one mutating step, including retries and the fallback
// replacement when an adapter rejects an in-place update.
func (e *Executor) runStep(ctx context.Context, rt *runtime, step Step) stepOutcome {
	start := time.Now()
	resourceID := step.ResourceID()

	ctx, span := e.tracer.Start(ctx, "engine.step",
		trace.WithAttributes(
			attribute.String("step.id", step.ID),
			attribute.String("resource.id", resourceID),
			attribute.String("op", string(step.Op)),
		))
	defer span.End()

	log := e.log.With().
		Str("run_id", rt.runID).
		Str("step", step.ID).
		Str("resource", resourceID).
		Logger()
	log.Info().Msg("step starting")
	e.events.Append(ctx, Event{
		RunID: rt.runID, Resource: resourceID, Level: "info",
		Message:   string(step.Op) + " starting",
		Timestamp: time.Now(),
	})

	out := stepOutcome{step: step}
	out.result = StepResult{StepID: step.ID, Resource: resourceID, Op: step.Op}

	adapter, ok := e.adapters.Adapter(step.ResourceType)
	var attempts int
	var err error
	if !ok {
		err = NewPermanentError(fmt.Sprintf("no adapter registered for type %q", step.ResourceType), nil)
		attempts = 1
	} else if step.Op == OpDelete {
		attempts, err = e.deleteStep(ctx, rt, adapter, step, &out)
	} else {
		attempts, err = e.applyStep(ctx, rt, adapter, step, &out)
	}

	out.result.Attempts = attempts
	out.result.Duration = time.Since(start)
	if err != nil {
		out.result.Status = StepFailed
		out.result.Error = err.Error()
		out.snapshot = e.failureSnapshot(rt, step)
		if out.snapshot != nil {
			if cerr := e.store.CommitResource(context.WithoutCancel(ctx), *out.snapshot); cerr != nil {
				log.Error().Err(cerr).Msg("committing failed status")
			}
			out.snapshot = nil
		}
		log.Error().Err(err).Int("attempts", attempts).Msg("step failed")
		e.events.Append(ctx, Event{
			RunID: rt.runID, Resource: resourceID, Level: "error",
			Message:   string(step.Op) + " failed: " + err.Error(),
			Timestamp: time.Now(),
		})
		return out
	}

	out.result.Status = StepSucceeded
	log.Info().Dur("duration", out.result.Duration).Msg("step succeeded")
	e.events.Append(ctx, Event{
		RunID: rt.runID, Resource: resourceID, Level: "info",
		Message:   string(step.Op) + " succeeded",
		Timestamp: time.Now(),
	})
	return out
}

// applyStep resolves inputs and runs the adapter's create or update. On
// success it fills the outcome's snapshot and plaintext outputs.
func (e *Executor) applyStep(ctx context.Context, rt *runtime, adapter Adapter, step Step, out *stepOutcome) (int, error) {
	res, ok := rt.graph.Resource(step.ResourceName)
	if !ok {
		return 1, NewPermanentError("resource not present in graph", nil).WithResource(step.ResourceID())
	}

	plain, redacted, err := resolveInputs(res.Inputs(), rt.lookup)
	if err != nil {
		return 1, NewPermanentError("resolving inputs", err).WithResource(res.ID())
	}

	req := AdapterRequest{
		Type:         res.Type(),
		Name:         res.Name(),
		Inputs:       plain,
		PriorOutputs: step.PriorOutputs,
	}

	var result *AdapterResult
	attempts, err := e.withRetry(ctx, step.ID, func() error {
		var callErr error
		switch step.Op {
		case OpCreate:
			result, callErr = adapter.Create(ctx, req)
		case OpUpdate:
			result, callErr = adapter.Update(ctx, req)
		default:
			callErr = NewPermanentError(fmt.Sprintf("unexpected operation %q", step.Op), nil)
		}
		return callErr
	})

	if IsUnsupported(err) && step.Op == OpUpdate {
		result, attempts, err = e.replaceInPlace(ctx, adapter, req, attempts)
	}
	if err != nil {
		return attempts, err
	}
	if result == nil {
		return attempts, NewPermanentError("adapter returned no result", nil).WithResource(res.ID())
	}

	deps := rt.graph.Dependencies(res.Name())
	dependsOn := make([]string, 0, len(deps))
	for _, dep := range deps {
		if depRes, found := rt.graph.Resource(dep); found {
			dependsOn = append(dependsOn, depRes.ID())
		}
	}
	sort.Strings(dependsOn)

	out.outputs = result.Outputs
	out.snapshot = &ResourceState{
		Type:      res.Type(),
		Name:      res.Name(),
		Status:    StatusUpdated,
		Inputs:    redacted,
		Outputs:   redactOutputs(result.Outputs, result.SecretOutputs),
		DependsOn: dependsOn,
		AppliedAt: time.Now().UTC(),
	}
	return attempts, nil
}

// replaceInPlace handles an adapter declining an in-place update mid-run:
// the resource is replaced following its type's policy.
func (e *Executor) replaceInPlace(ctx context.Context, adapter Adapter, req AdapterRequest, priorAttempts int) (*AdapterResult, int, error) {
	caps := CapabilitiesFor(req.Type)
	e.log.Warn().
		Str("resource", req.ResourceID()).
		Str("policy", string(caps.Replacement)).
		Msg("in-place update rejected, replacing")

	deleteReq := req
	deleteReq.Inputs = nil

	if caps.Replacement == DeleteBeforeCreate {
		attempts, err := e.withRetry(ctx, "delete "+req.ResourceID(), func() error {
			return adapter.Delete(ctx, deleteReq)
		})
		priorAttempts += attempts
		if err != nil {
			return nil, priorAttempts, err
		}
	}

	var result *AdapterResult
	attempts, err := e.withRetry(ctx, "create "+req.ResourceID(), func() error {
		var callErr error
		result, callErr = adapter.Create(ctx, req)
		return callErr
	})
	priorAttempts += attempts
	if err != nil {
		return nil, priorAttempts, err
	}

	if caps.Replacement == CreateBeforeDelete && len(req.PriorOutputs) > 0 {
		if err := adapter.Delete(ctx, deleteReq); err != nil {
			// The replacement is live and will be committed; the stale
			// instance is orphaned, not fatal.
			e.log.Warn().Err(err).
				Str("resource", req.ResourceID()).
				Msg("deleting replaced instance failed")
		}
	}
	return result, priorAttempts, nil
}

// deleteStep runs the adapter delete. Replacement deletes leave the state
// record to the paired create; plain deletes commit a deleted snapshot.
func (e *Executor) deleteStep(ctx context.Context, rt *runtime, adapter Adapter, step Step, out *stepOutcome) (int, error) {
	req := AdapterRequest{
		Type:         step.ResourceType,
		Name:         step.ResourceName,
		PriorOutputs: step.PriorOutputs,
	}
	attempts, err := e.withRetry(ctx, step.ID, func() error {
		return adapter.Delete(ctx, req)
	})
	if err != nil {
		return attempts, err
	}
	if !step.Replacement {
		out.snapshot = &ResourceState{
			Type:      step.ResourceType,
			Name:      step.ResourceName,
			Status:    StatusDeleted,
			AppliedAt: time.Now().UTC(),
		}
	}
	return attempts, nil
}

// failureSnapshot builds the failed-status record for a step, preserving
// whatever outputs were last committed.
func (e *Executor) failureSnapshot(rt *runtime, step Step) *ResourceState {
	if step.Op == OpDelete && step.Replacement {
		return nil
	}
	rt.mu.Lock()
	prior, havePrior := rt.state.Resource(step.ResourceID())
	rt.mu.Unlock()

	snap := &ResourceState{
		Type:      step.ResourceType,
		Name:      step.ResourceName,
		Status:    StatusFailed,
		AppliedAt: time.Now().UTC(),
	}
	if havePrior {
		snap.Inputs = prior.Inputs
		snap.Outputs = prior.Outputs
		snap.DependsOn = prior.DependsOn
	}
	return snap
}

// withRetry runs fn, retrying transient failures with exponential backoff
// and jitter. Permanent and unsupported failures return immediately.
func (e *Executor) withRetry(ctx context.Context, label string, fn func() error) (int, error) {
	delay := e.opts.RetryBackoff
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsTransient(err) || attempt > e.opts.MaxRetries {
			return attempt, err
		}

		wait := delay
		if wait > maxRetryDelay {
			wait = maxRetryDelay
		}
		wait += time.Duration(rand.Int63n(int64(wait)/4 + 1))
		e.log.Warn().
			Str("step", label).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Err(err).
			Msg("transient failure, retrying")

		select {
		case <-ctx.Done():
			return attempt, NewPermanentError("canceled while waiting to retry", ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
	}
}
