package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Diff compares the desired graph against the last-applied state record and
// produces a plan. It is a pure function of its arguments: no adapter or
// network calls, so planning twice over the same inputs yields identical
// plans.
//
// Create and update steps come out in the graph's stable topological order.
// Delete steps for resources that have left the configuration come out in
// reverse dependency order, after all creates and updates. A resource whose
// type does not support in-place update is replaced: a delete/create pair
// ordered by the type's declared replacement policy.
func Diff(graph *Graph, state *StateRecord) (*Plan, error) {
	if state == nil {
		state = NewStateRecord()
	}

	plan := &Plan{}

	// changing tracks resources whose outputs will differ once this plan is
	// applied. A dependent that references a changing resource cannot be
	// proven unchanged, so it is planned as an update.
	changing := make(map[string]bool)

	// mutatingStep maps a resource name to the step ID a dependent must
	// wait for (the create or update that makes its outputs current).
	mutatingStep := make(map[string]string)

	var deferredDeletes []Step

	for _, name := range graph.TopologicalOrder() {
		res, _ := graph.Resource(name)
		id := res.ID()
		prior, havePrior := state.Resource(id)
		live := state.Live(id)

		// A failed apply that produced no outputs left nothing behind to
		// update or delete; plan it as a fresh create.
		failedCreate := havePrior && prior.Status == StatusFailed && len(prior.Outputs) == 0

		switch {
		case !live || failedCreate:
			reason := "not present in state"
			if failedCreate {
				reason = "previous create failed"
			}
			step := newStep(OpCreate, res, graph, mutatingStep, nil)
			step.Reason = reason
			plan.Steps = append(plan.Steps, step)
			plan.Summary.ToCreate++
			changing[name] = true
			mutatingStep[name] = step.ID

		default:
			op, reason, err := classify(res, prior, state, changing, graph)
			if err != nil {
				return nil, err
			}

			if op == OpNoop {
				plan.Steps = append(plan.Steps, Step{
					ID:           stepID(OpNoop, res.Type(), name),
					ResourceName: name,
					ResourceType: res.Type(),
					Op:           OpNoop,
				})
				plan.Summary.Unchanged++
				continue
			}

			caps := CapabilitiesFor(res.Type())
			if caps.SupportsUpdate {
				step := newStep(OpUpdate, res, graph, mutatingStep, prior.Outputs)
				step.Reason = reason
				plan.Steps = append(plan.Steps, step)
				plan.Summary.ToUpdate++
				changing[name] = true
				mutatingStep[name] = step.ID
				continue
			}

			// Replacement. The create carries the usual dependency edges;
			// the pair's internal order follows the declared policy.
			del := Step{
				ID:           stepID(OpDelete, res.Type(), name),
				ResourceName: name,
				ResourceType: res.Type(),
				Op:           OpDelete,
				Reason:       "replacement: " + reason,
				Replacement:  true,
				PriorOutputs: prior.Outputs,
			}
			create := newStep(OpCreate, res, graph, mutatingStep, nil)
			create.Reason = "replacement: " + reason
			create.Replacement = true

			if caps.Replacement == DeleteBeforeCreate {
				create.DependsOn = append(create.DependsOn, del.ID)
				plan.Steps = append(plan.Steps, del, create)
			} else {
				del.DependsOn = append(del.DependsOn, create.ID)
				plan.Steps = append(plan.Steps, create)
				deferredDeletes = append(deferredDeletes, del)
			}
			plan.Summary.ToReplace++
			changing[name] = true
			mutatingStep[name] = create.ID
		}
	}

	// A deferred replacement delete must outlive more than its paired
	// create: dependents still referencing the old object re-point in this
	// same plan, and those steps have to land before the old object goes
	// away. Dependents sit later in the topological order, so their step
	// IDs are only known once the pass above completes.
	for i := range deferredDeletes {
		for _, dep := range graph.Dependents(deferredDeletes[i].ResourceName) {
			if id, ok := mutatingStep[dep]; ok {
				deferredDeletes[i].DependsOn = append(deferredDeletes[i].DependsOn, id)
			}
		}
	}

	// Resources present in state but gone from the configuration: deletes,
	// dependents first per the recorded dependency edges.
	removed := removedResources(graph, state)
	for _, rs := range removed {
		step := Step{
			ID:           stepID(OpDelete, rs.Type, rs.Name),
			ResourceName: rs.Name,
			ResourceType: rs.Type,
			Op:           OpDelete,
			Reason:       "removed from configuration",
			PriorOutputs: rs.Outputs,
		}
		// A removed resource must outlive the deletes of removed resources
		// that depend on it.
		for _, other := range removed {
			if other.ID() == rs.ID() {
				continue
			}
			for _, dep := range other.DependsOn {
				if dep == rs.ID() {
					step.DependsOn = append(step.DependsOn, stepID(OpDelete, other.Type, other.Name))
				}
			}
		}
		// Still-configured resources that referenced it per the recorded
		// edges are re-pointing in this plan; their steps land first.
		for _, name := range graph.TopologicalOrder() {
			id, ok := mutatingStep[name]
			if !ok {
				continue
			}
			res, _ := graph.Resource(name)
			prior, havePrior := state.Resource(res.ID())
			if !havePrior {
				continue
			}
			for _, dep := range prior.DependsOn {
				if dep == rs.ID() {
					step.DependsOn = append(step.DependsOn, id)
					break
				}
			}
		}
		deferredDeletes = append(deferredDeletes, step)
		plan.Summary.ToDelete++
	}

	plan.Steps = append(plan.Steps, deferredDeletes...)
	return plan, nil
}

// classify decides the operation for a resource that is live in state.
func classify(res Resource, prior ResourceState, state *StateRecord, changing map[string]bool, graph *Graph) (Operation, string, error) {
	if prior.Status == StatusFailed {
		return OpUpdate, "previous apply failed", nil
	}

	// If any referenced resource changes in this plan, the effective input
	// is unknown until applied. Forcing an update avoids false no-ops.
	deps := graph.Dependencies(res.Name())
	sort.Strings(deps)
	for _, dep := range deps {
		if changing[dep] {
			return OpUpdate, fmt.Sprintf("dependency %q is changing", dep), nil
		}
	}

	// All referenced resources are settled: resolve against their
	// last-known outputs and compare structurally.
	lookup := func(name string) (map[string]any, map[string]any, bool) {
		depRes, ok := graph.Resource(name)
		if !ok {
			return nil, nil, false
		}
		rs, ok := state.Resource(depRes.ID())
		if !ok {
			return nil, nil, false
		}
		return rs.Outputs, rs.Outputs, true
	}
	_, desired, err := resolveInputs(res.Inputs(), lookup)
	if err != nil {
		// A referenced output missing from state cannot be compared;
		// re-applying is the conservative choice.
		return OpUpdate, "referenced output missing from state", nil
	}

	equal, err := structurallyEqual(desired, prior.Inputs)
	if err != nil {
		return OpNoop, "", fmt.Errorf("comparing inputs of %s: %w", res.ID(), err)
	}
	if equal {
		return OpNoop, "", nil
	}
	return OpUpdate, "inputs changed", nil
}

// newStep builds a create or update step with dependency edges on the
// mutating steps of every referenced resource.
func newStep(op Operation, res Resource, graph *Graph, mutatingStep map[string]string, priorOutputs map[string]any) Step {
	step := Step{
		ID:           stepID(op, res.Type(), res.Name()),
		ResourceName: res.Name(),
		ResourceType: res.Type(),
		Op:           op,
		PriorOutputs: priorOutputs,
	}
	deps := graph.Dependencies(res.Name())
	sort.Strings(deps)
	for _, dep := range deps {
		if id, ok := mutatingStep[dep]; ok {
			step.DependsOn = append(step.DependsOn, id)
		}
	}
	return step
}

// removedResources returns live state entries absent from the graph, in
// deterministic order.
func removedResources(graph *Graph, state *StateRecord) []ResourceState {
	var removed []ResourceState
	for id, rs := range state.Resources {
		if rs.Status == StatusDeleted {
			continue
		}
		if res, ok := graph.Resource(rs.Name); ok && res.ID() == id {
			continue
		}
		removed = append(removed, rs)
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].ID() < removed[j].ID() })
	return removed
}

// structurallyEqual compares two data trees by value after a JSON
// round-trip, so map ordering and integer width differences do not produce
// spurious diffs.
func structurallyEqual(a, b any) (bool, error) {
	na, err := normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := normalize(b)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(na, nb), nil
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
