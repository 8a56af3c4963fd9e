package engine

import "fmt"

// Operation is the reconciliation action planned for one resource.
type Operation string

const (
	// OpCreate provisions a resource absent from the last-applied state.
	OpCreate Operation = "create"

	// OpUpdate changes a resource in place.
	OpUpdate Operation = "update"

	// OpDelete tears a resource down.
	OpDelete Operation = "delete"

	// OpNoop leaves a resource untouched; it performs zero adapter calls.
	OpNoop Operation = "no-op"
)

// Validate checks whether the operation is one of the known values.
func (o Operation) Validate() error {
	switch o {
	case OpCreate, OpUpdate, OpDelete, OpNoop:
		return nil
	default:
		return fmt.Errorf("invalid operation: %s", o)
	}
}

// IsMutating reports whether the operation calls a provider adapter.
func (o Operation) IsMutating() bool { return o != OpNoop }

// Step is one entry of a Plan: a single operation on a single resource.
// Step IDs are deterministic ("create compute.instance/server") so that
// planning twice over the same inputs yields identical plans.
type Step struct {
	// ID uniquely identifies the step within its plan.
	ID string `json:"id"`

	// ResourceName is the logical name of the resource.
	ResourceName string `json:"resource_name"`

	// ResourceType is the resource type.
	ResourceType ResourceType `json:"resource_type"`

	// Op is the planned operation.
	Op Operation `json:"op"`

	// Reason is a human-readable explanation of why the step was planned.
	Reason string `json:"reason,omitempty"`

	// DependsOn lists step IDs that must be committed before this step
	// starts.
	DependsOn []string `json:"depends_on,omitempty"`

	// Replacement marks a delete or create step that is one half of a
	// replace pair.
	Replacement bool `json:"replacement,omitempty"`

	// PriorOutputs holds the last-known outputs from the state record.
	// Delete and update steps hand these to the adapter.
	PriorOutputs map[string]any `json:"prior_outputs,omitempty"`
}

// ResourceID returns the canonical "type/name" identity of the step's
// resource.
func (s Step) ResourceID() string {
	return string(s.ResourceType) + "/" + s.ResourceName
}

// stepID builds the deterministic step identifier.
func stepID(op Operation, typ ResourceType, name string) string {
	return fmt.Sprintf("%s %s/%s", op, typ, name)
}

// Summary counts plan entries by operation.
type Summary struct {
	ToCreate  int `json:"to_create"`
	ToUpdate  int `json:"to_update"`
	ToDelete  int `json:"to_delete"`
	ToReplace int `json:"to_replace"`
	Unchanged int `json:"unchanged"`
}

// Plan is an ordered sequence of steps reconciling a desired graph with the
// last-applied state. Create and update steps are topologically ordered so
// that dependencies apply first; delete steps are ordered in reverse so
// that dependents tear down first.
type Plan struct {
	// Steps are the plan entries in execution order.
	Steps []Step `json:"steps"`

	// Summary counts entries by operation.
	Summary Summary `json:"summary"`
}

// HasChanges reports whether any step performs an adapter call.
func (p *Plan) HasChanges() bool {
	for _, s := range p.Steps {
		if s.Op.IsMutating() {
			return true
		}
	}
	return false
}

// Step returns the plan entry with the given ID.
func (p *Plan) Step(id string) (Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}
