package engine

import (
	"context"
	"time"
)

// ResourceState is the persisted snapshot of one resource after its most
// recent operation: resolved inputs, last-known outputs, and status. Secret
// material is redacted before a ResourceState is ever constructed; the
// store persists exactly what it is given.
type ResourceState struct {
	// Type is the resource type.
	Type ResourceType `json:"type"`

	// Name is the logical name.
	Name string `json:"name"`

	// Status is the recorded lifecycle status.
	Status ResourceStatus `json:"status"`

	// Inputs are the resolved input properties as last applied, with secret
	// values redacted. The differ compares these against the desired graph.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Outputs are the last-known output properties, with secret values
	// redacted.
	Outputs map[string]any `json:"outputs,omitempty"`

	// DependsOn records the identities this resource referenced when it was
	// applied. Deletes of resources that have left the configuration are
	// ordered by these recorded edges, dependents first.
	DependsOn []string `json:"depends_on,omitempty"`

	// AppliedAt is when the resource last committed.
	AppliedAt time.Time `json:"applied_at"`
}

// ID returns the canonical "type/name" identity.
func (r ResourceState) ID() string { return string(r.Type) + "/" + r.Name }

// StateRecord is the last-applied snapshot of a whole stack, keyed by
// resource identity. It is created on first apply, read by every plan, and
// overwritten resource-by-resource as the executor commits steps.
type StateRecord struct {
	// Serial increments on every finalized apply.
	Serial int64 `json:"serial"`

	// Resources maps "type/name" identities to their snapshots.
	Resources map[string]ResourceState `json:"resources"`
}

// NewStateRecord returns an empty record for a stack's first apply.
func NewStateRecord() *StateRecord {
	return &StateRecord{Resources: make(map[string]ResourceState)}
}

// Resource returns the snapshot for the given identity.
func (s *StateRecord) Resource(id string) (ResourceState, bool) {
	rs, ok := s.Resources[id]
	return rs, ok
}

// Live reports whether the record holds a non-deleted snapshot for the
// identity. Deleted and never-applied resources both count as absent.
func (s *StateRecord) Live(id string) bool {
	rs, ok := s.Resources[id]
	return ok && rs.Status != StatusDeleted
}

// Store persists state records. The executor is the only writer; the differ
// and CLI layers are read-only consumers. Implementations commit each
// resource atomically so a crash mid-apply leaves at most one resource
// ambiguous.
type Store interface {
	// Load reads the current state record. A stack that has never been
	// applied loads as an empty record, not an error.
	Load(ctx context.Context) (*StateRecord, error)

	// CommitResource atomically persists one resource snapshot.
	CommitResource(ctx context.Context, rs ResourceState) error

	// Finalize marks the current apply complete and bumps the serial.
	Finalize(ctx context.Context, runID string) error

	// Lock acquires the stack's advisory lock, failing with
	// ErrConcurrentApply when another apply holds it.
	Lock(ctx context.Context, owner string) error

	// Unlock releases the advisory lock.
	Unlock(ctx context.Context, owner string) error
}

// Event is one entry of the per-run execution timeline.
type Event struct {
	// RunID identifies the apply run.
	RunID string `json:"run_id"`

	// Resource is the affected resource identity, when applicable.
	Resource string `json:"resource,omitempty"`

	// Level is the severity (debug, info, warning, error).
	Level string `json:"level"`

	// Message is the human-readable event text.
	Message string `json:"message"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives execution timeline events. Sinks must not block the
// executor; failures to record an event never fail the apply.
type EventSink interface {
	Append(ctx context.Context, ev Event)
}

// NopEventSink discards all events.
type NopEventSink struct{}

// Append implements EventSink.
func (NopEventSink) Append(context.Context, Event) {}
