package engine

import "context"

// AdapterRequest carries everything an adapter needs to act on one
// resource. Inputs are fully resolved plaintext: references replaced by the
// referenced outputs, secrets in the clear. Adapters never see Value trees.
type AdapterRequest struct {
	Type ResourceType
	Name string

	// Inputs is the resolved desired input document. Nil for deletes.
	Inputs map[string]any

	// PriorOutputs is the last committed output document, when one exists.
	// Deletes use it to locate the remote object.
	PriorOutputs map[string]any
}

// ResourceID returns the request's resource identity.
func (r AdapterRequest) ResourceID() string {
	return string(r.Type) + "/" + r.Name
}

// AdapterResult is what a successful create or update reports back.
type AdapterResult struct {
	// Outputs is the plaintext output document for the resource.
	Outputs map[string]any

	// SecretOutputs names the Outputs keys that are sensitive. They are
	// redacted before the state record is persisted, so a dependent that
	// is planned in a later run would resolve the redacted placeholder,
	// not the plaintext. A secret output is only usable by steps of the
	// same run that produced it; an output another resource consumes as a
	// stable reference must not be listed here.
	SecretOutputs []string
}

// Adapter performs the remote operations for one resource type.
//
// Failures are classified through ApplyError: transient errors are retried,
// permanent errors fail the step, and an unsupported error from Update makes
// the executor fall back to a replacement. Delete must tolerate the remote
// object already being gone.
type Adapter interface {
	Create(ctx context.Context, req AdapterRequest) (*AdapterResult, error)
	Update(ctx context.Context, req AdapterRequest) (*AdapterResult, error)
	Delete(ctx context.Context, req AdapterRequest) error
}

// AdapterRegistry resolves the adapter for a resource type.
type AdapterRegistry interface {
	Adapter(t ResourceType) (Adapter, bool)
}
