package engine

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ResourceType identifies one of the fixed provisionable resource kinds.
type ResourceType string

const (
	// TypeComputeInstance is a cloud compute instance hosting the platform.
	TypeComputeInstance ResourceType = "compute.instance"

	// TypeDNSRecordSet is a set of DNS records at the registrar for one name.
	TypeDNSRecordSet ResourceType = "dns.recordset"

	// TypeProxyRouteSet is a reverse-proxy route set in front of the platform.
	TypeProxyRouteSet ResourceType = "proxy.routeset"

	// TypeCertificate is a TLS certificate terminating the proxy routes.
	TypeCertificate ResourceType = "tls.certificate"
)

// Validate checks whether the resource type is one of the known kinds.
func (t ResourceType) Validate() error {
	switch t {
	case TypeComputeInstance, TypeDNSRecordSet, TypeProxyRouteSet, TypeCertificate:
		return nil
	default:
		return fmt.Errorf("unknown resource type: %s", t)
	}
}

// Reference is a directed edge from an input property to another resource's
// output: the value is unknown until the referenced resource commits.
type Reference struct {
	// Resource is the logical name of the referenced resource.
	Resource string `json:"resource"`

	// Output is the output property name being referenced.
	Output string `json:"output"`
}

func (r Reference) String() string {
	return r.Resource + "." + r.Output
}

// Value is a tagged deferred value: either a concrete literal (scalar, list,
// or object, possibly marked secret) or an unresolved Reference. Values are
// immutable once constructed.
type Value struct {
	ref    *Reference
	lit    any
	secret bool
}

// String constructs a string literal value.
func String(s string) Value { return Value{lit: s} }

// Int constructs an integer literal value.
func Int(i int64) Value { return Value{lit: i} }

// Bool constructs a boolean literal value.
func Bool(b bool) Value { return Value{lit: b} }

// Float constructs a floating-point literal value.
func Float(f float64) Value { return Value{lit: f} }

// Secret constructs a string literal carrying secret material. Secrets are
// passed to adapters in plaintext but never persisted or displayed; only a
// content hash survives so the differ still notices rotation.
func Secret(s string) Value { return Value{lit: s, secret: true} }

// List constructs a list value from the given elements.
func List(elems ...Value) Value { return Value{lit: elems} }

// Object constructs an object value from the given fields.
func Object(fields map[string]Value) Value { return Value{lit: fields} }

// Ref constructs an unresolved reference to another resource's output.
func Ref(resource, output string) Value {
	return Value{ref: &Reference{Resource: resource, Output: output}}
}

// IsReference reports whether the value is an unresolved reference.
func (v Value) IsReference() bool { return v.ref != nil }

// IsSecret reports whether the value carries secret material.
func (v Value) IsSecret() bool { return v.secret }

// Reference returns the reference and true when the value is one.
func (v Value) Reference() (Reference, bool) {
	if v.ref == nil {
		return Reference{}, false
	}
	return *v.ref, true
}

// References returns every reference reachable from the value, including
// those nested inside lists and objects. Order is deterministic.
func (v Value) References() []Reference {
	var refs []Reference
	v.walkRefs(&refs)
	return refs
}

func (v Value) walkRefs(refs *[]Reference) {
	switch lit := v.lit.(type) {
	case []Value:
		for _, e := range lit {
			e.walkRefs(refs)
		}
	case map[string]Value:
		keys := make([]string, 0, len(lit))
		for k := range lit {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lit[k].walkRefs(refs)
		}
	}
	if v.ref != nil {
		*refs = append(*refs, *v.ref)
	}
}

// redactSecret is the persisted stand-in for secret material. The hash
// prefix keeps rotation detectable without storing plaintext.
func redactSecret(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return fmt.Sprintf("(secret %x)", sum[:4])
}

// Resource is an immutable description of one provisionable unit. Identity
// is the (type, logical name) pair; changing either is modeled as
// delete-then-create, never as an update.
type Resource struct {
	typ    ResourceType
	name   string
	inputs map[string]Value
}

// NewResource constructs a resource from its type, logical name, and input
// properties. Graph-level validation (name uniqueness, dangling references)
// happens in BuildGraph.
func NewResource(typ ResourceType, name string, inputs map[string]Value) (Resource, error) {
	if err := typ.Validate(); err != nil {
		return Resource{}, &InvalidResourceError{Type: typ, Name: name, Reason: err.Error()}
	}
	if name == "" {
		return Resource{}, &InvalidResourceError{Type: typ, Name: name, Reason: "logical name is empty"}
	}
	copied := make(map[string]Value, len(inputs))
	for k, v := range inputs {
		copied[k] = v
	}
	return Resource{typ: typ, name: name, inputs: copied}, nil
}

// Type returns the resource type.
func (r Resource) Type() ResourceType { return r.typ }

// Name returns the logical name, unique within a graph.
func (r Resource) Name() string { return r.name }

// ID returns the canonical "type/name" identity string.
func (r Resource) ID() string { return string(r.typ) + "/" + r.name }

// Inputs returns the declared input properties. Callers must not mutate the
// returned map.
func (r Resource) Inputs() map[string]Value { return r.inputs }

// References returns the logical names of every resource this resource's
// inputs depend on, deduplicated, in deterministic order.
func (r Resource) References() []string {
	seen := make(map[string]bool)
	var names []string
	keys := make([]string, 0, len(r.inputs))
	for k := range r.inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, ref := range r.inputs[k].References() {
			if !seen[ref.Resource] {
				seen[ref.Resource] = true
				names = append(names, ref.Resource)
			}
		}
	}
	return names
}

// ResourceStatus is the recorded lifecycle status of a resource.
type ResourceStatus string

const (
	// StatusPending indicates the resource has not been applied yet.
	StatusPending ResourceStatus = "pending"

	// StatusCreating indicates a create or update is in flight.
	StatusCreating ResourceStatus = "creating"

	// StatusUpdated indicates the last apply committed successfully.
	StatusUpdated ResourceStatus = "updated"

	// StatusDeleted indicates the resource was torn down.
	StatusDeleted ResourceStatus = "deleted"

	// StatusFailed indicates the last operation on the resource failed.
	StatusFailed ResourceStatus = "failed"
)

// Validate checks whether the status is one of the known values.
func (s ResourceStatus) Validate() error {
	switch s {
	case StatusPending, StatusCreating, StatusUpdated, StatusDeleted, StatusFailed:
		return nil
	default:
		return fmt.Errorf("invalid resource status: %s", s)
	}
}
