package engine

// ReplacementPolicy decides how the delete and create halves of a
// replacement are ordered for a resource type.
type ReplacementPolicy string

const (
	// CreateBeforeDelete provisions the replacement first so dependents are
	// never left without a live instance. This is the default.
	CreateBeforeDelete ReplacementPolicy = "create-before-delete"

	// DeleteBeforeCreate tears the old instance down first. Required when
	// the backend enforces a uniquely-constrained identity, e.g. a DNS name
	// that cannot exist twice.
	DeleteBeforeCreate ReplacementPolicy = "delete-before-create"
)

// Capabilities declares how the executor and differ may treat a resource
// type. Branching on these declarations keeps provider-specific conditionals
// out of the core.
type Capabilities struct {
	// SupportsUpdate reports whether the type's adapter can change the
	// resource in place. Types without it are replaced on any input change.
	SupportsUpdate bool

	// Replacement orders the delete/create pair when the resource must be
	// replaced.
	Replacement ReplacementPolicy
}

// capabilityTable holds the declared capabilities of the fixed resource
// types. The registrar rejects duplicate DNS names, so record sets replace
// delete-first; everything else keeps the old instance alive until the new
// one exists.
var capabilityTable = map[ResourceType]Capabilities{
	TypeComputeInstance: {SupportsUpdate: true, Replacement: CreateBeforeDelete},
	TypeDNSRecordSet:    {SupportsUpdate: false, Replacement: DeleteBeforeCreate},
	TypeProxyRouteSet:   {SupportsUpdate: true, Replacement: CreateBeforeDelete},
	TypeCertificate:     {SupportsUpdate: false, Replacement: CreateBeforeDelete},
}

// CapabilitiesFor returns the declared capabilities for a resource type.
// Unknown types get conservative defaults: no in-place update,
// create-before-delete.
func CapabilitiesFor(t ResourceType) Capabilities {
	if caps, ok := capabilityTable[t]; ok {
		return caps
	}
	return Capabilities{SupportsUpdate: false, Replacement: CreateBeforeDelete}
}
