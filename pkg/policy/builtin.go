package policy

// BuiltinPolicies returns the guardrails every installation starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		protectComputeInstancePolicy(),
		destructiveChangePolicy(),
	}
}

// protectComputeInstancePolicy blocks plans that tear down a compute
// instance without provisioning a replacement. Full destroys bypass policy
// evaluation explicitly.
func protectComputeInstancePolicy() Policy {
	return Policy{
		Name:        "protect-compute-instance",
		Description: "Denies deleting a compute instance unless it is one half of a replacement",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package captura.policies.protect_instance

import rego.v1

deny contains violation if {
	some step in input.plan.steps
	step.op == "delete"
	step.resource_type == "compute.instance"
	not step.replacement
	violation := {
		"message": sprintf("plan deletes compute instance %q without a replacement", [step.resource_name]),
		"severity": "error",
		"resource": sprintf("%s/%s", [step.resource_type, step.resource_name]),
	}
}
`,
	}
}

// destructiveChangePolicy flags any plan that deletes or replaces
// resources so operators see destruction before confirming.
func destructiveChangePolicy() Policy {
	return Policy{
		Name:        "destructive-change-warning",
		Description: "Warns when a plan contains delete or replacement steps",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package captura.policies.destructive

import rego.v1

deny contains violation if {
	some step in input.plan.steps
	step.op == "delete"
	violation := {
		"message": sprintf("plan destroys %s/%s", [step.resource_type, step.resource_name]),
		"severity": "warning",
		"resource": sprintf("%s/%s", [step.resource_type, step.resource_name]),
	}
}
`,
	}
}
