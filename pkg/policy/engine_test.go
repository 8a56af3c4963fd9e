package policy

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

func evalPlan(t *testing.T, plan *engine.Plan) *Result {
	t.Helper()
	result, err := NewEngine(zerolog.Nop()).EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	return result
}

func TestCleanPlanIsAllowed(t *testing.T) {
	plan := &engine.Plan{
		Steps: []engine.Step{
			{ID: "create dns.recordset/apex", ResourceName: "apex", ResourceType: engine.TypeDNSRecordSet, Op: engine.OpCreate},
			{ID: "update proxy.routeset/routes", ResourceName: "routes", ResourceType: engine.TypeProxyRouteSet, Op: engine.OpUpdate},
		},
	}

	result := evalPlan(t, plan)
	if !result.Allowed {
		t.Fatalf("plan blocked: %+v", result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Errorf("violations = %+v, want none", result.Violations)
	}
}

func TestInstanceDeleteIsBlocked(t *testing.T) {
	plan := &engine.Plan{
		Steps: []engine.Step{
			{ID: "delete compute.instance/server", ResourceName: "server", ResourceType: engine.TypeComputeInstance, Op: engine.OpDelete},
		},
	}

	result := evalPlan(t, plan)
	if result.Allowed {
		t.Fatal("instance delete was allowed")
	}

	var blocked bool
	for _, v := range result.Violations {
		if v.Policy == "protect-compute-instance" && v.Severity == "error" {
			blocked = true
			if v.Resource != "compute.instance/server" {
				t.Errorf("violation resource = %q", v.Resource)
			}
		}
	}
	if !blocked {
		t.Errorf("violations = %+v, want protect-compute-instance error", result.Violations)
	}
}

func TestInstanceReplacementIsAllowedWithWarning(t *testing.T) {
	plan := &engine.Plan{
		Steps: []engine.Step{
			{ID: "create compute.instance/server", ResourceName: "server", ResourceType: engine.TypeComputeInstance, Op: engine.OpCreate, Replacement: true},
			{ID: "delete compute.instance/server", ResourceName: "server", ResourceType: engine.TypeComputeInstance, Op: engine.OpDelete, Replacement: true},
		},
	}

	result := evalPlan(t, plan)
	if !result.Allowed {
		t.Fatalf("replacement blocked: %+v", result.Violations)
	}

	var warned bool
	for _, v := range result.Violations {
		if v.Policy == "destructive-change-warning" && v.Severity == "warning" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("violations = %+v, want destructive-change warning", result.Violations)
	}
}

func TestCustomPolicy(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	e.Add(Policy{
		Name:     "no-cname-apex",
		Severity: SeverityError,
		Enabled:  true,
		Rego: `package captura.policies.custom

import rego.v1

deny contains violation if {
	some step in input.plan.steps
	step.resource_name == "apex"
	step.op == "create"
	violation := {"message": "apex records are managed manually", "severity": "error"}
}
`,
	})

	plan := &engine.Plan{
		Steps: []engine.Step{
			{ID: "create dns.recordset/apex", ResourceName: "apex", ResourceType: engine.TypeDNSRecordSet, Op: engine.OpCreate},
		},
	}
	result, err := e.EvaluatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("EvaluatePlan: %v", err)
	}
	if result.Allowed {
		t.Fatalf("custom policy did not block: %+v", result.Violations)
	}
}

func TestEngineIsPreloadedWithBuiltins(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	if got, want := len(e.Policies()), len(BuiltinPolicies()); got != want {
		t.Fatalf("policies = %d, want %d", got, want)
	}

	// Each protecting builtin fires exactly once per offending plan; a
	// caller re-adding the builtins would double every violation.
	plan := &engine.Plan{
		Steps: []engine.Step{
			{ID: "delete compute.instance/server", ResourceName: "server", ResourceType: engine.TypeComputeInstance, Op: engine.OpDelete},
		},
	}
	result := evalPlan(t, plan)
	perPolicy := make(map[string]int)
	for _, v := range result.Violations {
		perPolicy[v.Policy]++
	}
	for name, count := range perPolicy {
		if count != 1 {
			t.Errorf("policy %s fired %d times, want once", name, count)
		}
	}
}
