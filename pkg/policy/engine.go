package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/acederberg/captura-deploy/pkg/engine"
)

// Engine evaluates Rego guardrails against plans before they are applied.
type Engine struct {
	policies []Policy
	log      zerolog.Logger
}

// NewEngine creates an engine preloaded with the builtin policies.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		policies: BuiltinPolicies(),
		log:      log.With().Str("component", "policy-engine").Logger(),
	}
}

// Add registers an extra policy.
func (e *Engine) Add(p Policy) {
	e.policies = append(e.policies, p)
}

// Policies returns the loaded policies.
func (e *Engine) Policies() []Policy {
	return e.policies
}

// EvaluatePlan runs every enabled policy over the plan. The plan is allowed
// unless an error-severity violation fires; policy evaluation failures
// degrade to warnings rather than blocking the apply.
func (e *Engine) EvaluatePlan(ctx context.Context, plan *engine.Plan) (*Result, error) {
	input, err := planInput(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy input: %w", err)
	}

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}
	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}
		violations, err := e.evaluate(ctx, p, input)
		if err != nil {
			e.log.Error().Err(err).Str("policy", p.Name).Msg("policy evaluation failed")
			result.Warnings = append(result.Warnings, fmt.Sprintf("policy %s evaluation failed: %v", p.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == string(SeverityError) {
			result.Allowed = false
			break
		}
	}
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, p Policy, input map[string]any) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageName(p.Rego))
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, raw := range denySet {
				violations = append(violations, decodeViolation(p, raw))
			}
		}
	}
	return violations, nil
}

func decodeViolation(p Policy, raw any) Violation {
	v := Violation{Policy: p.Name, Severity: string(p.Severity)}
	fields, ok := raw.(map[string]any)
	if !ok {
		v.Message = fmt.Sprintf("%v", raw)
		return v
	}
	if msg, ok := fields["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := fields["severity"].(string); ok {
		v.Severity = sev
	}
	if res, ok := fields["resource"].(string); ok {
		v.Resource = res
	}
	return v
}

// planInput renders the plan as the JSON-ish document policies consume.
func planInput(plan *engine.Plan) (map[string]any, error) {
	raw, err := json.Marshal(plan)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return map[string]any{"plan": doc}, nil
}

func packageName(module string) string {
	for _, line := range strings.Split(module, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			return strings.Fields(trimmed)[1]
		}
	}
	return "captura.policies"
}
