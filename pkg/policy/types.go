package policy

import "time"

// Severity grades a violation. Error-level violations block the apply;
// warnings are surfaced and let it proceed.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy is one Rego guardrail evaluated against plans. The Rego module
// receives the plan document as input and emits a deny set of violation
// objects with message, severity, and resource fields.
type Policy struct {
	Name        string
	Description string
	Severity    Severity
	Enabled     bool
	Rego        string
}

// Violation is one deny entry produced by a policy.
type Violation struct {
	Policy   string `json:"policy"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
}

// Result is the outcome of evaluating all policies against one plan.
type Result struct {
	Allowed     bool        `json:"allowed"`
	Violations  []Violation `json:"violations,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}
