// Package policy evaluates Rego guardrails against plans before they are
// applied: operators get warned about destructive changes and error-level
// policies block the run.
package policy
