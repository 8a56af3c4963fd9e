// Package engine is the core of captura-deploy: the resource and value
// model, the dependency graph, the differ that turns desired configuration
// plus recorded state into an ordered plan, and the executor that applies a
// plan through per-type adapters.
//
// The engine is deliberately provider-agnostic. It knows the fixed resource
// types and their declared capabilities, but every remote call goes through
// the Adapter interface; everything here is deterministic given the same
// graph and state record.
package engine
