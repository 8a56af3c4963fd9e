// Package state persists deployment state in SQLite: the per-resource
// snapshots the differ reads, the advisory lock serializing applies, and
// the per-run event timeline. It also exports and imports portable YAML
// snapshots of the state record.
package state
