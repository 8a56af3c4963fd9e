package state

import "fmt"

// CorruptError reports a state record that cannot be decoded. The store
// never guesses at corrupt data; the operator repairs or restores from a
// snapshot.
type CorruptError struct {
	// Detail locates the problem, e.g. the resource row involved.
	Detail string

	// Err is the underlying decode failure.
	Err error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("state record corrupt: %s: %v", e.Detail, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }
