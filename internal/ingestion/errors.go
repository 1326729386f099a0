package ingestion

import "fmt"

// ValidationError means the input does not satisfy the current stage.
// Message is shown to the user; the session stays where it is.
type ValidationError struct {
	Stage   StageName
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input for %s: %s", e.Stage, e.Message)
}

// LookupError means a typed category or DJ name matched nothing
type LookupError struct {
	Kind string // "category" or "dj"
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no %s named %q", e.Kind, e.Name)
}

// StorageError wraps a catalog or session store failure. The session is
// cleared and the user has to start over.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
