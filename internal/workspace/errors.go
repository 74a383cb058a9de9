package workspace

import (
	"errors"
	"fmt"
)

// StateKind classifies lifecycle failures.
type StateKind string

const (
	KindNotFound      StateKind = "not_found"
	KindAlreadyExists StateKind = "already_exists"
	KindAlreadyOpen   StateKind = "already_open"
	KindNotOpen       StateKind = "not_open"
)

// StateError reports a lifecycle operation against a workspace in the wrong
// state.
type StateError struct {
	Kind StateKind
	Base string
}

func (e *StateError) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("no workspace found at %s", e.Base)
	case KindAlreadyExists:
		return fmt.Sprintf("workspace already exists at %s", e.Base)
	case KindAlreadyOpen:
		return fmt.Sprintf("workspace at %s is already open", e.Base)
	case KindNotOpen:
		return fmt.Sprintf("workspace at %s is not open", e.Base)
	}
	return fmt.Sprintf("workspace %s: %s", e.Base, string(e.Kind))
}

// IsState reports whether err is a StateError of the given kind.
func IsState(err error, kind StateKind) bool {
	var se *StateError
	return errors.As(err, &se) && se.Kind == kind
}

// EvalError wraps an operator failure with the name of the resource whose
// computation failed.
type EvalError struct {
	Resource string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating %s: %v", e.Resource, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// PersistError wraps an I/O or format failure against the workspace file.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("workspace file %s: %v", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
