package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKind classifies graph mutation failures. Front-ends map kinds to exit
// codes and the HTTP service maps them to error envelope types.
type ErrKind string

const (
	KindDuplicateName    ErrKind = "duplicate_name"
	KindInvalidName      ErrKind = "invalid_name"
	KindUnknownResource  ErrKind = "unknown_resource"
	KindUnknownOperation ErrKind = "unknown_operation"
	KindUnknownParameter ErrKind = "unknown_parameter"
	KindDuplicateBinding ErrKind = "duplicate_binding"
	KindMissingParameter ErrKind = "missing_parameter"
	KindTypeMismatch     ErrKind = "type_mismatch"
	KindUnknownReference ErrKind = "unknown_reference"
	KindCycle            ErrKind = "cycle_detected"
	KindResourceInUse    ErrKind = "resource_in_use"
	KindNotAStep         ErrKind = "not_a_step"
)

// Error is the structured error returned by all graph mutations. Fields
// other than Kind and Resource are populated when they add context.
type Error struct {
	Kind     ErrKind
	Resource string
	Op       string
	Param    string
	Target   string
	Detail   string

	// Cycle holds the offending path for KindCycle, first node repeated last.
	Cycle []string

	// Dependents holds the blocking resource names for KindResourceInUse.
	Dependents []string
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindDuplicateName:
		fmt.Fprintf(&b, "resource %q already exists", e.Resource)
	case KindInvalidName:
		fmt.Fprintf(&b, "invalid resource name %q", e.Resource)
	case KindUnknownResource:
		fmt.Fprintf(&b, "unknown resource %q", e.Resource)
	case KindUnknownOperation:
		fmt.Fprintf(&b, "resource %q: unknown operation %q", e.Resource, e.Op)
	case KindUnknownParameter:
		fmt.Fprintf(&b, "resource %q: operation %q has no parameter %q", e.Resource, e.Op, e.Param)
	case KindDuplicateBinding:
		fmt.Fprintf(&b, "resource %q: parameter %q bound twice", e.Resource, e.Param)
	case KindMissingParameter:
		fmt.Fprintf(&b, "resource %q: required parameter %q is not bound", e.Resource, e.Param)
	case KindTypeMismatch:
		fmt.Fprintf(&b, "resource %q: %s", e.Resource, e.Detail)
	case KindUnknownReference:
		fmt.Fprintf(&b, "resource %q: reference to unknown resource %q", e.Resource, e.Target)
	case KindCycle:
		fmt.Fprintf(&b, "resource %q: cycle detected: %s", e.Resource, strings.Join(e.Cycle, " -> "))
	case KindResourceInUse:
		fmt.Fprintf(&b, "resource %q is referenced by %s", e.Resource, strings.Join(e.Dependents, ", "))
	case KindNotAStep:
		fmt.Fprintf(&b, "resource %q is a source, not a step", e.Resource)
	default:
		fmt.Fprintf(&b, "resource %q: %s", e.Resource, e.Detail)
	}
	return b.String()
}

// IsKind reports whether err is a graph Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == kind
}
