package op

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty/convert"
)

// Registry holds the operations available to workspaces. It is populated
// once at startup from Modules and treated as read-only for the rest of the
// process lifetime.
type Registry struct {
	mu sync.RWMutex

	// byName maps operation names to their definitions.
	byName map[string]*Operation
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Operation)}
}

// RegistryError reports a rejected registration.
type RegistryError struct {
	Op     string
	Reason string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("register operation %q: %s", e.Op, e.Reason)
}

// Register adds an operation. The name must be a valid identifier and unused,
// parameter names must be unique valid identifiers, and any default value
// must convert to its parameter's declared type.
func (r *Registry) Register(operation *Operation) error {
	sig := operation.Signature
	if !validIdent(sig.Name) {
		return &RegistryError{Op: sig.Name, Reason: "invalid operation name"}
	}
	if operation.Handler == nil {
		return &RegistryError{Op: sig.Name, Reason: "nil handler"}
	}

	seen := make(map[string]struct{}, len(sig.Params))
	for _, p := range sig.Params {
		if !validIdent(p.Name) {
			return &RegistryError{Op: sig.Name, Reason: fmt.Sprintf("invalid parameter name %q", p.Name)}
		}
		if _, dup := seen[p.Name]; dup {
			return &RegistryError{Op: sig.Name, Reason: fmt.Sprintf("duplicate parameter %q", p.Name)}
		}
		seen[p.Name] = struct{}{}
		if p.Resource && p.Default != nil {
			return &RegistryError{Op: sig.Name, Reason: fmt.Sprintf("resource parameter %q cannot have a default", p.Name)}
		}
		if p.Default != nil {
			if _, err := convert.Convert(*p.Default, p.Type); err != nil {
				return &RegistryError{Op: sig.Name, Reason: fmt.Sprintf("default for %q does not match declared type: %v", p.Name, err)}
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[sig.Name]; exists {
		return &RegistryError{Op: sig.Name, Reason: "already registered"}
	}
	r.byName[sig.Name] = operation
	return nil
}

// Lookup returns the named operation.
func (r *Registry) Lookup(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	operation, ok := r.byName[name]
	return operation, ok
}

// Signature returns the named operation's signature.
func (r *Registry) Signature(name string) (Signature, bool) {
	operation, ok := r.Lookup(name)
	if !ok {
		return Signature{}, false
	}
	return operation.Signature, true
}

// List returns all signatures sorted by operation name.
func (r *Registry) List() []Signature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sigs := make([]Signature, 0, len(r.byName))
	for _, operation := range r.byName {
		sigs = append(sigs, operation.Signature)
	}
	sort.Slice(sigs, func(i, j int) bool { return sigs[i].Name < sigs[j].Name })
	return sigs
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Module is implemented by operator collaborators that contribute operations.
type Module interface {
	Register(r *Registry) error
}

// Install registers all modules, stopping at the first failure.
func (r *Registry) Install(modules ...Module) error {
	for _, m := range modules {
		if err := m.Register(r); err != nil {
			return err
		}
	}
	return nil
}

func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
