// Package graph holds the resource graph at the heart of a workspace: named
// resources bound either to opened datasets or to operation steps over other
// resources. Edges are derived from reference bindings and the graph stays a
// DAG across every mutation; mutations validate fully before committing, so
// a failed call leaves the graph untouched.
package graph

import (
	"sort"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/tephra-labs/tephra/internal/op"
)

// Kind discriminates the two resource kinds.
type Kind string

const (
	KindSource Kind = "source"
	KindStep   Kind = "step"
)

// Provenance records how a source resource was opened, enough to reopen it
// after a workspace is reloaded.
type Provenance struct {
	Store    string
	Ref      string
	Title    string
	OpenedAt time.Time
}

// Binding binds one operation parameter, either to a literal value or to
// another resource by name.
type Binding struct {
	Param string
	IsRef bool
	Ref   string    // reference target when IsRef
	Value cty.Value // literal otherwise
}

// Lit builds a literal binding.
func Lit(param string, v cty.Value) Binding {
	return Binding{Param: param, Value: v}
}

// RefTo builds a reference binding.
func RefTo(param, resource string) Binding {
	return Binding{Param: param, IsRef: true, Ref: resource}
}

// Node is one named resource.
type Node struct {
	Name     string
	Kind     Kind
	Prov     Provenance // source only
	Op       string     // step only
	Bindings []Binding  // step only, in binding order
	seq      int
}

// References returns the distinct resources the node references, in binding
// order.
func (n *Node) References() []string {
	var refs []string
	seen := make(map[string]struct{})
	for _, b := range n.Bindings {
		if !b.IsRef {
			continue
		}
		if _, ok := seen[b.Ref]; ok {
			continue
		}
		seen[b.Ref] = struct{}{}
		refs = append(refs, b.Ref)
	}
	return refs
}

func (n *Node) clone() *Node {
	c := *n
	c.Bindings = append([]Binding(nil), n.Bindings...)
	return &c
}

// SignatureSource resolves operation names to signatures. The op registry
// satisfies it.
type SignatureSource interface {
	Signature(name string) (op.Signature, bool)
}

// Graph is the dependency graph over resources. It is not safe for
// concurrent use; the owning workspace serializes access.
type Graph struct {
	sigs SignatureSource

	nodes   map[string]*Node
	edges   map[string][]string // dependency -> dependents
	parents map[string][]string // dependent -> dependencies
	order   []string            // node names in insertion order
	nextSeq int
}

// New creates an empty graph validating operations against sigs.
func New(sigs SignatureSource) *Graph {
	return &Graph{
		sigs:    sigs,
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// Clear removes every resource.
func (g *Graph) Clear() {
	g.nodes = make(map[string]*Node)
	g.edges = make(map[string][]string)
	g.parents = make(map[string][]string)
	g.order = nil
	g.nextSeq = 0
}

// Len returns the number of resources.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether the named resource exists.
func (g *Graph) Has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Node returns the named resource.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns all resources in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Snapshot returns a deep copy of all resources in insertion order, for
// persistence and structural comparison.
func (g *Graph) Snapshot() []Node {
	out := make([]Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, *g.nodes[name].clone())
	}
	return out
}

// AddSource registers a new source resource holding an opened dataset's
// provenance.
func (g *Graph) AddSource(name string, prov Provenance) error {
	if err := g.checkNewName(name); err != nil {
		return err
	}
	g.insert(&Node{Name: name, Kind: KindSource, Prov: prov})
	return nil
}

// AddStep registers a new step resource bound to an operation. The operation
// must exist, every binding must match its signature, referenced resources
// must already exist, and required parameters must all be bound.
func (g *Graph) AddStep(name, opName string, bindings []Binding) error {
	if err := g.checkNewName(name); err != nil {
		return err
	}
	checked, err := g.checkStep(name, opName, bindings)
	if err != nil {
		return err
	}
	node := &Node{Name: name, Kind: KindStep, Op: opName, Bindings: checked}
	g.insert(node)
	g.connect(node)
	return nil
}

// Rebind replaces an existing step's operation and bindings. The resource
// keeps its insertion position. Rebinding is rejected when it would close a
// reference cycle, leaving the previous bindings in place.
func (g *Graph) Rebind(name, opName string, bindings []Binding) error {
	node, ok := g.nodes[name]
	if !ok {
		return &Error{Kind: KindUnknownResource, Resource: name}
	}
	if node.Kind != KindStep {
		return &Error{Kind: KindNotAStep, Resource: name}
	}
	checked, err := g.checkStep(name, opName, bindings)
	if err != nil {
		return err
	}

	next := &Node{Name: name, Kind: KindStep, Op: opName, Bindings: checked, seq: node.seq}
	if cycle, found := g.cycleWith(next); found {
		return &Error{Kind: KindCycle, Resource: name, Cycle: cycle}
	}

	g.disconnect(node)
	g.nodes[name] = next
	g.connect(next)
	return nil
}

// Remove deletes a resource. With force unset, a resource that others
// reference is rejected with the blocking dependents; with force set, the
// resource and its transitive dependents are all removed, dependents first.
// The returned names are everything removed, in removal order.
func (g *Graph) Remove(name string, force bool) ([]string, error) {
	if _, ok := g.nodes[name]; !ok {
		return nil, &Error{Kind: KindUnknownResource, Resource: name}
	}
	dependents := g.TransitiveDependents(name)
	if len(dependents) > 0 && !force {
		direct := append([]string(nil), g.edges[name]...)
		sort.Strings(direct)
		return nil, &Error{Kind: KindResourceInUse, Resource: name, Dependents: direct}
	}

	// Walk the closure in reverse topological order so every resource is
	// gone before anything it references.
	doomed := make(map[string]bool, len(dependents)+1)
	doomed[name] = true
	for _, dep := range dependents {
		doomed[dep] = true
	}
	topo := g.TopologicalOrder()
	removal := make([]string, 0, len(doomed))
	for i := len(topo) - 1; i >= 0; i-- {
		if doomed[topo[i]] {
			removal = append(removal, topo[i])
		}
	}
	for _, victim := range removal {
		g.disconnect(g.nodes[victim])
		delete(g.nodes, victim)
		delete(g.edges, victim)
		delete(g.parents, victim)
		g.order = deleteName(g.order, victim)
	}
	return removal, nil
}

// Rename changes a resource's name and rewrites every reference binding that
// points at it. Fails without side effects when old is unknown or newName is
// invalid or taken.
func (g *Graph) Rename(old, newName string) error {
	node, ok := g.nodes[old]
	if !ok {
		return &Error{Kind: KindUnknownResource, Resource: old}
	}
	if old == newName {
		return nil
	}
	if err := g.checkNewName(newName); err != nil {
		return err
	}

	node.Name = newName
	delete(g.nodes, old)
	g.nodes[newName] = node

	g.edges[newName] = g.edges[old]
	delete(g.edges, old)
	g.parents[newName] = g.parents[old]
	delete(g.parents, old)
	for _, adj := range []map[string][]string{g.edges, g.parents} {
		for _, names := range adj {
			for i, n := range names {
				if n == old {
					names[i] = newName
				}
			}
		}
	}
	for i, n := range g.order {
		if n == old {
			g.order[i] = newName
		}
	}
	for _, other := range g.nodes {
		for i := range other.Bindings {
			if other.Bindings[i].IsRef && other.Bindings[i].Ref == old {
				other.Bindings[i].Ref = newName
			}
		}
	}
	return nil
}

// Dependencies returns the resources the named resource references directly,
// in binding order.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.parents[name]...)
}

// Dependents returns the resources that reference the named resource
// directly.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.edges[name]...)
}

// TransitiveDependents returns every resource that depends on the named one,
// directly or through other steps, in insertion order.
func (g *Graph) TransitiveDependents(name string) []string {
	affected := make(map[string]bool)

	var mark func(n string)
	mark = func(n string) {
		for _, dep := range g.edges[n] {
			if !affected[dep] {
				affected[dep] = true
				mark(dep)
			}
		}
	}
	mark(name)

	out := make([]string, 0, len(affected))
	for _, n := range g.order {
		if affected[n] {
			out = append(out, n)
		}
	}
	return out
}

// TopologicalOrder returns all resource names with every resource placed
// after its transitive dependencies. Ties are broken by insertion order, so
// the result is stable across save/load.
func (g *Graph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for _, name := range g.order {
		indegree[name] = len(g.parents[name])
	}

	result := make([]string, 0, len(g.order))
	done := make(map[string]bool, len(g.order))
	for len(result) < len(g.order) {
		progressed := false
		for _, name := range g.order {
			if done[name] || indegree[name] != 0 {
				continue
			}
			done[name] = true
			result = append(result, name)
			for _, dep := range g.edges[name] {
				indegree[dep]--
			}
			progressed = true
			break
		}
		if !progressed {
			break
		}
	}
	return result
}

// Restore rebuilds the graph from a persisted node list. Nodes are
// registered first so steps may reference resources that appear later in
// insertion order, then every step is validated against the current
// operation registry and the whole graph is checked acyclic.
func (g *Graph) Restore(nodes []Node) error {
	g.Clear()
	for i := range nodes {
		if err := g.checkNewName(nodes[i].Name); err != nil {
			return err
		}
		g.insert(nodes[i].clone())
	}
	for i := range nodes {
		node := g.nodes[nodes[i].Name]
		if node.Kind != KindStep {
			continue
		}
		checked, err := g.checkStep(node.Name, node.Op, node.Bindings)
		if err != nil {
			return err
		}
		node.Bindings = checked
		g.connect(node)
	}
	if cycle, found := hasCycle(g.order, g.parents); found {
		return &Error{Kind: KindCycle, Resource: cycle[0], Cycle: cycle}
	}
	return nil
}

func (g *Graph) checkNewName(name string) error {
	if !validName(name) {
		return &Error{Kind: KindInvalidName, Resource: name}
	}
	if _, exists := g.nodes[name]; exists {
		return &Error{Kind: KindDuplicateName, Resource: name}
	}
	return nil
}

// checkStep validates an operation binding set and returns the bindings with
// literals coerced to their declared parameter types.
func (g *Graph) checkStep(name, opName string, bindings []Binding) ([]Binding, error) {
	sig, ok := g.sigs.Signature(opName)
	if !ok {
		return nil, &Error{Kind: KindUnknownOperation, Resource: name, Op: opName}
	}

	bound := make(map[string]struct{}, len(bindings))
	checked := make([]Binding, 0, len(bindings))
	for _, b := range bindings {
		param, ok := sig.Param(b.Param)
		if !ok {
			return nil, &Error{Kind: KindUnknownParameter, Resource: name, Op: opName, Param: b.Param}
		}
		if _, dup := bound[b.Param]; dup {
			return nil, &Error{Kind: KindDuplicateBinding, Resource: name, Param: b.Param}
		}
		bound[b.Param] = struct{}{}

		if b.IsRef {
			if b.Ref == name {
				return nil, &Error{Kind: KindCycle, Resource: name, Cycle: []string{name, name}}
			}
			if _, exists := g.nodes[b.Ref]; !exists {
				return nil, &Error{Kind: KindUnknownReference, Resource: name, Target: b.Ref}
			}
			checked = append(checked, b)
			continue
		}
		coerced, err := op.Coerce(b.Value, param)
		if err != nil {
			return nil, &Error{Kind: KindTypeMismatch, Resource: name, Op: opName, Param: b.Param, Detail: err.Error()}
		}
		b.Value = coerced
		checked = append(checked, b)
	}

	for _, param := range sig.Params {
		if _, ok := bound[param.Name]; ok {
			continue
		}
		if param.Resource || param.Default == nil {
			return nil, &Error{Kind: KindMissingParameter, Resource: name, Op: opName, Param: param.Name}
		}
	}
	return checked, nil
}

func (g *Graph) insert(node *Node) {
	node.seq = g.nextSeq
	g.nextSeq++
	g.nodes[node.Name] = node
	g.edges[node.Name] = []string{}
	g.parents[node.Name] = []string{}
	g.order = append(g.order, node.Name)
}

// connect derives edges from the node's reference bindings.
func (g *Graph) connect(node *Node) {
	for _, ref := range node.References() {
		if !containsName(g.edges[ref], node.Name) {
			g.edges[ref] = append(g.edges[ref], node.Name)
		}
		if !containsName(g.parents[node.Name], ref) {
			g.parents[node.Name] = append(g.parents[node.Name], ref)
		}
	}
}

// disconnect removes the node's outbound reference edges. Inbound edges are
// untouched: rebinding keeps dependents, and removal deletes dependents
// before the resources they reference.
func (g *Graph) disconnect(node *Node) {
	for _, ref := range node.References() {
		g.edges[ref] = deleteName(g.edges[ref], node.Name)
	}
	g.parents[node.Name] = []string{}
}

// cycleWith checks whether swapping in next would close a cycle, without
// mutating the graph. The dependency adjacency is rebuilt with next's
// references in place of the current node's.
func (g *Graph) cycleWith(next *Node) ([]string, bool) {
	parents := make(map[string][]string, len(g.parents))
	for name, deps := range g.parents {
		if name == next.Name {
			continue
		}
		parents[name] = deps
	}
	parents[next.Name] = next.References()
	return hasCycle(g.order, parents)
}

// hasCycle runs a three-color depth-first search over the dependency
// adjacency: unvisited nodes are white, nodes on the active stack gray, and
// finished nodes black. A gray-to-gray edge is a cycle, returned with the
// entry node repeated at both ends.
func hasCycle(order []string, parents map[string][]string) ([]string, bool) {
	visited := make(map[string]bool)
	active := make(map[string]bool)
	via := make(map[string]string)

	var cycle []string
	var dfs func(name string) bool
	dfs = func(name string) bool {
		visited[name] = true
		active[name] = true
		for _, dep := range parents[name] {
			if !visited[dep] {
				via[dep] = name
				if dfs(dep) {
					return true
				}
			} else if active[dep] {
				cycle = []string{dep}
				for cur := name; cur != dep; cur = via[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{dep}, cycle...)
				return true
			}
		}
		active[name] = false
		return false
	}

	for _, name := range order {
		if !visited[name] {
			if dfs(name) {
				return cycle, true
			}
		}
	}
	return nil, false
}

func validName(s string) bool {
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

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func deleteName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
