// Package depgraph keeps the directed "blocks" relation between work items
// and guarantees it stays acyclic. It stores only item ids; callers supply
// item status through a StatusLookup when asking whether something is blocked.
package depgraph

import (
	"slices"
	"sync"

	"github.com/baiirun/workdesk/internal/model"
)

// StatusLookup resolves an item's current status. ok is false for unknown ids.
type StatusLookup func(id string) (status model.Status, ok bool)

type Graph struct {
	mu  sync.RWMutex
	out map[string]map[string]struct{} // blocking -> dependents
	in  map[string]map[string]struct{} // dependent -> blockers
}

func New() *Graph {
	return &Graph{
		out: make(map[string]map[string]struct{}),
		in:  make(map[string]map[string]struct{}),
	}
}

// Load builds a graph from persisted edges. It fails if the edges already
// contain a cycle.
func Load(edges []model.Dependency) (*Graph, error) {
	g := New()
	for _, e := range edges {
		if err := g.AddEdge(e.BlockingID, e.DependentID); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddEdge records that blocking must complete before dependent. Adding an
// existing edge is a no-op. The graph is unchanged when an error is returned.
func (g *Graph) AddEdge(blocking, dependent string) error {
	if blocking == "" || dependent == "" {
		return model.Invalid("dependency", "item ids cannot be empty")
	}
	if blocking == dependent {
		return model.Invalid("dependency", "%s cannot block itself", blocking)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.out[blocking][dependent]; ok {
		return nil
	}

	// The new edge closes a cycle iff blocking is already reachable from dependent.
	if path := g.pathLocked(dependent, blocking); path != nil {
		return &model.CycleError{BlockingID: blocking, DependentID: dependent, Path: path}
	}

	link(g.out, blocking, dependent)
	link(g.in, dependent, blocking)
	return nil
}

// WouldCycle reports whether adding blocking -> dependent would close a cycle.
func (g *Graph) WouldCycle(blocking, dependent string) bool {
	if blocking == dependent {
		return true
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.pathLocked(dependent, blocking) != nil
}

// RemoveEdge deletes an edge. It reports whether the edge existed.
func (g *Graph) RemoveEdge(blocking, dependent string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.out[blocking][dependent]; !ok {
		return false
	}
	unlink(g.out, blocking, dependent)
	unlink(g.in, dependent, blocking)
	return true
}

// RemoveNode deletes every edge touching id and returns them.
func (g *Graph) RemoveNode(id string) []model.Dependency {
	g.mu.Lock()
	defer g.mu.Unlock()

	var removed []model.Dependency
	for _, dep := range sortedKeys(g.out[id]) {
		removed = append(removed, model.Dependency{BlockingID: id, DependentID: dep})
		unlink(g.in, dep, id)
	}
	for _, blk := range sortedKeys(g.in[id]) {
		removed = append(removed, model.Dependency{BlockingID: blk, DependentID: id})
		unlink(g.out, blk, id)
	}
	delete(g.out, id)
	delete(g.in, id)
	return removed
}

// BlockingItemsOf returns the ids that block id, sorted.
func (g *Graph) BlockingItemsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.in[id])
}

// BlockedItemsOf returns the ids that id blocks, sorted.
func (g *Graph) BlockedItemsOf(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return sortedKeys(g.out[id])
}

// UnfinishedBlockers returns the blockers of id whose status is not completed.
// Blockers the lookup does not know are skipped.
func (g *Graph) UnfinishedBlockers(id string, lookup StatusLookup) []string {
	var unfinished []string
	for _, blk := range g.BlockingItemsOf(id) {
		status, ok := lookup(blk)
		if !ok {
			continue
		}
		if status != model.StatusCompleted {
			unfinished = append(unfinished, blk)
		}
	}
	return unfinished
}

// IsBlocked reports whether any blocker of id is not completed.
func (g *Graph) IsBlocked(id string, lookup StatusLookup) bool {
	return len(g.UnfinishedBlockers(id, lookup)) > 0
}

// Edges returns every edge ordered by blocking id then dependent id.
func (g *Graph) Edges() []model.Dependency {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var edges []model.Dependency
	for _, blk := range sortedKeys(g.out) {
		for _, dep := range sortedKeys(g.out[blk]) {
			edges = append(edges, model.Dependency{BlockingID: blk, DependentID: dep})
		}
	}
	return edges
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := 0
	for _, deps := range g.out {
		n += len(deps)
	}
	return n
}

// pathLocked finds a path from -> to along blocking edges with an iterative
// depth-first walk. It returns nil when to is unreachable.
func (g *Graph) pathLocked(from, to string) []string {
	if from == to {
		return []string{from}
	}

	parent := map[string]string{from: ""}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, next := range sortedKeys(g.out[cur]) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == to {
				return unwind(parent, from, to)
			}
			stack = append(stack, next)
		}
	}
	return nil
}

func unwind(parent map[string]string, from, to string) []string {
	path := []string{to}
	for cur := to; cur != from; {
		cur = parent[cur]
		path = append(path, cur)
	}
	slices.Reverse(path)
	return path
}

func link(m map[string]map[string]struct{}, a, b string) {
	set, ok := m[a]
	if !ok {
		set = make(map[string]struct{})
		m[a] = set
	}
	set[b] = struct{}{}
}

func unlink(m map[string]map[string]struct{}, a, b string) {
	set := m[a]
	delete(set, b)
	if len(set) == 0 {
		delete(m, a)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
