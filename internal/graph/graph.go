// Package graph provides the TDD chain dependency graph for task lists.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ShayCichocki/shipline/pkg/models"
)

// ErrCycleDetected indicates a circular chain reference was found.
var ErrCycleDetected = errors.New("circular dependency detected")

// ChainGraph is a directed acyclic graph of TDD chain references.
// Tasks are nodes; an edge from GREEN to RED (or REFACTOR to GREEN) means
// "may only start after".
type ChainGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]models.Task
	// edges maps task ID to the IDs it depends on.
	edges map[string][]string
	// order keeps document order for deterministic output.
	order []string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates a new empty chain graph.
func New() *ChainGraph {
	return &ChainGraph{
		nodes:    make(map[string]models.Task),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *ChainGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build constructs the graph from tasks.
// References to tasks outside the set are allowed when allowMissing is true,
// which is the case for pending subsets whose chain heads already completed.
func (g *ChainGraph) Build(tasks []models.Task, allowMissing bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[graph.Build] building chain graph from %d tasks", len(tasks))

	for _, task := range tasks {
		if _, dup := g.nodes[task.ID]; dup {
			return fmt.Errorf("duplicate task %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
		g.order = append(g.order, task.ID)
	}

	for _, task := range tasks {
		if task.Ref == "" {
			continue
		}
		if _, exists := g.nodes[task.Ref]; !exists {
			if allowMissing {
				g.debugLog("[graph.Build] %s references %s outside the set, treating as satisfied", task.ID, task.Ref)
				continue
			}
			return fmt.Errorf("task %s depends on unknown task %s", task.ID, task.Ref)
		}
		g.edges[task.ID] = append(g.edges[task.ID], task.Ref)
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular reference.
func (g *ChainGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked uses depth-first search with coloring to detect back edges.
func (g *ChainGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// Task returns the task for an ID.
func (g *ChainGraph) Task(id string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.nodes[id]
	return t, ok
}

// Size returns the number of tasks in the graph.
func (g *ChainGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs the given task waits on.
func (g *ChainGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[id]...)
}

// Dependents returns every task that transitively waits on any of the given IDs,
// in document order. The given IDs themselves are not included.
func (g *ChainGraph) Dependents(ids ...string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := make(map[string]bool)
	for _, id := range ids {
		blocked[id] = true
	}

	var out []string
	for changed := true; changed; {
		changed = false
		for _, id := range g.order {
			if blocked[id] {
				continue
			}
			for _, dep := range g.edges[id] {
				if blocked[dep] {
					blocked[id] = true
					changed = true
					break
				}
			}
		}
	}
	for _, id := range g.order {
		if blocked[id] && !contains(ids, id) {
			out = append(out, id)
		}
	}
	return out
}

// ChainRoot returns the RED task at the head of id's chain, or id itself
// for tasks outside any chain.
func (g *ChainGraph) ChainRoot(id string) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	cur := id
	for !seen[cur] {
		seen[cur] = true
		deps := g.edges[cur]
		if len(deps) == 0 {
			return cur
		}
		cur = deps[0]
	}
	return cur
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
