package lineage

import (
	"sync"

	"github.com/schemaforge/registry-core/pkg/schema"
)

// Locked wraps a Graph with a reader-writer mutex so the lineage graph can be
// shared across registry goroutines. The lock is held only across in-memory
// map updates and traversals, never across I/O: callers needing to persist an
// edge should build the schema.DependencyEdge first and call AddEdge last,
// after any store write has already succeeded.
type Locked struct {
	mu sync.RWMutex
	g  *Graph
}

// NewLocked wraps a fresh empty Graph.
func NewLocked() *Locked {
	return &Locked{g: New()}
}

func (l *Locked) AddEdge(e schema.DependencyEdge) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.g.AddEdge(e)
}

func (l *Locked) DirectDependencies(id, ver string) []schema.DependencyEdge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.DirectDependencies(id, ver)
}

func (l *Locked) DirectDependents(id, ver string) []schema.DependencyEdge {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.DirectDependents(id, ver)
}

func (l *Locked) TransitiveDependencies(id, ver string, maxDepth int) []NodeKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.TransitiveDependencies(id, ver, maxDepth)
}

func (l *Locked) TransitiveDependents(id, ver string, maxDepth int) []NodeKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.TransitiveDependents(id, ver, maxDepth)
}

func (l *Locked) HasCycleFrom(id, ver string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.HasCycleFrom(id, ver)
}

func (l *Locked) TopologicalOrder(id, ver string) []NodeKey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.TopologicalOrder(id, ver)
}

func (l *Locked) Analyze(id, ver string, breakingChangeCount int) ImpactAnalysis {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.g.Analyze(id, ver, breakingChangeCount)
}
