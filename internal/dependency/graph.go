package dependency

import "sort"

// NodeID is the unique identifier for a node inside a dependency graph.
// Operation kinds use their kind name ("list_generations"); state resources
// use a "state:" prefix ("state:system-profile").
type NodeID string

// NodeKind categorises nodes.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	// KindResource is a piece of system state that mutations change.
	KindResource
	// KindOperation is an operation kind whose cached results derive from
	// the resources it depends on.
	KindOperation
)

// Node represents an operation kind or resource together with its dependency
// list.
//
// A node can depend on zero or more other nodes. The graph should therefore be
// a Directed Acyclic Graph (DAG). Cycle detection is not implemented because
// the static graph we build is small and carefully curated; TransitiveDependents
// nevertheless terminates on cycles.
type Node struct {
	ID           NodeID
	FriendlyName string
	Kind         NodeKind
	DependsOn    []NodeID
}

// Graph is a very small helper to answer dependency queries. It is *not*
// thread-safe by itself; callers build it once and only read it afterwards.
type Graph struct {
	nodes map[NodeID]*Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	// Copy to avoid external mutations
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node, sorted. This is an O(n) walk but the graph is tiny, so fine.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, n := range g.nodes {
		for _, dep := range n.DependsOn {
			if dep == id {
				res = append(res, n.ID)
				break
			}
		}
	}
	sortIDs(res)
	return res
}

// TransitiveDependents returns every node reachable by following dependent
// edges from the given nodes, excluding the starting nodes themselves, sorted.
func (g *Graph) TransitiveDependents(ids ...NodeID) []NodeID {
	seen := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}

	var res []NodeID
	queue := append([]NodeID(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents(id) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			res = append(res, dep)
			queue = append(queue, dep)
		}
	}
	sortIDs(res)
	return res
}

// OfKind filters ids down to nodes of the given kind.
func (g *Graph) OfKind(kind NodeKind, ids []NodeID) []NodeID {
	var res []NodeID
	for _, id := range ids {
		if n := g.nodes[id]; n != nil && n.Kind == kind {
			res = append(res, id)
		}
	}
	return res
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
