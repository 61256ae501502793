package cache

import (
	"nixmate/internal/dependency"
	"nixmate/internal/operation"
)

// State resources that mutations change.
const (
	ResourceSystemProfile dependency.NodeID = "state:system-profile"
	// ResourceUserProfile is the default user profile. No cached read derives
	// from it: the system closure is built from configuration.nix alone.
	ResourceUserProfile dependency.NodeID = "state:user-profile"
	// ResourceClosure is the set of store paths the next system build needs.
	ResourceClosure dependency.NodeID = "state:closure"
)

// writes lists the resources each mutating kind changes on success.
var writes = map[operation.Kind][]dependency.NodeID{
	operation.KindUpdate:   {ResourceSystemProfile},
	operation.KindRollback: {ResourceSystemProfile},
	operation.KindInstall:  {ResourceUserProfile},
	operation.KindRemove:   {ResourceUserProfile},
	// Repair restores store contents without changing what any read reports.
	operation.KindRepair: nil,
}

// StateGraph returns the dependency graph between system state and the
// cacheable kinds derived from it. Search is absent: its results come from
// nixpkgs, not from anything installed, and only its TTL bounds staleness.
func StateGraph() *dependency.Graph {
	g := dependency.New()
	g.AddNode(dependency.Node{ID: ResourceSystemProfile, FriendlyName: "system profile", Kind: dependency.KindResource})
	g.AddNode(dependency.Node{ID: ResourceUserProfile, FriendlyName: "default user profile", Kind: dependency.KindResource})
	g.AddNode(dependency.Node{
		ID:           ResourceClosure,
		FriendlyName: "pending system closure",
		Kind:         dependency.KindResource,
		DependsOn:    []dependency.NodeID{ResourceSystemProfile},
	})
	g.AddNode(dependency.Node{
		ID:           dependency.NodeID(operation.KindListGenerations),
		FriendlyName: "generation listing",
		Kind:         dependency.KindOperation,
		DependsOn:    []dependency.NodeID{ResourceSystemProfile},
	})
	g.AddNode(dependency.Node{
		ID:           dependency.NodeID(operation.KindDryRun),
		FriendlyName: "dry run",
		Kind:         dependency.KindOperation,
		DependsOn:    []dependency.NodeID{ResourceClosure},
	})
	return g
}

// Affected returns the cacheable kinds made stale when the given resources
// change, in a stable order.
func Affected(g *dependency.Graph, resources ...dependency.NodeID) []operation.Kind {
	ids := g.OfKind(dependency.KindOperation, g.TransitiveDependents(resources...))
	kinds := make([]operation.Kind, 0, len(ids))
	for _, id := range ids {
		kinds = append(kinds, operation.Kind(id))
	}
	return kinds
}

// AffectedBy returns the cacheable kinds a successful mutation of kind makes
// stale. Non-mutating kinds affect nothing.
func AffectedBy(g *dependency.Graph, kind operation.Kind) []operation.Kind {
	resources, ok := writes[kind]
	if !ok || len(resources) == 0 {
		return nil
	}
	return Affected(g, resources...)
}
