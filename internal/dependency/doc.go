// Package dependency provides a small directed graph used to work out which
// cached results become stale when system state changes.
//
// Nodes are either resources (the system profile, the user profile) or
// operation kinds. An operation kind depends on the resources its output is
// derived from. When a mutation changes a resource, TransitiveDependents of
// that resource names every kind whose cached results must be dropped.
//
//	g := dependency.New()
//	g.AddNode(dependency.Node{ID: "state:system-profile", Kind: dependency.KindResource})
//	g.AddNode(dependency.Node{
//	    ID:        "list_generations",
//	    Kind:      dependency.KindOperation,
//	    DependsOn: []dependency.NodeID{"state:system-profile"},
//	})
//
//	stale := g.TransitiveDependents("state:system-profile")
//	// ["list_generations"]
//
// The Graph type is not thread-safe. Build it once, then only read it.
package dependency
