// Package graph builds the investigation graph attached to a session
// after the loop terminates.
//
// Relationships are first-class entities that name their endpoints by
// id inside their properties; no back-pointers exist. The builder
// derives edges by resolving property values that are ids of other
// indexed entities.
package graph

import (
	"sort"

	"github.com/osinthq/inquest/internal/session"
)

// Node is one graph vertex.
type Node struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Schema string `json:"schema"`
}

// Edge is a directed link derived from an id-valued property.
type Edge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Relation string `json:"relation"`
}

// Build renders the entity index into the opaque investigation_graph
// bag. Output is deterministic: nodes and edges are sorted.
func Build(index map[string]*session.Entity) map[string]interface{} {
	var nodes []Node
	var edges []Edge

	for id, e := range index {
		nodes = append(nodes, Node{ID: id, Label: e.Name(), Schema: e.Schema})
		for prop, values := range e.Properties {
			for _, v := range values {
				if v == id {
					continue
				}
				if _, ok := index[v]; ok {
					edges = append(edges, Edge{From: id, To: v, Relation: prop})
				}
			}
		}
	}

	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Relation < edges[j].Relation
	})

	nodeList := make([]interface{}, len(nodes))
	for i, n := range nodes {
		nodeList[i] = map[string]interface{}{"id": n.ID, "label": n.Label, "schema": n.Schema}
	}
	edgeList := make([]interface{}, len(edges))
	for i, e := range edges {
		edgeList[i] = map[string]interface{}{"from": e.From, "to": e.To, "relation": e.Relation}
	}

	return map[string]interface{}{
		"nodes":      nodeList,
		"edges":      edgeList,
		"node_count": len(nodeList),
		"edge_count": len(edgeList),
	}
}
