package graph

import (
	"encoding/json"

	"docrag/pkg/common"
)

// Graph is one user's knowledge graph: an undirected, attributed simple
// graph. Node identity is the deterministic text_type key, so the same
// (text, type) mention from different documents collapses onto one node
// (intentional densification), which is why per-file operations filter on
// the file_id attribute rather than on node identity.
//
// Graph is not safe for concurrent use; the Builder serializes access per
// user.
type Graph struct {
	nodes map[string]*common.NodeAttrs
	order []string       // node keys in insertion order
	index map[string]int // node key -> insertion ordinal
	adj   map[string]map[string]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*common.NodeAttrs),
		index: make(map[string]int),
		adj:   make(map[string]map[string]string),
	}
}

// AddNode upserts a node. An existing node keeps its identity and edges but
// has its whole attribute set overwritten (last-write-wins, including
// file_id and doc_type). Returns true when the node was created.
func (g *Graph) AddNode(key string, attrs common.NodeAttrs) bool {
	a := attrs
	if _, exists := g.nodes[key]; exists {
		g.nodes[key] = &a
		return false
	}
	g.nodes[key] = &a
	g.index[key] = len(g.order)
	g.order = append(g.order, key)
	g.adj[key] = make(map[string]string)
	return true
}

// HasNode reports whether key is present.
func (g *Graph) HasNode(key string) bool {
	_, ok := g.nodes[key]
	return ok
}

// Node returns the attributes for key, or nil when absent.
func (g *Graph) Node(key string) *common.NodeAttrs {
	return g.nodes[key]
}

// Keys returns node keys in insertion order.
func (g *Graph) Keys() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge connects two existing nodes with a single relation label.
// Re-adding an existing edge overwrites the label (last-write-wins; there is
// no multi-edge support). Returns false when either endpoint is missing.
func (g *Graph) AddEdge(a, b, relation string) bool {
	if !g.HasNode(a) || !g.HasNode(b) {
		return false
	}
	g.adj[a][b] = relation
	g.adj[b][a] = relation
	return true
}

// Relation returns the label on the edge between a and b, and whether the
// edge exists.
func (g *Graph) Relation(a, b string) (string, bool) {
	rel, ok := g.adj[a][b]
	return rel, ok
}

// Neighbors returns the neighbor keys of key, ordered by node insertion
// ordinal for deterministic traversal.
func (g *Graph) Neighbors(key string) []string {
	adjacent, ok := g.adj[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(adjacent))
	for _, candidate := range g.order {
		if _, ok := adjacent[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// RemoveNode deletes a node and every edge touching it. Removing a node
// never adds edges, so edge count is monotonically non-increasing under
// deletion.
func (g *Graph) RemoveNode(key string) {
	if !g.HasNode(key) {
		return
	}
	for neighbor := range g.adj[key] {
		delete(g.adj[neighbor], key)
	}
	delete(g.adj, key)
	delete(g.nodes, key)

	pos := g.index[key]
	delete(g.index, key)
	g.order = append(g.order[:pos], g.order[pos+1:]...)
	for i := pos; i < len(g.order); i++ {
		g.index[g.order[i]] = i
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct undirected edges.
func (g *Graph) EdgeCount() int {
	count := 0
	for key, adjacent := range g.adj {
		for neighbor := range adjacent {
			if g.index[key] <= g.index[neighbor] {
				count++
			}
		}
	}
	return count
}

type graphNodeBlob struct {
	Key   string           `json:"key"`
	Attrs common.NodeAttrs `json:"attrs"`
}

type graphEdgeBlob struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Relation string `json:"relation"`
}

type graphBlob struct {
	Nodes []graphNodeBlob `json:"nodes"`
	Edges []graphEdgeBlob `json:"edges"`
}

// MarshalJSON serializes the graph with nodes in insertion order and each
// undirected edge emitted once.
func (g *Graph) MarshalJSON() ([]byte, error) {
	blob := graphBlob{
		Nodes: make([]graphNodeBlob, 0, len(g.order)),
		Edges: make([]graphEdgeBlob, 0),
	}
	for _, key := range g.order {
		blob.Nodes = append(blob.Nodes, graphNodeBlob{Key: key, Attrs: *g.nodes[key]})
	}
	for _, key := range g.order {
		for _, neighbor := range g.Neighbors(key) {
			if g.index[key] > g.index[neighbor] {
				continue
			}
			blob.Edges = append(blob.Edges, graphEdgeBlob{
				Source:   key,
				Target:   neighbor,
				Relation: g.adj[key][neighbor],
			})
		}
	}
	return json.Marshal(blob)
}

// UnmarshalJSON restores a graph serialized by MarshalJSON.
func (g *Graph) UnmarshalJSON(data []byte) error {
	var blob graphBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return err
	}

	*g = *NewGraph()
	for _, node := range blob.Nodes {
		g.AddNode(node.Key, node.Attrs)
	}
	for _, edge := range blob.Edges {
		g.AddEdge(edge.Source, edge.Target, edge.Relation)
	}
	return nil
}
