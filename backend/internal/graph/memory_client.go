package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type edgeKey struct {
	source, target, relType string
}

// MemoryClient is an in-process graph store with the same merge semantics
// as Neo4jClient. It backs dry runs.
type MemoryClient struct {
	mu        sync.Mutex
	nodes     map[string]NodeSpec
	nodeOrder []string
	edges     map[edgeKey]EdgeSpec
	edgeOrder []edgeKey
}

// NewMemoryClient creates an empty in-memory graph
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		nodes: make(map[string]NodeSpec),
		edges: make(map[edgeKey]EdgeSpec),
	}
}

// MergeNode creates the node if absent and updates its properties otherwise
func (m *MemoryClient) MergeNode(ctx context.Context, node NodeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.nodes[node.ID]; !exists {
		m.nodeOrder = append(m.nodeOrder, node.ID)
	}
	node.Tags = slices.Clone(node.Tags)
	m.nodes[node.ID] = node
	return nil
}

// MergeEdge creates the edge if no edge of the same type already connects
// the two nodes
func (m *MemoryClient) MergeEdge(ctx context.Context, edge EdgeSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range []string{edge.SourceID, edge.TargetID} {
		if _, ok := m.nodes[id]; !ok {
			return fmt.Errorf("node %q: %w", id, ErrEndpointMissing)
		}
	}

	key := edgeKey{source: edge.SourceID, target: edge.TargetID, relType: edge.Type}
	if _, exists := m.edges[key]; !exists {
		m.edgeOrder = append(m.edgeOrder, key)
	}
	m.edges[key] = edge
	return nil
}

// Counts returns the number of nodes and edges held
func (m *MemoryClient) Counts(ctx context.Context) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.nodes)), int64(len(m.edges)), nil
}

// Node returns a merged node by ID
func (m *MemoryClient) Node(id string) (NodeSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return n, ok
}

// Edges returns every merged edge in creation order
func (m *MemoryClient) Edges() []EdgeSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EdgeSpec, 0, len(m.edgeOrder))
	for _, k := range m.edgeOrder {
		out = append(out, m.edges[k])
	}
	return out
}
