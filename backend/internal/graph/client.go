package graph

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// DefaultRelationType is used for relations whose label is empty or absent
const DefaultRelationType = "RELATED_TO"

// ErrEndpointMissing is returned by a client when an edge merge cannot find
// one of its endpoint nodes in the graph store
var ErrEndpointMissing = errors.New("edge endpoint not found in graph")

// NodeSpec is a merge-node request, keyed by ID
type NodeSpec struct {
	ID    string
	Path  string
	Tags  []string
	RunID string
}

// EdgeSpec is a merge-edge request, keyed by (SourceID, TargetID, Type)
type EdgeSpec struct {
	SourceID string
	TargetID string
	Type     string
	Label    string
	RunID    string
}

// GraphClient issues idempotent upserts against an external graph store.
// Merging the same node or edge twice must leave the store unchanged.
type GraphClient interface {
	MergeNode(ctx context.Context, node NodeSpec) error
	MergeEdge(ctx context.Context, edge EdgeSpec) error
}

// Counter is implemented by clients that can report store totals
type Counter interface {
	Counts(ctx context.Context) (nodes, edges int64, err error)
}

// NormalizeLabel turns free label text into a relationship type token:
// uppercase, with every whitespace or hyphen character replaced by "_".
// A blank label becomes DefaultRelationType.
func NormalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return DefaultRelationType
	}
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return '_'
		}
		return unicode.ToUpper(r)
	}, label)
}

// quoteRelationType escapes a token for use as a Cypher relationship type.
// Types cannot be passed as parameters, so they are backtick-quoted.
func quoteRelationType(token string) string {
	return "`" + strings.ReplaceAll(token, "`", "``") + "`"
}
