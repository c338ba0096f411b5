package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"pkm/backend/pkg/logger"
)

// Neo4jClient merges notes and relations into Neo4j as (:Note) nodes keyed by id
type Neo4jClient struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewNeo4jClient creates a client over an existing driver
func NewNeo4jClient(driver neo4j.DriverWithContext, database string) *Neo4jClient {
	return &Neo4jClient{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Connect creates a driver and verifies the server is reachable
func Connect(ctx context.Context, uri, user, password, database string) (*Neo4jClient, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify Neo4j connectivity at %s: %w", uri, err)
	}
	return NewNeo4jClient(driver, database), nil
}

// Close closes the Neo4j driver connection
func (c *Neo4jClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Neo4jClient) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.database})
}

// EnsureConstraints makes note ids unique in the database, which also backs
// the MERGE lookups with an index
func (c *Neo4jClient) EnsureConstraints(ctx context.Context) error {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `CREATE CONSTRAINT note_id_unique IF NOT EXISTS FOR (n:Note) REQUIRE n.id IS UNIQUE`
	if _, err := session.Run(ctx, query, nil); err != nil {
		return fmt.Errorf("failed to create note constraint: %w", err)
	}
	c.logger.Debug("Note id constraint ensured", zap.String("database", c.database))
	return nil
}

// MergeNode creates or updates a (:Note {id}) node
func (c *Neo4jClient) MergeNode(ctx context.Context, node NodeSpec) error {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := `
		MERGE (n:Note {id: $id})
		SET n.path = $path,
		    n.tags = $tags,
		    n.sync_run = $runID
	`

	tags := node.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"id":    node.ID,
			"path":  node.Path,
			"tags":  tags,
			"runID": node.RunID,
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to merge note: %w", err)
	}
	return nil
}

// MergeEdge creates a typed edge between two existing notes unless one of
// that type already connects them
func (c *Neo4jClient) MergeEdge(ctx context.Context, edge EdgeSpec) error {
	session := c.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(`
		MATCH (a:Note {id: $sourceID})
		MATCH (b:Note {id: $targetID})
		MERGE (a)-[r:%s]->(b)
		SET r.label = $label,
		    r.sync_run = $runID
		RETURN count(r) AS merged
	`, quoteRelationType(edge.Type))

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"sourceID": edge.SourceID,
			"targetID": edge.TargetID,
			"label":    edge.Label,
			"runID":    edge.RunID,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return recordValue[int64](record, "merged"), nil
	})
	if err != nil {
		return fmt.Errorf("failed to merge edge: %w", err)
	}
	if merged, _ := result.(int64); merged == 0 {
		return fmt.Errorf("%s -> %s: %w", edge.SourceID, edge.TargetID, ErrEndpointMissing)
	}
	return nil
}

// Counts returns the number of notes and note-to-note relationships
func (c *Neo4jClient) Counts(ctx context.Context) (int64, int64, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (n:Note)
		WITH count(n) AS nodes
		OPTIONAL MATCH (:Note)-[r]->(:Note)
		RETURN nodes, count(r) AS edges
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Single(ctx)
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count graph: %w", err)
	}

	record := result.(*neo4j.Record)
	return recordValue[int64](record, "nodes"), recordValue[int64](record, "edges"), nil
}

// FetchNote reads a merged note back from the database
func (c *Neo4jClient) FetchNote(ctx context.Context, id string) (*NodeSpec, error) {
	session := c.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := `
		MATCH (n:Note {id: $id})
		RETURN n.id AS id, n.path AS path, n.tags AS tags, n.sync_run AS run_id
	`

	result, err := session.Run(ctx, query, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to fetch record: %w", err)
		}
		return nil, ErrNoteNotFound{NoteID: id}
	}

	record := result.Record()
	return &NodeSpec{
		ID:    recordValue[string](record, "id"),
		Path:  recordValue[string](record, "path"),
		Tags:  recordStrings(record, "tags"),
		RunID: recordValue[string](record, "run_id"),
	}, nil
}

// Errors

type ErrNoteNotFound struct {
	NoteID string
}

func (e ErrNoteNotFound) Error() string {
	return fmt.Sprintf("note not found in graph: %s", e.NoteID)
}
