package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pkm/backend/internal/facts"
	apperrors "pkm/backend/pkg/errors"
	"pkm/backend/pkg/logger"
)

// DanglingReferenceWarning records a relation skipped because an endpoint is
// not a declared note
type DanglingReferenceWarning struct {
	Relation    facts.Relation `json:"relation" yaml:"relation"`
	MissingKeys []string       `json:"missing_keys" yaml:"missing_keys"`
}

func (w DanglingReferenceWarning) String() string {
	return fmt.Sprintf("skipped %s: unknown note %v", w.Relation, w.MissingKeys)
}

// SyncReport summarizes one sync run. EdgesMerged counts distinct
// (source, target, type) edges; DuplicateEdges counts relations folded into
// one of those, either a repeated triple or a label normalizing to a type
// already merged for the same pair.
type SyncReport struct {
	RunID          string                     `json:"run_id" yaml:"run_id"`
	StartedAt      time.Time                  `json:"started_at" yaml:"started_at"`
	Duration       time.Duration              `json:"duration" yaml:"duration"`
	NodesMerged    int                        `json:"nodes_merged" yaml:"nodes_merged"`
	EdgesMerged    int                        `json:"edges_merged" yaml:"edges_merged"`
	DuplicateEdges int                        `json:"duplicate_edges" yaml:"duplicate_edges"`
	Warnings       []DanglingReferenceWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Syncer projects a fact store into a graph store. Every operation it issues
// is a merge, so a failed or repeated run can simply be run again.
type Syncer struct {
	client   GraphClient
	logger   *zap.Logger
	newRunID func() string
}

// NewSyncer creates a syncer writing through client
func NewSyncer(client GraphClient) *Syncer {
	return &Syncer{
		client:   client,
		logger:   logger.Get(),
		newRunID: func() string { return uuid.New().String() },
	}
}

// Sync merges every note, then every distinct relation. All node merges are
// issued before the first edge merge because edge merges match existing
// nodes. A relation naming an undeclared note is skipped with a warning; a
// client failure stops the run and is returned with the partial report.
func (s *Syncer) Sync(ctx context.Context, store *facts.Store) (*SyncReport, error) {
	report := &SyncReport{
		RunID:     s.newRunID(),
		StartedAt: time.Now(),
	}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	s.logger.Info("Starting graph sync",
		zap.String("run_id", report.RunID),
		zap.Int("notes", store.NoteCount()),
	)

	// Node phase
	for _, note := range store.Notes() {
		spec := NodeSpec{
			ID:    note.Key,
			Path:  note.Locator,
			Tags:  store.Tags(note.Key),
			RunID: report.RunID,
		}
		if err := s.client.MergeNode(ctx, spec); err != nil {
			return report, apperrors.NewSyncTransport("merge node", note.Key, err)
		}
		report.NodesMerged++
	}

	// Edge phase
	relations := store.DistinctRelations()
	report.DuplicateEdges = len(store.Relations()) - len(relations)
	merged := make(map[edgeKey]bool, len(relations))
	for _, rel := range relations {
		if missing := missingEndpoints(store, rel); len(missing) > 0 {
			w := DanglingReferenceWarning{Relation: rel, MissingKeys: missing}
			report.Warnings = append(report.Warnings, w)
			s.logger.Warn("Skipping relation with dangling reference",
				zap.String("source", rel.Source),
				zap.String("target", rel.Target),
				zap.String("label", rel.Label),
				zap.Strings("missing", missing),
			)
			continue
		}

		spec := EdgeSpec{
			SourceID: rel.Source,
			TargetID: rel.Target,
			Type:     NormalizeLabel(rel.Label),
			Label:    rel.Label,
			RunID:    report.RunID,
		}
		key := edgeKey{source: spec.SourceID, target: spec.TargetID, relType: spec.Type}
		if merged[key] {
			// The first label keeps the edge; merging again would overwrite it.
			report.DuplicateEdges++
			s.logger.Debug("Relation folds into an existing edge",
				zap.String("relation", rel.String()),
				zap.String("type", spec.Type),
			)
			continue
		}
		merged[key] = true
		if err := s.client.MergeEdge(ctx, spec); err != nil {
			return report, apperrors.NewSyncTransport("merge edge", rel.String(), err)
		}
		report.EdgesMerged++
	}

	s.logger.Info("Graph sync completed",
		zap.String("run_id", report.RunID),
		zap.Int("nodes_merged", report.NodesMerged),
		zap.Int("edges_merged", report.EdgesMerged),
		zap.Int("warnings", len(report.Warnings)),
	)
	return report, nil
}

func missingEndpoints(store *facts.Store, rel facts.Relation) []string {
	var missing []string
	if !store.HasNote(rel.Source) {
		missing = append(missing, rel.Source)
	}
	if rel.Target != rel.Source && !store.HasNote(rel.Target) {
		missing = append(missing, rel.Target)
	}
	return missing
}

// DanglingRelations lists the distinct relations a sync would skip because an
// endpoint is not a declared note
func DanglingRelations(store *facts.Store) []DanglingReferenceWarning {
	var out []DanglingReferenceWarning
	for _, rel := range store.DistinctRelations() {
		if missing := missingEndpoints(store, rel); len(missing) > 0 {
			out = append(out, DanglingReferenceWarning{Relation: rel, MissingKeys: missing})
		}
	}
	return out
}
