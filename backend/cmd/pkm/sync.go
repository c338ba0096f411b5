package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"pkm/backend/internal/graph"
)

func newSyncCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge notes and relations into Neo4j",
		Long: `Merge every note as a (:Note) node and every distinct relation as an edge
typed by its normalized label. Re-running with an unchanged fact source leaves
the graph unchanged. With --dry-run the merge runs against an in-memory graph
and only the report is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if dryRun {
				client := graph.NewMemoryClient()
				report, err := graph.NewSyncer(client).Sync(ctx, store)
				if err != nil {
					return err
				}
				if err := writeYAML(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				return a.logTotals(ctx, client)
			}

			client, err := a.connectGraph(ctx)
			if err != nil {
				return err
			}
			defer client.Close(context.Background())

			report, syncErr := graph.NewSyncer(client).Sync(ctx, store)
			if err := writeYAML(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if syncErr != nil {
				return syncErr
			}

			return a.logTotals(ctx, client)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Sync into an in-memory graph instead of Neo4j")
	return cmd
}

// connectGraph opens a Neo4j client and makes sure the note id constraint exists
func (a *app) connectGraph(ctx context.Context) (*graph.Neo4jClient, error) {
	if err := a.cfg.ValidateGraph(); err != nil {
		return nil, err
	}
	client, err := graph.Connect(ctx, a.cfg.Neo4jURI, a.cfg.Neo4jUser, a.cfg.Neo4jPassword, a.cfg.Neo4jDatabase)
	if err != nil {
		return nil, err
	}
	if err := client.EnsureConstraints(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	a.log.Info("Connected to Neo4j",
		zap.String("uri", a.cfg.Neo4jURI),
		zap.String("database", a.cfg.Neo4jDatabase),
	)
	return client, nil
}

// logTotals reports what the graph holds after a sync
func (a *app) logTotals(ctx context.Context, counter graph.Counter) error {
	nodes, edges, err := counter.Counts(ctx)
	if err != nil {
		return err
	}
	a.log.Info("Graph totals", zap.Int64("nodes", nodes), zap.Int64("edges", edges))
	return nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}
