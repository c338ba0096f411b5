package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pkm/backend/internal/export"
	"pkm/backend/internal/graph"
	"pkm/backend/internal/watcher"
)

// refresher rebuilds the derived outputs after the fact source changes
type refresher struct {
	a      *app
	client graph.GraphClient // nil unless sync on change is enabled
}

func (r *refresher) refresh(ctx context.Context) error {
	store, err := r.a.loadStore()
	if err != nil {
		return err
	}

	path := r.a.resolvePath(r.a.cfg.RelationsCSV)
	n, err := export.ExportFile(path, store)
	if err != nil {
		return err
	}
	r.a.log.Info("Edge table written", zap.String("path", path), zap.Int("edges", n))

	if r.client == nil {
		return nil
	}
	_, err = graph.NewSyncer(r.client).Sync(ctx, store)
	return err
}

// newRefresher connects to Neo4j when PKM_SYNC_ON_CHANGE is set. The returned
// func releases the connection.
func (a *app) newRefresher(ctx context.Context) (*refresher, func(), error) {
	r := &refresher{a: a}
	if !a.cfg.SyncOnChange {
		return r, func() {}, nil
	}
	client, err := a.connectGraph(ctx)
	if err != nil {
		return nil, nil, err
	}
	r.client = client
	return r, func() { _ = client.Close(context.Background()) }, nil
}

func (a *app) factsWatcher(r *refresher) *watcher.FactsWatcher {
	return watcher.NewFactsWatcher(a.cfg.FactsFile, a.cfg.Debounce, r.refresh)
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-export (and optionally re-sync) whenever the fact source changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, closeGraph, err := a.newRefresher(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			if err := r.refresh(ctx); err != nil {
				a.log.Error("Initial refresh failed", zap.Error(err))
			}
			return a.factsWatcher(r).Run(ctx)
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the knowledge directory and the fact source until interrupted",
		Long: `Files created in the knowledge directory are appended to the fact source as
notes. Every change to the fact source re-exports the edge table and, with
PKM_SYNC_ON_CHANGE set, re-syncs Neo4j.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kw, err := watcher.NewKnowledgeWatcher(a.resolvePath(a.cfg.KnowledgeDir), a.cfg.FactsFile, a.cfg.IgnoreGlobs)
			if err != nil {
				return err
			}
			r, closeGraph, err := a.newRefresher(ctx)
			if err != nil {
				return err
			}
			defer closeGraph()

			added, err := kw.Backfill()
			if err != nil {
				return err
			}
			a.log.Info("Knowledge dir scanned", zap.Int("notes_added", added))
			if err := r.refresh(ctx); err != nil {
				a.log.Error("Initial refresh failed", zap.Error(err))
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return kw.Run(gctx) })
			g.Go(func() error { return a.factsWatcher(r).Run(gctx) })

			a.log.Info("Watchers started, press Ctrl+C to stop")
			err = g.Wait()
			a.log.Info("Watchers stopped")
			return err
		},
	}
}
