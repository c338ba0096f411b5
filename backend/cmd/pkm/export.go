package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pkm/backend/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the relation set as a Source,Target,Label CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.loadStore()
			if err != nil {
				return err
			}
			path := a.resolvePath(a.cfg.RelationsCSV)
			if out != "" {
				path = out
			}

			n, err := export.ExportFile(path, store)
			if err != nil {
				return err
			}
			a.log.Info("Edge table written", zap.String("path", path), zap.Int("edges", n))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (defaults to PKM_RELATIONS_CSV next to the fact source)")
	return cmd
}
