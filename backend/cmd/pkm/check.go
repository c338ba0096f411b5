package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkm/backend/internal/facts"
	"pkm/backend/internal/graph"
	"pkm/backend/internal/schema"
)

type checkReport struct {
	FactsFile         string                           `yaml:"facts_file"`
	Notes             int                              `yaml:"notes"`
	Relations         int                              `yaml:"relations"`
	SchemaTags        []string                         `yaml:"schema_tags,omitempty"`
	Load              *facts.LoadReport                `yaml:"load"`
	SchemaViolations  []schema.Violation               `yaml:"schema_violations,omitempty"`
	DanglingRelations []graph.DanglingReferenceWarning `yaml:"dangling_relations,omitempty"`
}

func (r *checkReport) problems() int {
	n := len(r.SchemaViolations) + len(r.DanglingRelations)
	if r.Load != nil {
		n += r.Load.SkippedCount() + len(r.Load.DanglingAliases) + len(r.Load.ShadowedAliases)
	}
	return n
}

func newCheckCmd(a *app) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report integrity problems in the fact source as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, loadReport, err := facts.LoadFile(a.cfg.FactsFile)
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", a.cfg.FactsFile, err)
			}

			report := &checkReport{
				FactsFile:         a.cfg.FactsFile,
				Notes:             store.NoteCount(),
				Relations:         len(store.DistinctRelations()),
				SchemaTags:        store.SchemaTags(),
				Load:              loadReport,
				SchemaViolations:  schema.Validate(store),
				DanglingRelations: graph.DanglingRelations(store),
			}
			if err := writeYAML(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if n := report.problems(); strict && n > 0 {
				return fmt.Errorf("%d problems found", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any problem is found")
	return cmd
}
