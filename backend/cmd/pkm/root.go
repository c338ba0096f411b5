package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pkm/backend/internal/facts"
	"pkm/backend/internal/opener"
	"pkm/backend/internal/query"
	"pkm/backend/pkg/config"
	"pkm/backend/pkg/logger"
)

type rootOptions struct {
	verbose   bool
	factsFile string
	envFile   string
}

// app carries what every command needs once flags and config are resolved
type app struct {
	cfg *config.Config
	log *zap.Logger
}

// newOpener builds the opener used by the open command
var newOpener = func(baseDir, command string) query.Opener {
	return opener.NewSystemOpener(baseDir, command)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "pkm",
		Short: "A personal knowledge base kept as a file of facts",
		Long: `pkm reads a Prolog-style fact source describing notes, aliases, tags,
typed attributes and relations. It opens notes by key prefix, exports the
relation set as CSV and projects the whole graph into Neo4j.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			if opts.factsFile != "" {
				cfg.FactsFile = opts.factsFile
			}
			if err := logger.Init(cfg.Env, opts.verbose); err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.cfg = cfg
			a.log = logger.Get()
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVarP(&opts.factsFile, "facts", "f", "", "Fact source to read (overrides PKM_FACTS_FILE)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env", "", "Env file to load instead of ./.env")

	cmd.AddCommand(
		newOpenCmd(a),
		newResolveCmd(a),
		newCompleteCmd(a),
		newTaggedCmd(a),
		newFieldCmd(a),
		newExportCmd(a),
		newSyncCmd(a),
		newCheckCmd(a),
		newWatchCmd(a),
		newRunCmd(a),
	)
	return cmd
}

// baseDir is the directory holding the fact source. Locators and the other
// configured relative paths are taken relative to it.
func (a *app) baseDir() string {
	return filepath.Dir(a.cfg.FactsFile)
}

func (a *app) resolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.baseDir(), p)
}

// loadStore reads the fact source and logs what the loader had to skip
func (a *app) loadStore() (*facts.Store, error) {
	store, report, err := facts.LoadFile(a.cfg.FactsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", a.cfg.FactsFile, err)
	}

	for _, skip := range report.Skipped {
		a.log.Warn("Skipped malformed line",
			zap.Int("line", skip.Line),
			zap.String("reason", skip.Reason),
			zap.String("text", skip.Text),
		)
	}
	for _, alias := range report.DanglingAliases {
		a.log.Warn("Alias points at an undeclared key",
			zap.String("alias", alias.Key),
			zap.String("target", alias.Target),
			zap.Int("line", alias.Line),
		)
	}
	for _, alias := range report.ShadowedAliases {
		a.log.Warn("Alias shadowed by a note with the same key",
			zap.String("alias", alias.Key),
			zap.Int("line", alias.Line),
		)
	}
	a.log.Debug("Fact source loaded",
		zap.String("path", a.cfg.FactsFile),
		zap.Int("lines", report.Lines),
		zap.Int("statements", report.Statements),
		zap.Int("ignored", report.Ignored),
		zap.Int("notes", store.NoteCount()),
	)
	return store, nil
}
