// Package export writes the relation set as a flat Source,Target,Label table
// for visualization tools.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"pkm/backend/internal/facts"
)

// Header is the first row of every edge table
var Header = []string{"Source", "Target", "Label"}

// Edges returns one relation per distinct (source, target, label) triple in
// declaration order. Labels are the raw text from the fact source.
func Edges(store *facts.Store) []facts.Relation {
	return store.DistinctRelations()
}

// WriteCSV writes the header followed by one row per edge
func WriteCSV(w io.Writer, edges []facts.Relation) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.Source, e.Target, e.Label}); err != nil {
			return fmt.Errorf("failed to write edge %s: %w", e, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush edges: %w", err)
	}
	return nil
}

// ExportFile writes the store's edge table to path and returns the number of
// rows written. The file is closed on every path; a close failure after a
// successful write is reported.
func ExportFile(path string, store *facts.Store) (n int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return writeAndClose(f, Edges(store))
}

func writeAndClose(f io.WriteCloser, edges []facts.Relation) (n int, err error) {
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close edge table: %w", cerr)
		}
	}()

	if err := WriteCSV(f, edges); err != nil {
		return 0, err
	}
	return len(edges), nil
}
