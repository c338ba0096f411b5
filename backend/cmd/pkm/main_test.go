package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pkm/backend/internal/query"
	apperrors "pkm/backend/pkg/errors"
)

const cliFacts = `% sample knowledge base
note(mgf, 'files/mgf.pdf').
note(mgf_of_poisson, 'files/poisson.pdf').
note(mgf_of_normal, 'files/normal.pdf').
alias(moment_generating_function, mgf).
tag(mgf, definition).
tag_attr(book, [author, year]).
note_attr(mgf, book, ['Casella', 2002]).
note_attr(mgf_of_normal, book, ['Casella']).
rel(mgf_of_normal, mgf, 'special case of').
rel(mgf_of_normal, mgf, 'special case of').
rel(mgf_of_poisson, ghost, 'see also').
`

type mockOpener struct {
	opened []string
}

func (m *mockOpener) Open(ctx context.Context, locator string) error {
	m.opened = append(m.opened, locator)
	return nil
}

func setupCLI(t *testing.T, src string) string {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, key := range []string{"PKM_FACTS_FILE", "PKM_RELATIONS_CSV", "PKM_KNOWLEDGE_DIR", "PKM_SYNC_ON_CHANGE", "ENV"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "facts.pl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveCmd(t *testing.T) {
	path := setupCLI(t, cliFacts)

	out, err := runCLI(t, "--facts", path, "resolve", "moment_generating_function")
	require.NoError(t, err)
	assert.Equal(t, "files/mgf.pdf\n", out)

	_, err = runCLI(t, "--facts", path, "resolve", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCompleteCmd(t *testing.T) {
	path := setupCLI(t, cliFacts)

	out, err := runCLI(t, "--facts", path, "complete", "mgf_of")
	require.NoError(t, err)
	assert.Equal(t, "mgf_of_poisson\nmgf_of_normal\n", out)

	out, err = runCLI(t, "--facts", path, "complete", "--sorted", "mgf_of")
	require.NoError(t, err)
	assert.Equal(t, "mgf_of_normal\nmgf_of_poisson\n", out)

	out, err = runCLI(t, "--facts", path, "complete", "zzz")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestOpenCmd(t *testing.T) {
	path := setupCLI(t, cliFacts)
	mock := &mockOpener{}
	orig := newOpener
	newOpener = func(baseDir, command string) query.Opener { return mock }
	t.Cleanup(func() { newOpener = orig })

	out, err := runCLI(t, "--facts", path, "open", "mgf_of")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"files/poisson.pdf"}, mock.opened)

	_, err = runCLI(t, "--facts", path, "open", "zzz")
	assert.ErrorIs(t, err, apperrors.ErrNoMatch)
	assert.Len(t, mock.opened, 1)
}

func TestTaggedCmd(t *testing.T) {
	path := setupCLI(t, cliFacts)

	out, err := runCLI(t, "--facts", path, "tagged", "definition")
	require.NoError(t, err)
	assert.Equal(t, "mgf\n", out)
}

func TestFieldCmd(t *testing.T) {
	path := setupCLI(t, cliFacts)

	out, err := runCLI(t, "--facts", path, "field", "mgf", "book", "year")
	require.NoError(t, err)
	assert.Equal(t, "2002\n", out)

	out, err = runCLI(t, "--facts", path, "field", "mgf", "book")
	require.NoError(t, err)
	assert.Equal(t, "author: Casella\nyear: 2002\n", out)

	_, err = runCLI(t, "--facts", path, "field", "mgf_of_normal", "book", "year")
	var mismatch *apperrors.ErrSchemaMismatch
	assert.ErrorAs(t, err, &mismatch)

	_, err = runCLI(t, "--facts", path, "field", "mgf", "book", "isbn")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExportCmd(t *testing.T) {
	path := setupCLI(t, cliFacts)

	_, err := runCLI(t, "--facts", path, "export")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "relations.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Source,Target,Label\nmgf_of_normal,mgf,special case of\nmgf_of_poisson,ghost,see also\n", string(data))

	out := filepath.Join(t.TempDir(), "edges.csv")
	_, err = runCLI(t, "--facts", path, "export", "--out", out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestSyncCmd_DryRun(t *testing.T) {
	path := setupCLI(t, cliFacts)

	out, err := runCLI(t, "--facts", path, "sync", "--dry-run")
	require.NoError(t, err)

	var report struct {
		NodesMerged    int `yaml:"nodes_merged"`
		EdgesMerged    int `yaml:"edges_merged"`
		DuplicateEdges int `yaml:"duplicate_edges"`
		Warnings       []struct {
			MissingKeys []string `yaml:"missing_keys"`
		} `yaml:"warnings"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.NodesMerged)
	assert.Equal(t, 1, report.EdgesMerged)
	assert.Equal(t, 1, report.DuplicateEdges)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, []string{"ghost"}, report.Warnings[0].MissingKeys)
}

func TestSyncCmd_RequiresGraphSettings(t *testing.T) {
	path := setupCLI(t, cliFacts)
	t.Setenv("NEO4J_PASSWORD", "")

	_, err := runCLI(t, "--facts", path, "sync")
	var missing *apperrors.ErrConfigMissingRequired
	assert.ErrorAs(t, err, &missing)
}

func TestCheckCmd(t *testing.T) {
	path := setupCLI(t, cliFacts+"note(only_one).\nalias(orphan, nowhere).\n")

	out, err := runCLI(t, "--facts", path, "check")
	require.NoError(t, err)

	var report struct {
		Notes      int      `yaml:"notes"`
		SchemaTags []string `yaml:"schema_tags"`
		Load       struct {
			Skipped         []map[string]any `yaml:"skipped"`
			DanglingAliases []map[string]any `yaml:"dangling_aliases"`
		} `yaml:"load"`
		SchemaViolations  []map[string]any `yaml:"schema_violations"`
		DanglingRelations []map[string]any `yaml:"dangling_relations"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, 3, report.Notes)
	assert.Equal(t, []string{"book"}, report.SchemaTags)
	assert.Len(t, report.Load.Skipped, 1)
	assert.Len(t, report.Load.DanglingAliases, 1)
	assert.Len(t, report.SchemaViolations, 1)
	assert.Len(t, report.DanglingRelations, 1)

	_, err = runCLI(t, "--facts", path, "check", "--strict")
	assert.ErrorContains(t, err, "4 problems found")
}

func TestDuplicateKeyIsFatal(t *testing.T) {
	path := setupCLI(t, cliFacts+"note(mgf, 'files/other.pdf').\n")

	_, err := runCLI(t, "--facts", path, "complete")
	var dup *apperrors.ErrDuplicateKey
	assert.ErrorAs(t, err, &dup)
}

func TestMissingEnvFile(t *testing.T) {
	path := setupCLI(t, cliFacts)

	_, err := runCLI(t, "--facts", path, "--env", filepath.Join(t.TempDir(), "missing.env"), "complete")
	assert.Error(t, err)
}
