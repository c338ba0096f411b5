package facts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RemoveNote drops every note/2 line whose locator is locator and returns
// how many were removed. A missing fact source removes nothing.
func RemoveNote(path, locator string) (int, error) {
	only := map[string]bool{KindNote: true}
	return rewriteSource(path, func(line string) (string, bool) {
		stmt, kind, _ := parseLine(line, only)
		if kind != lineFact || len(stmt.args) != 2 || stmt.args[1].isList {
			return line, true
		}
		return line, stmt.args[1].value != locator
	})
}

// RenameKey rewrites references to oldKey so they name newKey instead: both
// endpoints of rel, the note of tag and note_attr, and the target of alias.
// Note declarations are left alone. It returns the number of lines changed.
func RenameKey(path, oldKey, newKey string) (int, error) {
	if oldKey == "" || newKey == "" {
		return 0, fmt.Errorf("cannot rename %q to %q", oldKey, newKey)
	}

	// Argument positions holding note keys, per functor
	refs := map[string][]int{
		KindRel:      {0, 1},
		KindTag:      {0},
		KindNoteAttr: {0},
		KindAlias:    {1},
	}
	known := make(map[string]bool, len(refs))
	for functor := range refs {
		known[functor] = true
	}

	return rewriteSource(path, func(line string) (string, bool) {
		stmt, kind, _ := parseLine(line, known)
		if kind != lineFact {
			return line, true
		}
		renamed := false
		for _, i := range refs[stmt.functor] {
			if i < len(stmt.args) && !stmt.args[i].isList && stmt.args[i].value == oldKey {
				stmt.args[i].value = newKey
				renamed = true
			}
		}
		if !renamed {
			return line, true
		}
		return renderFact(stmt), true
	})
}

// renderFact writes stmt back as a source line. The first two arguments are
// keys and stay bare where possible; later scalars and list items are always
// quoted. Inline comments on the original line are not preserved.
func renderFact(stmt statement) string {
	args := make([]string, len(stmt.args))
	for i, arg := range stmt.args {
		switch {
		case arg.isList:
			items := make([]string, len(arg.list))
			for j, v := range arg.list {
				items[j] = quoteLocator(v)
			}
			args[i] = "[" + strings.Join(items, ", ") + "]"
		case i < 2:
			args[i] = quoteAtom(arg.value)
		default:
			args[i] = quoteLocator(arg.value)
		}
	}
	return stmt.functor + "(" + strings.Join(args, ", ") + ")."
}

// rewriteSource passes every line of the fact source through edit and writes
// the result back in place. Lines edit rejects are dropped; line endings are
// kept. The file is only written when something changed, and is closed on
// every path with a close failure reported.
func rewriteSource(path string, edit func(line string) (string, bool)) (changed int, err error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open fact source: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close fact source: %w", cerr)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read fact source: %w", err)
	}

	var out strings.Builder
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if line == "" {
			continue
		}
		body := strings.TrimRight(line, "\r\n")
		ending := line[len(body):]

		edited, keep := edit(body)
		if !keep {
			changed++
			continue
		}
		if edited != body {
			changed++
		}
		out.WriteString(edited + ending)
	}
	if changed == 0 {
		return 0, nil
	}

	if err := f.Truncate(0); err != nil {
		return 0, fmt.Errorf("failed to truncate fact source: %w", err)
	}
	if _, err := f.WriteAt([]byte(out.String()), 0); err != nil {
		return 0, fmt.Errorf("failed to write fact source: %w", err)
	}
	return changed, nil
}
