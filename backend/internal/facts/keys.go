package facts

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// FormatNoteKey turns a file stem into a note key: runs of non-word
// characters become "_", the result is trimmed and lowercased, and keys that
// do not start with a lowercase ASCII letter get an "nn_" prefix so they stay
// valid bare atoms ("2025-06-30" becomes "nn_2025_06_30").
func FormatNoteKey(name string) string {
	key := strings.ToLower(strings.Trim(nonWord.ReplaceAllString(name, "_"), "_"))
	if key == "" {
		return ""
	}
	if key[0] < 'a' || key[0] > 'z' {
		return "nn_" + key
	}
	return key
}

// NoteKeyForFile derives a note key from a file name, dropping its extension
func NoteKeyForFile(fileName string) string {
	base := filepath.Base(fileName)
	return FormatNoteKey(strings.TrimSuffix(base, filepath.Ext(base)))
}

// NoteLine renders a note/2 statement
func NoteLine(key, locator string) string {
	return fmt.Sprintf("note(%s, %s).", quoteAtom(key), quoteLocator(locator))
}

// Locators are always quoted, matching how hand-written sources declare them.
func quoteLocator(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(s) + "'"
}

// AppendNote appends a note/2 statement to the fact source at path, creating
// the file when it does not exist yet.
func AppendNote(path, key, locator string) (err error) {
	if key == "" {
		return fmt.Errorf("cannot append a note with an empty key")
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open fact source: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close fact source: %w", cerr)
		}
	}()

	prefix, err := newlinePrefix(f)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, prefix+NoteLine(key, locator)+"\n"); err != nil {
		return fmt.Errorf("failed to append note: %w", err)
	}
	return nil
}

// newlinePrefix returns "\n" when the file does not already end in one, so
// an appended statement never joins the previous line.
func newlinePrefix(f *os.File) (string, error) {
	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat fact source: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read fact source: %w", err)
	}
	if last[0] == '\n' {
		return "", nil
	}
	return "\n", nil
}

// LocatorKeys maps every declared locator to the key of the note that
// declares it. When two notes share a locator the first one wins.
func (s *Store) LocatorKeys() map[string]string {
	out := make(map[string]string, len(s.notes))
	for _, n := range s.notes {
		if _, seen := out[n.Locator]; !seen {
			out[n.Locator] = n.Key
		}
	}
	return out
}
