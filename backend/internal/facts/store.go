package facts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	apperrors "pkm/backend/pkg/errors"
)

// Statement kinds understood by the loader
const (
	KindNote     = "note"
	KindAlias    = "alias"
	KindTag      = "tag"
	KindTagAttr  = "tag_attr"
	KindNoteAttr = "note_attr"
	KindRel      = "rel"
)

var knownKinds = map[string]bool{
	KindNote:     true,
	KindAlias:    true,
	KindTag:      true,
	KindTagAttr:  true,
	KindNoteAttr: true,
	KindRel:      true,
}

// Store is an immutable, indexed view of a fact source. It is built once by
// Load and passed explicitly to every consumer.
type Store struct {
	notes      []Note
	noteIndex  map[string]int
	aliases    []Alias
	aliasIndex map[string]int

	schemas     map[string][]string
	schemaLines map[string]int
	schemaOrder []string

	bindings     []Binding
	bindingIndex map[BindingKey]int

	noteTags  map[string][]string
	relations []Relation
}

func newStore() *Store {
	return &Store{
		noteIndex:    make(map[string]int),
		aliasIndex:   make(map[string]int),
		schemas:      make(map[string][]string),
		schemaLines:  make(map[string]int),
		bindingIndex: make(map[BindingKey]int),
		noteTags:     make(map[string][]string),
	}
}

// LoadFile loads the fact source at path
func LoadFile(path string) (*Store, *LoadReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open fact source: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses a fact source into a Store. Malformed lines are recorded in
// the report and skipped; a repeated declaration of a unique key fails the
// whole load, since the store must never present an ambiguous identity.
func Load(r io.Reader) (*Store, *LoadReport, error) {
	s := newStore()
	report := &LoadReport{}

	br := bufio.NewReader(r)
	for {
		raw, tooLong, err := readLine(br)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("failed to read fact source: %w", err)
		}
		report.Lines++
		lineNo := report.Lines
		if tooLong {
			report.Skipped = append(report.Skipped, ParseSkip{
				Line:   lineNo,
				Reason: fmt.Sprintf("line longer than %d bytes", maxLineBytes),
			})
			continue
		}

		stmt, kind, err := parseLine(raw, knownKinds)
		switch kind {
		case lineIgnored:
			report.Ignored++
			continue
		case lineMalformed:
			report.Skipped = append(report.Skipped, ParseSkip{Line: lineNo, Text: raw, Reason: err.Error()})
			continue
		}

		if err := s.apply(stmt, lineNo); err != nil {
			if dup, ok := err.(*apperrors.ErrDuplicateKey); ok {
				return nil, report, dup
			}
			report.Skipped = append(report.Skipped, ParseSkip{Line: lineNo, Text: raw, Reason: err.Error()})
			continue
		}
		report.Statements++
	}

	s.checkAliases(report)
	return s, report, nil
}

// maxLineBytes bounds a single line of the fact source
const maxLineBytes = 1024 * 1024

// readLine returns the next line without its line ending. A line longer than
// maxLineBytes is consumed in full and reported as too long, so the caller
// can skip it and carry on. io.EOF is returned only when nothing is left.
func readLine(br *bufio.Reader) (string, bool, error) {
	var buf []byte
	total := 0
	for {
		chunk, err := br.ReadSlice('\n')
		total += len(chunk)
		if total <= maxLineBytes+2 {
			buf = append(buf, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && total > 0 {
			err = nil
		}
		if err != nil {
			return "", false, err
		}

		line := strings.TrimSuffix(strings.TrimSuffix(string(buf), "\n"), "\r")
		if total > maxLineBytes+2 || len(line) > maxLineBytes {
			return "", true, nil
		}
		return line, false, nil
	}
}

// apply adds one parsed statement. Shape errors (arity, empty keys) are
// returned as plain errors and become ParseSkips; duplicates are fatal.
func (s *Store) apply(stmt statement, line int) error {
	switch stmt.functor {
	case KindNote:
		key, locator, err := twoScalars(stmt)
		if err != nil {
			return err
		}
		if first, exists := s.noteIndex[key]; exists {
			return apperrors.NewDuplicateKey(KindNote, key, line, s.notes[first].Line)
		}
		s.noteIndex[key] = len(s.notes)
		s.notes = append(s.notes, Note{Key: key, Locator: locator, Line: line})

	case KindAlias:
		key, target, err := twoScalars(stmt)
		if err != nil {
			return err
		}
		if target == "" {
			return fmt.Errorf("alias %q has an empty target", key)
		}
		if first, exists := s.aliasIndex[key]; exists {
			return apperrors.NewDuplicateKey(KindAlias, key, line, s.aliases[first].Line)
		}
		s.aliasIndex[key] = len(s.aliases)
		s.aliases = append(s.aliases, Alias{Key: key, Target: target, Line: line})

	case KindTag:
		noteKey, tagKey, err := twoScalars(stmt)
		if err != nil {
			return err
		}
		if tagKey == "" {
			return fmt.Errorf("tag for %q is empty", noteKey)
		}
		if !slices.Contains(s.noteTags[noteKey], tagKey) {
			s.noteTags[noteKey] = append(s.noteTags[noteKey], tagKey)
		}

	case KindTagAttr:
		if err := arity(stmt, 2); err != nil {
			return err
		}
		tagKey, names := stmt.args[0], stmt.args[1]
		if tagKey.isList || tagKey.value == "" || !names.isList {
			return fmt.Errorf("expected tag_attr(Tag, [Field, ...])")
		}
		if first, exists := s.schemaLines[tagKey.value]; exists {
			return apperrors.NewDuplicateKey(KindTagAttr, tagKey.value, line, first)
		}
		s.schemas[tagKey.value] = names.list
		s.schemaLines[tagKey.value] = line
		s.schemaOrder = append(s.schemaOrder, tagKey.value)

	case KindNoteAttr:
		if err := arity(stmt, 3); err != nil {
			return err
		}
		noteKey, tagKey, values := stmt.args[0], stmt.args[1], stmt.args[2]
		if noteKey.isList || tagKey.isList || noteKey.value == "" || tagKey.value == "" || !values.isList {
			return fmt.Errorf("expected note_attr(Note, Tag, [Value, ...])")
		}
		key := BindingKey{NoteKey: noteKey.value, TagKey: tagKey.value}
		if first, exists := s.bindingIndex[key]; exists {
			return apperrors.NewDuplicateKey(KindNoteAttr, key.NoteKey+"/"+key.TagKey, line, s.bindings[first].Line)
		}
		s.bindingIndex[key] = len(s.bindings)
		s.bindings = append(s.bindings, Binding{BindingKey: key, Values: values.list, Line: line})

	case KindRel:
		// rel/2 is accepted as a relation with an absent label.
		if len(stmt.args) != 2 && len(stmt.args) != 3 {
			return fmt.Errorf("rel expects 2 or 3 arguments, got %d", len(stmt.args))
		}
		var fields [3]string
		for i, arg := range stmt.args {
			if arg.isList {
				return fmt.Errorf("rel argument %d must not be a list", i+1)
			}
			fields[i] = arg.value
		}
		if fields[0] == "" || fields[1] == "" {
			return fmt.Errorf("rel has an empty endpoint")
		}
		s.relations = append(s.relations, Relation{Source: fields[0], Target: fields[1], Label: fields[2]})
	}
	return nil
}

func arity(stmt statement, n int) error {
	if len(stmt.args) != n {
		return fmt.Errorf("%s expects %d arguments, got %d", stmt.functor, n, len(stmt.args))
	}
	return nil
}

func twoScalars(stmt statement) (string, string, error) {
	if err := arity(stmt, 2); err != nil {
		return "", "", err
	}
	if stmt.args[0].isList || stmt.args[1].isList {
		return "", "", fmt.Errorf("%s arguments must not be lists", stmt.functor)
	}
	if stmt.args[0].value == "" {
		return "", "", fmt.Errorf("%s has an empty key", stmt.functor)
	}
	return stmt.args[0].value, stmt.args[1].value, nil
}

// checkAliases records aliases that point nowhere or are hidden by a note
// with the same key. Both are reported rather than dropped.
func (s *Store) checkAliases(report *LoadReport) {
	for _, a := range s.aliases {
		if _, isNote := s.noteIndex[a.Key]; isNote {
			report.ShadowedAliases = append(report.ShadowedAliases, a)
		}
		_, toNote := s.noteIndex[a.Target]
		_, toAlias := s.aliasIndex[a.Target]
		if !toNote && !toAlias {
			report.DanglingAliases = append(report.DanglingAliases, a)
		}
	}
}

// ============================================================================
// Accessors
// ============================================================================

// Notes returns every note in declaration order
func (s *Store) Notes() []Note {
	return slices.Clone(s.notes)
}

// NoteCount returns the number of declared notes
func (s *Store) NoteCount() int {
	return len(s.notes)
}

// Note looks up a note by key
func (s *Store) Note(key string) (Note, bool) {
	i, ok := s.noteIndex[key]
	if !ok {
		return Note{}, false
	}
	return s.notes[i], true
}

// HasNote reports whether key is a declared note
func (s *Store) HasNote(key string) bool {
	_, ok := s.noteIndex[key]
	return ok
}

// Aliases returns every alias in declaration order
func (s *Store) Aliases() []Alias {
	return slices.Clone(s.aliases)
}

// Alias returns the key an alias points at
func (s *Store) Alias(key string) (string, bool) {
	i, ok := s.aliasIndex[key]
	if !ok {
		return "", false
	}
	return s.aliases[i].Target, true
}

// Schema returns the ordered attribute names declared for a tag
func (s *Store) Schema(tagKey string) ([]string, bool) {
	names, ok := s.schemas[tagKey]
	if !ok {
		return nil, false
	}
	return slices.Clone(names), true
}

// SchemaTags returns the tags that declare a schema, in declaration order
func (s *Store) SchemaTags() []string {
	return slices.Clone(s.schemaOrder)
}

// Binding returns the ordered values attached to (noteKey, tagKey)
func (s *Store) Binding(noteKey, tagKey string) ([]string, bool) {
	i, ok := s.bindingIndex[BindingKey{NoteKey: noteKey, TagKey: tagKey}]
	if !ok {
		return nil, false
	}
	return slices.Clone(s.bindings[i].Values), true
}

// Bindings returns every attribute binding in declaration order
func (s *Store) Bindings() []Binding {
	out := make([]Binding, len(s.bindings))
	for i, b := range s.bindings {
		b.Values = slices.Clone(b.Values)
		out[i] = b
	}
	return out
}

// Tags returns the tags assigned to a note with tag/2, in declaration order
func (s *Store) Tags(noteKey string) []string {
	return slices.Clone(s.noteTags[noteKey])
}

// Relations returns every relation as declared, duplicates included
func (s *Store) Relations() []Relation {
	return slices.Clone(s.relations)
}

// DistinctRelations collapses repeated (source, target, label) triples,
// keeping the position of the first occurrence.
func (s *Store) DistinctRelations() []Relation {
	seen := make(map[Relation]struct{}, len(s.relations))
	out := make([]Relation, 0, len(s.relations))
	for _, r := range s.relations {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
