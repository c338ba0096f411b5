// Package schema checks attribute values against the field lists tags declare.
package schema

import (
	"fmt"
	"slices"

	"pkm/backend/internal/facts"
	apperrors "pkm/backend/pkg/errors"
)

// Field is one name/value pair of a note's attributes for a tag
type Field struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Violation describes a binding that does not fit its tag's schema
type Violation struct {
	NoteKey string `json:"note" yaml:"note"`
	TagKey  string `json:"tag" yaml:"tag"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty"`
	Reason  string `json:"reason" yaml:"reason"`
}

// aligned returns the schema and value lists for (noteKey, tagKey) once
// both exist and have the same length.
func aligned(store *facts.Store, noteKey, tagKey string) ([]string, []string, error) {
	names, ok := store.Schema(tagKey)
	if !ok {
		return nil, nil, fmt.Errorf("no schema for tag %q: %w", tagKey, apperrors.ErrNotFound)
	}
	values, ok := store.Binding(noteKey, tagKey)
	if !ok {
		return nil, nil, fmt.Errorf("no %q attributes for note %q: %w", tagKey, noteKey, apperrors.ErrNotFound)
	}
	if len(names) != len(values) {
		return nil, nil, apperrors.NewSchemaMismatch(noteKey, tagKey, len(names), len(values))
	}
	return names, values, nil
}

// FieldValue returns the value of fieldName for a note's tag attributes,
// using the position of fieldName in the tag schema as the index into the
// bound value list.
func FieldValue(store *facts.Store, noteKey, tagKey, fieldName string) (string, error) {
	names, values, err := aligned(store, noteKey, tagKey)
	if err != nil {
		return "", err
	}
	i := slices.Index(names, fieldName)
	if i < 0 {
		return "", fmt.Errorf("field %q is not part of the %q schema: %w", fieldName, tagKey, apperrors.ErrNotFound)
	}
	return values[i], nil
}

// Fields projects a note's tag attributes into ordered name/value pairs
func Fields(store *facts.Store, noteKey, tagKey string) ([]Field, error) {
	names, values, err := aligned(store, noteKey, tagKey)
	if err != nil {
		return nil, err
	}
	out := make([]Field, len(names))
	for i := range names {
		out[i] = Field{Name: names[i], Value: values[i]}
	}
	return out, nil
}

// Validate checks every binding in the store and returns the ones that
// cannot be read back through FieldValue.
func Validate(store *facts.Store) []Violation {
	var out []Violation
	for _, b := range store.Bindings() {
		names, ok := store.Schema(b.TagKey)
		switch {
		case !ok:
			out = append(out, Violation{NoteKey: b.NoteKey, TagKey: b.TagKey, Line: b.Line,
				Reason: fmt.Sprintf("tag %q declares no schema", b.TagKey)})
		case len(names) != len(b.Values):
			out = append(out, Violation{NoteKey: b.NoteKey, TagKey: b.TagKey, Line: b.Line,
				Reason: fmt.Sprintf("%d values for %d fields", len(b.Values), len(names))})
		}
	}
	return out
}
