package query

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"strings"

	"go.uber.org/zap"

	"pkm/backend/internal/facts"
	apperrors "pkm/backend/pkg/errors"
	"pkm/backend/pkg/logger"
)

// Opener performs the OS-level "open" action on a resolved locator
type Opener interface {
	Open(ctx context.Context, locator string) error
}

// Resolver answers read-only lookups over a loaded fact store
type Resolver struct {
	store  *facts.Store
	logger *zap.Logger
}

// NewResolver creates a resolver over store
func NewResolver(store *facts.Store) *Resolver {
	return &Resolver{
		store:  store,
		logger: logger.Get(),
	}
}

// Resolve returns the locator of the note named by key. An alias is followed
// to the key it names, and so on hop by hop while the source declares further
// aliases; revisiting a key is reported as an alias cycle.
func (r *Resolver) Resolve(key string) (string, error) {
	var chain []string
	seen := make(map[string]bool)
	current := key

	for {
		if note, ok := r.store.Note(current); ok {
			return note.Locator, nil
		}
		if seen[current] {
			return "", apperrors.NewAliasCycle(append(chain, current))
		}

		target, ok := r.store.Alias(current)
		if !ok {
			if len(chain) == 0 {
				return "", fmt.Errorf("key %q: %w", key, apperrors.ErrNotFound)
			}
			return "", fmt.Errorf("alias %q points at unknown key %q: %w", chain[len(chain)-1], current, apperrors.ErrNotFound)
		}

		seen[current] = true
		chain = append(chain, current)
		current = target
	}
}

// Autocomplete yields every note key starting with prefix, in declaration
// order. Matching is case sensitive and exact. The sequence is evaluated on
// each iteration, so it can be ranged over more than once.
func (r *Resolver) Autocomplete(prefix string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, note := range r.store.Notes() {
			if !strings.HasPrefix(note.Key, prefix) {
				continue
			}
			if !yield(note.Key) {
				return
			}
		}
	}
}

// SortedAutocomplete returns the Autocomplete matches in lexicographic order,
// for consumers that need an ordering independent of the source layout.
func (r *Resolver) SortedAutocomplete(prefix string) []string {
	matches := slices.Collect(r.Autocomplete(prefix))
	slices.Sort(matches)
	return matches
}

// OpenTarget resolves the first note whose key starts with prefix. An
// ambiguous prefix silently selects the first match in declaration order.
func (r *Resolver) OpenTarget(prefix string) (string, error) {
	for key := range r.Autocomplete(prefix) {
		locator, err := r.Resolve(key)
		if err != nil {
			return "", err
		}
		r.logger.Debug("Prefix resolved",
			zap.String("prefix", prefix),
			zap.String("key", key),
			zap.String("locator", locator),
		)
		return locator, nil
	}
	return "", fmt.Errorf("prefix %q: %w", prefix, apperrors.ErrNoMatch)
}

// Open resolves prefix with OpenTarget and hands the locator to opener
func (r *Resolver) Open(ctx context.Context, prefix string, opener Opener) error {
	locator, err := r.OpenTarget(prefix)
	if err != nil {
		return err
	}
	if err := opener.Open(ctx, locator); err != nil {
		return fmt.Errorf("failed to open %s: %w", locator, err)
	}
	return nil
}

// NotesWithTag returns the keys of notes tagged with tagKey, in declaration order
func (r *Resolver) NotesWithTag(tagKey string) []string {
	var out []string
	for _, note := range r.store.Notes() {
		if slices.Contains(r.store.Tags(note.Key), tagKey) {
			out = append(out, note.Key)
		}
	}
	return out
}
