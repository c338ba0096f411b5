package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// recordValue reads key from record. Missing keys, nulls and values of another
// type all yield the zero value. Cypher integers arrive as int64.
func recordValue[T any](record *neo4j.Record, key string) T {
	var zero T
	val, ok := record.Get(key)
	if !ok || val == nil {
		return zero
	}
	if v, ok := val.(T); ok {
		return v
	}
	return zero
}

// recordStrings reads a Cypher list of strings, dropping non-string elements
func recordStrings(record *neo4j.Record, key string) []string {
	list := recordValue[[]any](record, key)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
