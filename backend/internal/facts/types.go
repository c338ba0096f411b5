package facts

import "fmt"

// ============================================================================
// Fact Types
// ============================================================================

// Note is a uniquely keyed document pointing at a file path or URI
type Note struct {
	Key     string `json:"key" yaml:"key"`
	Locator string `json:"locator" yaml:"locator"`
	Line    int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// Alias maps a display/lookup key onto another key
type Alias struct {
	Key    string `json:"key" yaml:"key"`
	Target string `json:"target" yaml:"target"`
	Line   int    `json:"line,omitempty" yaml:"line,omitempty"`
}

// Relation is a directed, labeled edge between two notes. Two relations are
// the same fact when all three fields are equal.
type Relation struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Label  string `json:"label" yaml:"label"`
}

func (r Relation) String() string {
	return fmt.Sprintf("%s -[%s]-> %s", r.Source, r.Label, r.Target)
}

// BindingKey identifies the attribute values a note carries for one tag
type BindingKey struct {
	NoteKey string `json:"note" yaml:"note"`
	TagKey  string `json:"tag" yaml:"tag"`
}

// Binding is an ordered value list attached to a (note, tag) pair. Values
// line up positionally with the tag's attribute schema.
type Binding struct {
	BindingKey `yaml:",inline"`
	Values     []string `json:"values" yaml:"values"`
	Line       int      `json:"line,omitempty" yaml:"line,omitempty"`
}

// ParseSkip records a source line that looked like a fact but could not be parsed
type ParseSkip struct {
	Line   int    `json:"line" yaml:"line"`
	Text   string `json:"text" yaml:"text"`
	Reason string `json:"reason" yaml:"reason"`
}

// LoadReport carries load diagnostics. None of its entries are fatal.
type LoadReport struct {
	Lines           int         `json:"lines" yaml:"lines"`
	Statements      int         `json:"statements" yaml:"statements"`
	Ignored         int         `json:"ignored" yaml:"ignored"`
	Skipped         []ParseSkip `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	DanglingAliases []Alias     `json:"dangling_aliases,omitempty" yaml:"dangling_aliases,omitempty"`
	ShadowedAliases []Alias     `json:"shadowed_aliases,omitempty" yaml:"shadowed_aliases,omitempty"`
}

// SkippedCount is the number of malformed lines dropped during load
func (r *LoadReport) SkippedCount() int {
	return len(r.Skipped)
}

// HasIntegrityIssues reports whether the loaded graph references keys that do not exist
func (r *LoadReport) HasIntegrityIssues() bool {
	return len(r.DanglingAliases) > 0 || len(r.ShadowedAliases) > 0
}
