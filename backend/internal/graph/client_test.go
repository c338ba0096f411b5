package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"special case of", "SPECIAL_CASE_OF"},
		{"special-case of", "SPECIAL_CASE_OF"},
		{"", "RELATED_TO"},
		{"   ", "RELATED_TO"},
		{" uses ", "USES"},
		{"is\tpart-of", "IS_PART_OF"},
		{"already_TOKEN", "ALREADY_TOKEN"},
		{"élève de", "ÉLÈVE_DE"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLabel(tt.label))
		})
	}
}

func TestQuoteRelationType(t *testing.T) {
	assert.Equal(t, "`SPECIAL_CASE_OF`", quoteRelationType("SPECIAL_CASE_OF"))
	assert.Equal(t, "`A``B`", quoteRelationType("A`B"))
}
