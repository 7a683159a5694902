package masking

import (
	"testing"

	"github.com/sentinelpipe/sentinel/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestCompileBuiltinPatterns(t *testing.T) {
	s := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"security"}})

	for name := range builtinPatterns {
		_, ok := s.patterns[name]
		assert.Truef(t, ok, "expected builtin pattern %q to be compiled", name)
	}
}

func TestCompileCustomPatterns(t *testing.T) {
	s := NewService(&config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"security"},
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `internal-id-\d+`, Replacement: "[MASKED_INTERNAL_ID]"},
		},
	})

	assert.Len(t, s.customPatternNames, 1)
	masked := s.MaskRaw("ref internal-id-4821 flagged")
	assert.Contains(t, masked, "[MASKED_INTERNAL_ID]")
}

func TestCompileCustomPatternsSkipsInvalidRegex(t *testing.T) {
	s := NewService(&config.MaskingConfig{
		Enabled:       true,
		PatternGroups: []string{"security"},
		CustomPatterns: []config.MaskingPattern{
			{Pattern: `(unterminated`, Replacement: "x"},
		},
	})

	assert.Empty(t, s.customPatternNames)
}

func TestResolvePatternsFromGroupsDeduplicates(t *testing.T) {
	s := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"security", "security"}})

	resolved := s.resolvePatternsFromGroups(s.groups)
	seen := map[string]int{}
	for _, p := range resolved.regexPatterns {
		seen[p.Name]++
	}
	for name, count := range seen {
		assert.Equalf(t, 1, count, "pattern %q resolved more than once", name)
	}
}

func TestResolvePatternsFromGroupsUnknownGroupIsNoop(t *testing.T) {
	s := NewService(&config.MaskingConfig{Enabled: true, PatternGroups: []string{"does-not-exist"}})

	resolved := s.resolvePatternsFromGroups(s.groups)
	assert.Empty(t, resolved.regexPatterns)
	assert.Empty(t, resolved.codeMaskerNames)
}
