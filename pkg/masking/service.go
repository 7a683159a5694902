package masking

import (
	"log/slog"

	"github.com/sentinelpipe/sentinel/pkg/config"
)

// Service applies data masking to finding payloads. Created once at
// application startup (singleton). Thread-safe and stateless aside from
// compiled patterns, which are fixed for the process lifetime.
type Service struct {
	patterns           map[string]*CompiledPattern
	codeMaskers        map[string]Masker
	customPatternNames []string
	groups             []string
	enabled            bool
}

// NewService creates a masking service with compiled patterns and
// registered structural maskers. All patterns are compiled eagerly at
// creation time; invalid patterns are logged and skipped.
func NewService(cfg *config.MaskingConfig) *Service {
	s := &Service{
		patterns:    make(map[string]*CompiledPattern),
		codeMaskers: make(map[string]Masker),
	}

	if cfg == nil {
		cfg = config.DefaultMaskingConfig()
	}
	s.enabled = cfg.Enabled
	s.groups = cfg.PatternGroups

	s.registerMasker(&SecretFieldMasker{})
	s.compileBuiltinPatterns()

	custom := make([]customPatternSource, 0, len(cfg.CustomPatterns))
	for _, p := range cfg.CustomPatterns {
		custom = append(custom, customPatternSource{
			Pattern:     p.Pattern,
			Replacement: p.Replacement,
			Description: p.Description,
		})
	}
	s.compileCustomPatterns(custom)

	slog.Info("masking service initialized",
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.codeMaskers),
		"enabled", s.enabled)

	return s
}

// MaskRaw redacts a finding's free-text raw payload before it is handed to
// the Bus for storage (SPEC_FULL.md §4.11). Fail-open: a masking failure is
// logged and the unmasked field is stored rather than losing the event.
func (s *Service) MaskRaw(data string) string {
	if !s.enabled || data == "" {
		return data
	}

	resolved := s.resolvePatternsFromGroups(s.groups)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return data
	}

	masked, err := s.applyMasking(data, resolved)
	if err != nil {
		slog.Error("raw payload masking failed, storing unmasked (fail-open)", "error", err)
		return data
	}
	return masked
}

// MaskForPrompt redacts a field before it is interpolated into the
// Deep-Analysis oracle prompt (SPEC_FULL.md §4.11). Fail-closed: a masking
// failure drops the offending field rather than risk leaking raw content
// to the LLM oracle.
func (s *Service) MaskForPrompt(data string) string {
	if !s.enabled || data == "" {
		return data
	}

	resolved := s.resolvePatternsFromGroups(s.groups)
	if len(resolved.codeMaskerNames) == 0 && len(resolved.regexPatterns) == 0 {
		return data
	}

	masked, err := s.applyMasking(data, resolved)
	if err != nil {
		slog.Error("prompt field masking failed, dropping field (fail-closed)", "error", err)
		return ""
	}
	return masked
}

// applyMasking applies code-based maskers then regex patterns to content.
func (s *Service) applyMasking(content string, resolved *resolvedPatterns) (string, error) {
	masked := content

	// Phase 1: code-based maskers (structural awareness).
	for _, maskerName := range resolved.codeMaskerNames {
		masker, ok := s.codeMaskers[maskerName]
		if !ok {
			continue
		}
		if masker.AppliesTo(masked) {
			masked = masker.Mask(masked)
		}
	}

	// Phase 2: regex patterns (general sweep).
	for _, pattern := range resolved.regexPatterns {
		masked = pattern.Regex.ReplaceAllString(masked, pattern.Replacement)
	}

	return masked, nil
}

func (s *Service) registerMasker(m Masker) {
	s.codeMaskers[m.Name()] = m
}
