package masking

import (
	"log/slog"
	"regexp"
	"strconv"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// builtinPattern is the uncompiled form of a built-in masking pattern.
type builtinPattern struct {
	pattern     string
	replacement string
	description string
}

// builtinPatterns is the fixed "security" pattern group: credentials,
// access keys, bearer tokens, and email addresses (SPEC_FULL.md §4.11).
var builtinPatterns = map[string]builtinPattern{
	"aws_access_key": {
		pattern:     `AKIA[0-9A-Z]{16}`,
		replacement: "[MASKED_AWS_ACCESS_KEY]",
		description: "AWS access key ID",
	},
	"bearer_token": {
		pattern:     `(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`,
		replacement: "Bearer [MASKED_TOKEN]",
		description: "HTTP bearer token",
	},
	"generic_secret_assignment": {
		pattern:     `(?i)(password|secret|token|api[_-]?key)\s*[:=]\s*["']?[^"'\s,}]+`,
		replacement: "$1=[MASKED_SECRET]",
		description: "inline key=value credential assignment",
	},
	"private_key_block": {
		pattern:     `-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]+?-----END (RSA |EC |OPENSSH )?PRIVATE KEY-----`,
		replacement: "[MASKED_PRIVATE_KEY]",
		description: "PEM private key block",
	},
	"email_address": {
		pattern:     `[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`,
		replacement: "[MASKED_EMAIL]",
		description: "email address",
	},
}

// patternGroups maps a named group to the built-in pattern names and
// structural maskers it activates. "security" is the only group this
// pipeline currently declares.
var patternGroups = map[string][]string{
	"security": {
		"aws_access_key",
		"bearer_token",
		"generic_secret_assignment",
		"private_key_block",
		"email_address",
		"secret_field",
	},
}

// resolvedPatterns holds the resolved set of maskers and patterns for a
// masking operation.
type resolvedPatterns struct {
	codeMaskerNames []string
	regexPatterns   []*CompiledPattern
}

// compileBuiltinPatterns compiles all built-in regex patterns. Invalid
// patterns are logged and skipped; a pattern here is a hand-authored
// constant, so a compile failure indicates a programming error that should
// never ship, not a runtime condition to recover gracefully from.
func (s *Service) compileBuiltinPatterns() {
	for name, p := range builtinPatterns {
		compiled, err := regexp.Compile(p.pattern)
		if err != nil {
			slog.Error("failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: p.replacement,
			Description: p.description,
		}
	}
}

// compileCustomPatterns compiles operator-supplied custom patterns from
// configuration. Custom patterns are keyed as "custom:{index}".
func (s *Service) compileCustomPatterns(custom []customPatternSource) {
	for i, p := range custom {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("failed to compile custom masking pattern, skipping",
				"index", i, "error", err)
			continue
		}
		name := customPatternName(i)
		s.patterns[name] = &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: p.Replacement,
			Description: p.Description,
		}
		s.customPatternNames = append(s.customPatternNames, name)
	}
}

func customPatternName(i int) string {
	return "custom:" + strconv.Itoa(i)
}

// customPatternSource is the minimal shape compileCustomPatterns needs from
// config.MaskingPattern, decoupling this package from the config package's
// exact struct layout.
type customPatternSource struct {
	Pattern     string
	Replacement string
	Description string
}

// resolvePatternsFromGroups expands the configured pattern groups plus any
// custom patterns into a deduplicated resolvedPatterns.
func (s *Service) resolvePatternsFromGroups(groups []string) *resolvedPatterns {
	seen := make(map[string]bool)
	resolved := &resolvedPatterns{}

	for _, groupName := range groups {
		for _, name := range patternGroups[groupName] {
			if seen[name] {
				continue
			}
			seen[name] = true
			s.addToResolved(resolved, name)
		}
	}

	for _, name := range s.customPatternNames {
		if seen[name] {
			continue
		}
		seen[name] = true
		s.addToResolved(resolved, name)
	}

	return resolved
}

// addToResolved adds a pattern name to the resolved set, categorizing it as
// either a code masker or a regex pattern.
func (s *Service) addToResolved(resolved *resolvedPatterns, name string) {
	if masker, ok := s.codeMaskers[name]; ok {
		resolved.codeMaskerNames = append(resolved.codeMaskerNames, masker.Name())
		return
	}
	if cp, ok := s.patterns[name]; ok {
		resolved.regexPatterns = append(resolved.regexPatterns, cp)
	}
}
