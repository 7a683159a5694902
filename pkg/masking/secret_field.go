package masking

import (
	"encoding/json"
	"strings"
)

// MaskedFieldValue is the replacement for masked structural secret fields.
const MaskedFieldValue = "[MASKED_SECRET_FIELD]"

// secretFieldNames are JSON object keys treated as secret-shaped regardless
// of their value's content.
var secretFieldNames = map[string]bool{
	"password":    true,
	"passwd":      true,
	"secret":      true,
	"secret_key":  true,
	"token":       true,
	"access_key":  true,
	"private_key": true,
	"api_key":     true,
	"credential":  true,
	"credentials": true,
}

// SecretFieldMasker walks a JSON object and redacts the value of any key
// whose name is secret-shaped, leaving sibling fields untouched. It is the
// structural counterpart to the regex pattern set for nested secret-shaped
// fields that a flat regex sweep over raw bytes would miss.
type SecretFieldMasker struct{}

// Name returns the unique identifier for this masker.
func (m *SecretFieldMasker) Name() string { return "secret_field" }

// AppliesTo performs a lightweight check on whether this masker should
// process the data.
func (m *SecretFieldMasker) AppliesTo(data string) bool {
	trimmed := strings.TrimSpace(data)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// Mask parses data as JSON and redacts secret-shaped fields. Returns the
// original data unchanged if it does not parse as JSON (defensive).
func (m *SecretFieldMasker) Mask(data string) string {
	var parsed any
	if err := json.Unmarshal([]byte(data), &parsed); err != nil {
		return data
	}

	redacted, changed := m.redact(parsed)
	if !changed {
		return data
	}

	out, err := json.Marshal(redacted)
	if err != nil {
		return data
	}
	return string(out)
}

func (m *SecretFieldMasker) redact(v any) (any, bool) {
	switch val := v.(type) {
	case map[string]any:
		changed := false
		result := make(map[string]any, len(val))
		for k, child := range val {
			if secretFieldNames[strings.ToLower(k)] {
				result[k] = MaskedFieldValue
				changed = true
				continue
			}
			redactedChild, childChanged := m.redact(child)
			result[k] = redactedChild
			changed = changed || childChanged
		}
		return result, changed
	case []any:
		changed := false
		result := make([]any, len(val))
		for i, child := range val {
			redactedChild, childChanged := m.redact(child)
			result[i] = redactedChild
			changed = changed || childChanged
		}
		return result, changed
	default:
		return v, false
	}
}
