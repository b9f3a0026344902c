package masking

import "strings"

const maskToken = "****"

// SensitiveKeys are metadata keys that never reach the audit log in clear text.
var SensitiveKeys = []string{"bank_account", "account_number"}

// MaskSecret redacts a secret while keeping a minimal suffix for auditing.
func MaskSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if len(trimmed) <= 4 {
		return maskToken
	}
	return maskToken + trimmed[len(trimmed)-4:]
}

// MaskFields returns a copy of input with the string values under keys masked,
// at any depth. Empty keys are dropped.
func MaskFields(input map[string]any, keys ...string) map[string]any {
	if len(input) == 0 {
		return nil
	}

	sensitive := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		sensitive[strings.ToLower(key)] = struct{}{}
	}
	return maskMap(input, sensitive)
}

func maskMap(input map[string]any, sensitive map[string]struct{}) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, ok := sensitive[strings.ToLower(trimmedKey)]; ok {
			if str, isString := value.(string); isString {
				out[trimmedKey] = MaskSecret(str)
				continue
			}
		}
		out[trimmedKey] = maskValue(value, sensitive)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func maskValue(value any, sensitive map[string]struct{}) any {
	switch cast := value.(type) {
	case map[string]any:
		return maskMap(cast, sensitive)
	case []any:
		out := make([]any, 0, len(cast))
		for _, item := range cast {
			out = append(out, maskValue(item, sensitive))
		}
		return out
	default:
		return value
	}
}
