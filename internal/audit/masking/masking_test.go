package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("1234"))
	assert.Equal(t, "****7890", MaskSecret("1234567890"))
}

func TestMaskFields(t *testing.T) {
	in := map[string]any{
		"bank_account": "0123456789",
		"category":     "rent",
		"":             "dropped",
		"nested": map[string]any{
			"Bank_Account": "55554444",
			"amount":       "150.00",
		},
		"history": []any{map[string]any{"bank_account": "99998888"}},
	}

	out := MaskFields(in, SensitiveKeys...)

	assert.Equal(t, "****6789", out["bank_account"])
	assert.Equal(t, "rent", out["category"])
	assert.NotContains(t, out, "")
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****4444", nested["Bank_Account"])
	assert.Equal(t, "150.00", nested["amount"])
	history := out["history"].([]any)
	assert.Equal(t, "****8888", history[0].(map[string]any)["bank_account"])

	assert.Equal(t, "0123456789", in["bank_account"])
	assert.Nil(t, MaskFields(nil))
}
