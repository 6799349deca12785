package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("Hi {{.guardian_name}}, {{.player_name}} is set.", map[string]any{
		"guardian_name": "Dana",
		"player_name":   "Milo",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi Dana, Milo is set.", out)
}

func TestRenderTemplatePlainTextFastPath(t *testing.T) {
	out, err := RenderTemplate("no markers here", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers here", out)
}

func TestRenderTemplateBadSyntax(t *testing.T) {
	_, err := RenderTemplate("{{.broken", nil)
	assert.Error(t, err)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"team_name": map[string]any{"type": "string"},
			"amount":    map[string]any{"type": "number"},
		},
		"required": []string{"team_name"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"team_name": "Robins"}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"team_name": "Robins", "extra": 1}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "team_name", verr.Field)

	err = ValidateParameters(map[string]any{"team_name": 42}, schema)
	assert.Error(t, err)
}

func TestValidateParametersDecodedRequiredList(t *testing.T) {
	// Schemas decoded from JSON carry required as []any.
	schema := map[string]any{
		"properties": map[string]any{"x": map[string]any{"type": "integer"}},
		"required":   []any{"x"},
	}
	assert.Error(t, ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"x": float64(3)}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"x": 3.5}, schema))
}
