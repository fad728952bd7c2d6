package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Suitability(t *testing.T) {
	prompt, err := Render(SuitabilityFile, SuitabilityKey, Article{
		Company: "Acme",
		Title:   "Acme opens plant",
		Article: "Acme opened a plant in Ulsan.",
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "Target company: Acme")
	assert.Contains(t, prompt, "Article title: Acme opens plant")
	assert.Contains(t, prompt, "Acme opened a plant in Ulsan.")
	assert.Contains(t, prompt, `{"verdict": "accepted" | "rejected"`)
	assert.NotContains(t, prompt, "{{")
}

func TestRender_MissingDataFails(t *testing.T) {
	_, err := Render(SuitabilityFile, SuitabilityKey, map[string]string{"Company": "Acme"})
	assert.ErrorContains(t, err, "failed to render prompt")
}

func TestLookup_Errors(t *testing.T) {
	_, err := Lookup("nonexistent.json", SuitabilityKey)
	assert.ErrorContains(t, err, "failed to read prompt file")

	_, err = Lookup(SuitabilityFile, "nonexistent-key")
	assert.ErrorContains(t, err, "not found")
}

func TestLookup_ParsesOnce(t *testing.T) {
	first, err := Lookup(SuitabilityFile, SuitabilityKey)
	require.NoError(t, err)
	second, err := Lookup(SuitabilityFile, SuitabilityKey)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestKeys(t *testing.T) {
	keys, err := Keys(SuitabilityFile)
	require.NoError(t, err)
	assert.Equal(t, []string{SuitabilityKey}, keys)
}
