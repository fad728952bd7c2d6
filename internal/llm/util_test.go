package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	const verdict = `{"verdict": "accepted", "reason": "plant opening"}`

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", verdict, verdict},
		{"json fence", "```json\n" + verdict + "\n```", verdict},
		{"bare fence", "```\n" + verdict + "\n```", verdict},
		{"fence with other language tag", "```text\n" + verdict + "\n```", verdict},
		{"preamble", "Here is my assessment of the article:\n\n" + verdict, verdict},
		{"trailing chatter", verdict + "\n\nThe article is clearly about Acme.", verdict},
		{"braces inside a string", `{"verdict": "rejected", "reason": "only a {ticker} table"}`, `{"verdict": "rejected", "reason": "only a {ticker} table"}`},
		{"escaped quotes", `Answer: {"verdict": "rejected", "reason": "says \"no comment\""} ok`, `{"verdict": "rejected", "reason": "says \"no comment\""}`},
		{"nested", `{"verdict": "accepted", "meta": {"lang": "ko"}}`, `{"verdict": "accepted", "meta": {"lang": "ko"}}`},
		{"array", "Results:\n[\"accepted\", \"rejected\"] done", `["accepted", "rejected"]`},
		{"no json", "  accepted \n", "accepted"},
		{"unterminated", `{"verdict": "acc`, `{"verdict": "acc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	assert.Equal(t, `{"a": [1, {"b": 2}]}`, extractJSONObject(`{"a": [1, {"b": 2}]} tail`))
	assert.Equal(t, `[[1], [2]]`, extractJSONArray(`[[1], [2]],`))
	assert.Empty(t, extractJSONObject(""))
	assert.Empty(t, extractJSONObject(`x{"a": 1}`))
	assert.Empty(t, extractJSONArray(`[1, 2`))
}

func TestStripThinkBlock(t *testing.T) {
	input := "<think>\nThe article is about earnings.\n</think>\n{\"verdict\": \"accepted\"}"
	assert.Equal(t, `{"verdict": "accepted"}`, StripThinkBlock(input))
	assert.Empty(t, StripThinkBlock("<think>only thoughts</think>"))
}
