package suitability

import (
	"encoding/json"
	"strings"

	"github.com/jonathan/news-ingest/internal/llm"
	"github.com/jonathan/news-ingest/internal/schemas"
	"github.com/jonathan/news-ingest/internal/types"
)

// Verdict is the parsed classifier outcome for one article.
type Verdict struct {
	Suitability types.Suitability `json:"verdict"`
	Reason      string            `json:"reason,omitempty"`
	// Ambiguous is set when the output could not be mapped and was rejected by default.
	Ambiguous bool   `json:"-"`
	Raw       string `json:"-"`
}

// Accepted reports whether the article passed the filter.
func (v Verdict) Accepted() bool {
	return v.Suitability == types.SuitabilityAccepted
}

var verdictTokens = map[string]types.Suitability{
	"accepted":   types.SuitabilityAccepted,
	"accept":     types.SuitabilityAccepted,
	"suitable":   types.SuitabilityAccepted,
	"relevant":   types.SuitabilityAccepted,
	"yes":        types.SuitabilityAccepted,
	"1":          types.SuitabilityAccepted,
	"적합":         types.SuitabilityAccepted,
	"rejected":   types.SuitabilityRejected,
	"reject":     types.SuitabilityRejected,
	"unsuitable": types.SuitabilityRejected,
	"irrelevant": types.SuitabilityRejected,
	"no":         types.SuitabilityRejected,
	"0":          types.SuitabilityRejected,
	"부적합":        types.SuitabilityRejected,
}

// ParseVerdict maps raw classifier output onto exactly one of accepted or rejected.
// Only a schema-valid JSON verdict or a single known token is accepted as-is; any
// other output is rejected with Ambiguous set.
func ParseVerdict(raw string) Verdict {
	text := llm.CleanJSONBlock(llm.StripThinkBlock(raw))

	if strings.HasPrefix(text, "{") {
		if err := schemas.Validate(schemas.Verdict, []byte(text)); err != nil {
			return ambiguous(raw)
		}
		var v struct {
			Verdict string `json:"verdict"`
			Reason  string `json:"reason"`
		}
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return ambiguous(raw)
		}
		return Verdict{Suitability: types.Suitability(v.Verdict), Reason: v.Reason, Raw: raw}
	}

	token := strings.ToLower(strings.Trim(text, " \t\r\n.!\"'`*"))
	if s, ok := verdictTokens[token]; ok {
		return Verdict{Suitability: s, Raw: raw}
	}
	return ambiguous(raw)
}

func ambiguous(raw string) Verdict {
	return Verdict{Suitability: types.SuitabilityRejected, Ambiguous: true, Raw: raw}
}
