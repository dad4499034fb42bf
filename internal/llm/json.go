package llm

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/owoblo/quote2move/internal/model"
)

// CleanJSON extracts the JSON object from a reply that may be wrapped in
// markdown fences or surrounding prose.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// DecodeJSON cleans text and unmarshals it into v. Failures wrap
// model.ErrMalformedOutput.
func DecodeJSON(text string, v any) error {
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return eris.Wrap(model.ErrMalformedOutput, "empty reply")
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return eris.Wrapf(model.ErrMalformedOutput, "decode reply: %v", err)
	}
	return nil
}
