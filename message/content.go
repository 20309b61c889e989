package message

import (
	"encoding/json"
	"strings"
)

// contentBlock is one entry of a block-array content value. Only text and
// thinking blocks contribute to the extracted result; tool use and other
// block kinds are skipped.
type contentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// contentObject is the single-object content shape some gateway versions
// emit instead of a block array.
type contentObject struct {
	Text     string `json:"text"`
	Thinking string `json:"thinking"`
}

// ExtractContent decodes the structured content of a terminal chat event
// into visible text and optional reasoning text. The gateway emits content
// as a bare string, as an array of typed blocks, or as a nested object;
// anything else extracts to empty strings rather than an error.
func ExtractContent(raw json.RawMessage) (text, reasoning string) {
	if len(raw) == 0 {
		return "", ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var texts, thoughts []string
		for _, b := range blocks {
			switch b.Type {
			case "text":
				if b.Text != "" {
					texts = append(texts, b.Text)
				}
			case "thinking":
				if b.Thinking != "" {
					thoughts = append(thoughts, b.Thinking)
				}
			}
		}
		return strings.Join(texts, "\n"), strings.Join(thoughts, "\n")
	}

	var obj contentObject
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text, obj.Thinking
	}

	return "", ""
}
