package roleplay

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BaSui01/convtree/types"
)

var (
	numberedLine = regexp.MustCompile(`^\s*\d+\.\s*(.*)$`)
	speakerLabel = regexp.MustCompile(`(?i)^\s*(user|prompt)\s*:\s*`)
)

// ParseUserPrompt extracts the user's message from a model reply. JSON
// {"prompt": "..."} is preferred; otherwise the raw text is used with any
// leading speaker label stripped.
func ParseUserPrompt(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", types.NewError(types.ErrEmptyOutput, "user agent returned no text")
	}

	if obj, ok := extractJSONObject(text); ok {
		var v struct {
			Prompt *string `json:"prompt"`
		}
		if err := json.Unmarshal([]byte(obj), &v); err == nil && v.Prompt != nil {
			prompt := strings.TrimSpace(*v.Prompt)
			if prompt == "" {
				return "", types.NewError(types.ErrEmptyOutput, "user agent returned an empty prompt")
			}
			return prompt, nil
		}
	}

	body := strings.TrimSpace(stripCodeFence(text))
	if strings.HasPrefix(body, "{") {
		return "", types.NewError(types.ErrMalformedOutput, "user agent returned malformed JSON")
	}

	prompt := strings.TrimSpace(speakerLabel.ReplaceAllString(body, ""))
	prompt = strings.Trim(prompt, `"`)
	if prompt == "" {
		return "", types.NewError(types.ErrEmptyOutput, "user agent returned an empty prompt")
	}
	return prompt, nil
}

// ParseSubIntents extracts the moderator's suggestions. A JSON object with an
// "intents" key is authoritative even when the list is empty; otherwise a
// numbered list ("1. ...") is accepted. Anything else is malformed.
func ParseSubIntents(raw string) ([]string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, types.NewError(types.ErrEmptyOutput, "moderator returned no text")
	}

	if obj, ok := extractJSONObject(text); ok {
		var v struct {
			Intents *[]string `json:"intents"`
		}
		if err := json.Unmarshal([]byte(obj), &v); err == nil && v.Intents != nil {
			return cleanList(*v.Intents), nil
		}
	}

	if ideas := ParseNumberedList(text); len(ideas) > 0 {
		return ideas, nil
	}
	return nil, types.NewError(types.ErrMalformedOutput, "moderator reply has no intents list")
}

// ParseNumberedList returns the items of every "N. item" line in text.
func ParseNumberedList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		m := numberedLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if item := strings.TrimSpace(m[1]); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// extractJSONObject returns the outermost {...} span in text.
func extractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(text), "```")
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s := strings.TrimSpace(it); s != "" {
			out = append(out, s)
		}
	}
	return out
}
