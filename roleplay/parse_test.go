package roleplay

import (
	"testing"

	"github.com/BaSui01/convtree/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserPrompt(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     string
		wantCode types.ErrorCode
	}{
		{"json", `{"prompt": "How do I open an account?"}`, "How do I open an account?", ""},
		{"json with prose", "Sure!\n{\"prompt\": \"Hi there\"}\nHope that helps.", "Hi there", ""},
		{"code fenced json", "```json\n{\"prompt\": \"fenced\"}\n```", "fenced", ""},
		{"raw text", "What are the fees?", "What are the fees?", ""},
		{"speaker label", `User: "Can you help me?"`, "Can you help me?", ""},
		{"braces in prose", "How do I escape {braces} in Go templates?", "How do I escape {braces} in Go templates?", ""},
		{"empty", "   ", "", types.ErrEmptyOutput},
		{"empty prompt field", `{"prompt": "  "}`, "", types.ErrEmptyOutput},
		{"broken json", `{"prompt": "unterminated}`, "", types.ErrMalformedOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUserPrompt(tt.raw)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSubIntents(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		want     []string
		wantCode types.ErrorCode
	}{
		{"json", `{"intents": ["compare plans", " ask about fees ", ""]}`, []string{"compare plans", "ask about fees"}, ""},
		{"json empty list", `{"intents": []}`, []string{}, ""},
		{"numbered list", "Here are ideas:\n1. compare plans\n2.ask about fees\n- not numbered", []string{"compare plans", "ask about fees"}, ""},
		{"json without key falls back", "{\"ideas\": []}\n1. only one", []string{"only one"}, ""},
		{"prose", "I think the conversation is fine.", nil, types.ErrMalformedOutput},
		{"empty", "", nil, types.ErrEmptyOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubIntents(tt.raw)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNumberedList(t *testing.T) {
	text := "Ideas:\n\n1. Plan a trip\n\n2. Budget the trip\n10. Pack light\n3.\n"
	assert.Equal(t, []string{"Plan a trip", "Budget the trip", "Pack light"}, ParseNumberedList(text))
	assert.Empty(t, ParseNumberedList("no list here"))
}
