package transcript

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/BaSui01/convtree/testutil/fixtures"
	"github.com/BaSui01/convtree/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument_KeyOrder(t *testing.T) {
	doc := NewDocument("doc", "C-", "retail", fixtures.SampleTurns(1), fixtures.SampleModeratorLog(),
		map[string]string{"user": "m"}, fixedTime)

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	want := `{"id":"doc","intent":"intent-0","domain":"retail","model list":{"user":"m"},` +
		`"timestamp":"05-03-2024 14:07:09",` +
		`"interactions":[{"intent":"intent-0","user":"user prompt 0","assistant":"assistant response 0"}],` +
		`"moderator":[{"Turn0":["compare plans","ask about fees"]},{"Turn1":["request a summary"]}]}`
	assert.JSONEq(t, want, string(data))

	keys := []string{`"id"`, `"intent"`, `"domain"`, `"model list"`, `"timestamp"`, `"interactions"`, `"moderator"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(string(data), k)
		require.Greater(t, idx, last, "key %s out of order", k)
		last = idx
	}
}

func TestNewDocument_CopiesInputs(t *testing.T) {
	turns := fixtures.SampleTurns(1)
	log := []types.ModeratorEntry{{TurnIndex: 0, SuggestedSubIntents: []string{"a"}}}
	models := map[string]string{"user": "m"}

	doc := NewDocument("doc", "C-", "d", turns, log, models, fixedTime)
	turns[0].Intent = "changed"
	log[0].SuggestedSubIntents[0] = "changed"
	models["user"] = "changed"

	assert.Equal(t, "intent-0", doc.Interactions[0].Intent)
	assert.Equal(t, []string{"a"}, doc.Moderator[0]["Turn0"])
	assert.Equal(t, "m", doc.ModelList["user"])
}

func TestNewDocument_EmptyBranch(t *testing.T) {
	doc := NewDocument("doc", "C-", "d", nil, nil, nil, fixedTime)
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"intent":""`)
	assert.Contains(t, string(data), `"interactions":[]`)
	assert.Contains(t, string(data), `"moderator":[]`)
	assert.Contains(t, string(data), `"model list":{}`)
}

func TestFormatCost(t *testing.T) {
	tests := []struct {
		tokens int
		rate   float64
		want   string
	}{
		{0, 0.5, "$ 0.0"},
		{1_000_000, 0.5, "$ 0.5"},
		{2_000_000, 1, "$ 2.0"},
		{1200, 0.5, "$ 0.0006"},
		{4_000_000, 0.25, "$ 1.0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatCost(tt.tokens, tt.rate))
	}
}

func TestNewLedgerRecord_PerRolePricing(t *testing.T) {
	rec := NewLedgerRecord("doc", types.TokenLedger{User: 1_000_000, Assistant: 1_000_000, Moderator: 1_000_000},
		Pricing{User: 1, Assistant: 2, Moderator: 0.5})
	assert.Equal(t, "$ 1.0", rec.User.TokenCost)
	assert.Equal(t, "$ 2.0", rec.Assistant.TokenCost)
	assert.Equal(t, "$ 0.5", rec.Moderator.TokenCost)

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doc_id":"doc",
		"User LLM":{"token count":1000000,"token cost":"$ 1.0"},
		"Assistant LLM":{"token count":1000000,"token cost":"$ 2.0"},
		"Moderator LLM":{"token count":1000000,"token cost":"$ 0.5"}}`, string(data))
}

func TestErrorLine(t *testing.T) {
	assert.Equal(t, "ask about fees,banking,C-1-2-", ErrorLine("ask about fees", "banking", "C-1-2-"))
}
