package providers

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/convtree/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		code      llm.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", llm.ErrUnauthorized, false},
		{http.StatusForbidden, "nope", llm.ErrForbidden, false},
		{http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{http.StatusBadRequest, "Monthly quota exhausted", llm.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "messages must not be empty", llm.ErrInvalidRequest, false},
		{http.StatusBadGateway, "bad gateway", llm.ErrUpstreamError, true},
		{http.StatusServiceUnavailable, "overloaded", llm.ErrUpstreamError, true},
		{http.StatusGatewayTimeout, "timeout", llm.ErrUpstreamTimeout, true},
		{529, "overloaded", llm.ErrModelOverloaded, true},
		{http.StatusInternalServerError, "boom", llm.ErrUpstreamError, true},
		{http.StatusNotFound, "no such model", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status)+"/"+tt.msg, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "anyscale")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "anyscale", err.Provider)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai error", `{"error":{"message":"model not found","type":"invalid_request_error"}}`, "model not found (type: invalid_request_error)"},
		{"message only", `{"error":{"message":"rate limited"}}`, "rate limited"},
		{"plain text", "  upstream unavailable\n", "upstream unavailable"},
		{"empty json error", `{"error":{}}`, `{"error":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReadErrorMessage(strings.NewReader(tt.body)))
		})
	}
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	out := ConvertMessagesToOpenAI([]llm.Message{
		{Role: llm.RoleSystem, Content: "be kind"},
		{Role: llm.RoleUser, Content: "hi", Name: "u"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, OpenAICompatMessage{Role: "system", Content: "be kind"}, out[0])
	assert.Equal(t, OpenAICompatMessage{Role: "user", Content: "hi", Name: "u"}, out[1])
	assert.Empty(t, ConvertMessagesToOpenAI(nil))
}

func TestToLLMChatResponse(t *testing.T) {
	resp := ToLLMChatResponse(OpenAICompatResponse{
		ID:    "cmpl-1",
		Model: "mixtral",
		Choices: []OpenAICompatChoice{
			{Index: 0, FinishReason: "stop", Message: OpenAICompatMessage{Role: "assistant", Content: "hello"}},
		},
		Usage: &OpenAICompatUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, "anyscale")

	assert.Equal(t, "cmpl-1", resp.ID)
	assert.Equal(t, "anyscale", resp.Provider)
	assert.Equal(t, "hello", resp.FirstContent())
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, 5, resp.Usage.TotalTokens)

	// 缺少 usage 时保持零值，由调用方本地估算
	noUsage := ToLLMChatResponse(OpenAICompatResponse{Model: "m"}, "p")
	assert.Zero(t, noUsage.Usage.TotalTokens)
	assert.Equal(t, "", noUsage.FirstContent())
}

func TestChooseModel(t *testing.T) {
	tests := []struct {
		name     string
		req      *llm.ChatRequest
		def      string
		fallback string
		want     string
	}{
		{"request wins", &llm.ChatRequest{Model: "req"}, "def", "fb", "req"},
		{"default next", &llm.ChatRequest{}, "def", "fb", "def"},
		{"fallback last", &llm.ChatRequest{}, "", "fb", "fb"},
		{"nil request", nil, "def", "fb", "def"},
		{"nothing", nil, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ChooseModel(tt.req, tt.def, tt.fallback))
		})
	}
}

func TestBearerTokenHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	BearerTokenHeaders(req, "sk-1")
	assert.Equal(t, "Bearer sk-1", req.Header.Get("Authorization"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
}

func TestNewHTTPClient(t *testing.T) {
	c := NewHTTPClient(time.Minute)
	require.NotNil(t, c)
	assert.Equal(t, time.Minute, c.Timeout)
	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
}
