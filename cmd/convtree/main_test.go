package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convtree/llm/providers"
)

// fakeUpstream 是一个 OpenAI 兼容端点，所有角色都收到同一段 JSON，
// 其中 intents 为空，因此每棵树在第一轮之后自然终止
func fakeUpstream(t *testing.T, tokens int) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":[]}`))
		case "/v1/chat/completions":
			calls.Add(1)
			var req providers.OpenAICompatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(providers.OpenAICompatResponse{
				ID:    "cmpl",
				Model: req.Model,
				Choices: []providers.OpenAICompatChoice{{
					FinishReason: "stop",
					Message:      providers.OpenAICompatMessage{Role: "assistant", Content: `{"prompt": "hello there", "intents": []}`},
				}},
				Usage: &providers.OpenAICompatUsage{PromptTokens: tokens - 1, CompletionTokens: 1, TotalTokens: tokens},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

// writeConfig 写出指向 fakeUpstream 与临时目录的配置文件
func writeConfig(t *testing.T, baseURL string) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	agent := fmt.Sprintf("    base_url: %q\n    models: [\"model-a\"]\n", baseURL)
	content := "agents:\n" +
		"  user:\n" + agent +
		"  assistant:\n" + agent +
		"  moderator:\n" + agent +
		"  initiator:\n" + agent +
		"store:\n" +
		fmt.Sprintf("  base_dir: %q\n", filepath.Join(dir, "conversations")) +
		fmt.Sprintf("  ledger_file: %q\n", filepath.Join(dir, "token_counts.json")) +
		fmt.Sprintf("  error_log: %q\n", filepath.Join(dir, "errors.txt")) +
		"log:\n" +
		"  level: error\n" +
		fmt.Sprintf("  output_paths: [%q]\n", filepath.Join(dir, "convtree.log"))
	path = filepath.Join(dir, "convtree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "convtree dev")
	assert.Contains(t, out, "Git Commit: unknown")
}

func TestGenerateCommand_RequiresSeed(t *testing.T) {
	_, err := execute(t, "generate", "--intent", "plan a trip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain")
}

func TestGenerateCommand_EndToEnd(t *testing.T) {
	srv, calls := fakeUpstream(t, 10)
	cfgPath, dir := writeConfig(t, srv.URL)

	out, err := execute(t, "generate",
		"--config", cfgPath,
		"--intent", "plan a trip",
		"--domain", "travel",
		"--doc-id", "doc-1",
		"--turns", "2")
	require.NoError(t, err)

	// user, assistant, moderator 各一次
	assert.Equal(t, int64(3), calls.Load())
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "User LLM:")

	data, err := os.ReadFile(filepath.Join(dir, "conversations", "doc-1", "C-.json"))
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "plan a trip", doc["intent"])
	assert.Equal(t, "travel", doc["domain"])
	interactions, ok := doc["interactions"].([]any)
	require.True(t, ok)
	require.Len(t, interactions, 1)
	assert.Equal(t, "hello there", interactions[0].(map[string]any)["user"])

	ledger, err := os.ReadFile(filepath.Join(dir, "token_counts.json"))
	require.NoError(t, err)
	var records []map[string]any
	require.NoError(t, json.Unmarshal(ledger, &records))
	require.Len(t, records, 1)
	assert.Equal(t, "doc-1", records[0]["doc_id"])
	for _, key := range []string{"User LLM", "Assistant LLM", "Moderator LLM"} {
		usage := records[0][key].(map[string]any)
		assert.Equal(t, float64(10), usage["token count"], key)
	}
}

func TestBatchCommand_EndToEnd(t *testing.T) {
	srv, calls := fakeUpstream(t, 4)
	cfgPath, dir := writeConfig(t, srv.URL)

	seeds := filepath.Join(dir, "seeds.yaml")
	require.NoError(t, os.WriteFile(seeds, []byte(`
- intent: plan a trip
  domain: travel
  doc_id: trip
  max_turns: 1
- intent: fix a bike
  domain: repair
  doc_id: bike
`), 0o644))

	out, err := execute(t, "batch", "--config", cfgPath, "--seeds", seeds, "--workers", "2")
	require.NoError(t, err)

	// trip: maxTurns 1 不调用 moderator；bike: 默认 6 轮，第一轮后自然终止
	assert.Equal(t, int64(2+3), calls.Load())
	assert.Equal(t, 2, strings.Count(out, "OK   "))
	assert.FileExists(t, filepath.Join(dir, "conversations", "trip", "C-.json"))
	assert.FileExists(t, filepath.Join(dir, "conversations", "bike", "C-.json"))
}

func TestBatchCommand_BadSeeds(t *testing.T) {
	srv, _ := fakeUpstream(t, 4)
	cfgPath, dir := writeConfig(t, srv.URL)
	seeds := filepath.Join(dir, "seeds.yaml")
	require.NoError(t, os.WriteFile(seeds, []byte("- intent: only intent\n"), 0o644))

	_, err := execute(t, "batch", "--config", cfgPath, "--seeds", seeds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent and domain are required")
}

func TestHealthCommand(t *testing.T) {
	srv, _ := fakeUpstream(t, 1)
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := execute(t, "health", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "OK   store")
	assert.Contains(t, out, "OK   user")
	assert.Contains(t, out, "OK   moderator")
}

func TestHealthCommand_Unhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	cfgPath, _ := writeConfig(t, srv.URL)

	out, err := execute(t, "health", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 of 4 checks failed")
	assert.Contains(t, out, "FAIL assistant")
}

func TestConfigFromEnv(t *testing.T) {
	srv, _ := fakeUpstream(t, 1)
	cfgPath, _ := writeConfig(t, srv.URL)
	t.Setenv(configEnv, cfgPath)

	_, err := execute(t, "health")
	require.NoError(t, err)
}
