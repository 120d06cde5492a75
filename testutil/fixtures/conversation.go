// Package fixtures 提供测试用的样例数据。
package fixtures

import (
	"fmt"

	"github.com/BaSui01/convtree/types"
)

// SampleTurns 返回 n 个确定性的对话轮次
func SampleTurns(n int) []types.ConversationTurn {
	out := make([]types.ConversationTurn, n)
	for i := range out {
		out[i] = types.ConversationTurn{
			Intent:            fmt.Sprintf("intent-%d", i),
			UserPrompt:        fmt.Sprintf("user prompt %d", i),
			AssistantResponse: fmt.Sprintf("assistant response %d", i),
		}
	}
	return out
}

// SampleModeratorLog 返回一个两级分叉的调度日志
func SampleModeratorLog() []types.ModeratorEntry {
	return []types.ModeratorEntry{
		{TurnIndex: 0, SuggestedSubIntents: []string{"compare plans", "ask about fees"}},
		{TurnIndex: 1, SuggestedSubIntents: []string{"request a summary"}},
	}
}

// SampleLedger 返回一个非零的 token 账本
func SampleLedger() types.TokenLedger {
	return types.TokenLedger{User: 1200, Assistant: 3400, Moderator: 560}
}

// UserJSON 返回 user agent 的结构化回复
func UserJSON(prompt string) string {
	return fmt.Sprintf(`{"prompt": %q}`, prompt)
}

// IntentsJSON 返回 moderator 的结构化回复
func IntentsJSON(intents ...string) string {
	s := `{"intents": [`
	for i, it := range intents {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%q", it)
	}
	return s + "]}"
}
