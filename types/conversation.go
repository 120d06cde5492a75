package types

import "fmt"

// Role identifies one of the role-playing agents that take part in a tree.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleModerator Role = "moderator"
	RoleInitiator Role = "initiator"
)

// Roles returns the three roles whose token usage is tracked per tree.
func Roles() []Role {
	return []Role{RoleUser, RoleAssistant, RoleModerator}
}

// ConversationTurn is one user/assistant exchange pursued under a sub-intent.
// Turns are values; once appended to a branch they are never modified.
type ConversationTurn struct {
	Intent            string `json:"intent" bson:"intent"`
	UserPrompt        string `json:"user" bson:"user"`
	AssistantResponse string `json:"assistant" bson:"assistant"`
}

// ModeratorEntry records the sub-intents chosen when a branch forked after
// the turn at TurnIndex.
type ModeratorEntry struct {
	TurnIndex           int      `json:"turn_index"`
	SuggestedSubIntents []string `json:"suggested_sub_intents"`
}

// Key returns the transcript key for this entry, e.g. "Turn0".
func (e ModeratorEntry) Key() string {
	return fmt.Sprintf("Turn%d", e.TurnIndex)
}

// CloneTurns returns an independent copy of turns. A nil input yields an
// empty, non-nil slice so callers can append freely.
func CloneTurns(turns []ConversationTurn) []ConversationTurn {
	out := make([]ConversationTurn, len(turns))
	copy(out, turns)
	return out
}

// CloneModeratorLog deep-copies a moderator log, including each entry's
// sub-intent slice.
func CloneModeratorLog(log []ModeratorEntry) []ModeratorEntry {
	out := make([]ModeratorEntry, len(log))
	for i, e := range log {
		ideas := make([]string, len(e.SuggestedSubIntents))
		copy(ideas, e.SuggestedSubIntents)
		out[i] = ModeratorEntry{TurnIndex: e.TurnIndex, SuggestedSubIntents: ideas}
	}
	return out
}
