package types

// TokenLedger accumulates the tokens spent by every successful agent call in
// one conversation tree. It is owned by a single tree and must not be shared
// between trees; it is not safe for concurrent use.
type TokenLedger struct {
	User      int `json:"user"`
	Assistant int `json:"assistant"`
	Moderator int `json:"moderator"`
}

// AddUser records tokens spent by the user agent. Negative values are ignored
// so the ledger never decreases.
func (l *TokenLedger) AddUser(n int) {
	if n > 0 {
		l.User += n
	}
}

// AddAssistant records tokens spent by the assistant agent.
func (l *TokenLedger) AddAssistant(n int) {
	if n > 0 {
		l.Assistant += n
	}
}

// AddModerator records tokens spent by the moderator agent.
func (l *TokenLedger) AddModerator(n int) {
	if n > 0 {
		l.Moderator += n
	}
}

// Get returns the count for a role; unknown roles report zero.
func (l TokenLedger) Get(role Role) int {
	switch role {
	case RoleUser:
		return l.User
	case RoleAssistant:
		return l.Assistant
	case RoleModerator:
		return l.Moderator
	default:
		return 0
	}
}

// Total returns the sum across all roles.
func (l TokenLedger) Total() int {
	return l.User + l.Assistant + l.Moderator
}
