package transcript

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/convtree/types"
)

// TimestampLayout formats Document.Timestamp (day-month-year, local time).
const TimestampLayout = "02-01-2006 15:04:05"

// Document is the persisted form of one terminal branch. Field order is the
// key order of the JSON encoding.
type Document struct {
	ID           string                   `json:"id" bson:"id"`
	Intent       string                   `json:"intent" bson:"intent"`
	Domain       string                   `json:"domain" bson:"domain"`
	ModelList    map[string]string        `json:"model list" bson:"model_list"`
	Timestamp    string                   `json:"timestamp" bson:"timestamp"`
	Interactions []types.ConversationTurn `json:"interactions" bson:"interactions"`
	Moderator    []map[string][]string    `json:"moderator" bson:"moderator"`

	// Label is the branch label; it names the document rather than being
	// part of it.
	Label string `json:"-" bson:"-"`
}

// NewDocument builds the document for a branch. Intent is the intent of the
// first turn, empty when the branch has no turns.
func NewDocument(docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry, models map[string]string, at time.Time) Document {
	doc := Document{
		ID:           docID,
		Domain:       domain,
		ModelList:    map[string]string{},
		Timestamp:    at.Local().Format(TimestampLayout),
		Interactions: types.CloneTurns(turns),
		Moderator:    make([]map[string][]string, 0, len(moderatorLog)),
		Label:        label,
	}
	if len(turns) > 0 {
		doc.Intent = turns[0].Intent
	}
	for role, model := range models {
		doc.ModelList[role] = model
	}
	for _, entry := range moderatorLog {
		ideas := make([]string, len(entry.SuggestedSubIntents))
		copy(ideas, entry.SuggestedSubIntents)
		doc.Moderator = append(doc.Moderator, map[string][]string{entry.Key(): ideas})
	}
	return doc
}

// Pricing is the USD price per million tokens for each role.
type Pricing struct {
	User      float64 `json:"user" yaml:"user"`
	Assistant float64 `json:"assistant" yaml:"assistant"`
	Moderator float64 `json:"moderator" yaml:"moderator"`
}

// DefaultPricing charges 0.50 USD per million tokens for every role.
func DefaultPricing() Pricing {
	return Pricing{User: 0.50, Assistant: 0.50, Moderator: 0.50}
}

// Rate returns the price for a role.
func (p Pricing) Rate(role types.Role) float64 {
	switch role {
	case types.RoleUser:
		return p.User
	case types.RoleAssistant:
		return p.Assistant
	case types.RoleModerator:
		return p.Moderator
	}
	return 0
}

// Usage is the token count and cost of one role in a ledger record.
type Usage struct {
	TokenCount int    `json:"token count" bson:"token_count"`
	TokenCost  string `json:"token cost" bson:"token_cost"`
}

// LedgerRecord is one entry of the token ledger.
type LedgerRecord struct {
	DocID     string `json:"doc_id" bson:"doc_id"`
	User      Usage  `json:"User LLM" bson:"user"`
	Assistant Usage  `json:"Assistant LLM" bson:"assistant"`
	Moderator Usage  `json:"Moderator LLM" bson:"moderator"`
}

// NewLedgerRecord prices a tree's ledger.
func NewLedgerRecord(docID string, ledger types.TokenLedger, pricing Pricing) LedgerRecord {
	usage := func(role types.Role) Usage {
		n := ledger.Get(role)
		return Usage{TokenCount: n, TokenCost: FormatCost(n, pricing.Rate(role))}
	}
	return LedgerRecord{
		DocID:     docID,
		User:      usage(types.RoleUser),
		Assistant: usage(types.RoleAssistant),
		Moderator: usage(types.RoleModerator),
	}
}

// Ledger converts the record back to token counts.
func (r LedgerRecord) Ledger() types.TokenLedger {
	return types.TokenLedger{
		User:      r.User.TokenCount,
		Assistant: r.Assistant.TokenCount,
		Moderator: r.Moderator.TokenCount,
	}
}

// Cost returns tokens / 1e6 * rate in USD.
func Cost(tokens int, rate float64) float64 {
	return float64(tokens) / 1_000_000 * rate
}

// FormatCost renders Cost as "$ <amount>", always with a decimal point.
func FormatCost(tokens int, rate float64) string {
	s := strconv.FormatFloat(Cost(tokens, rate), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return "$ " + s
}

// ErrorLine is the error log entry for a forced termination.
func ErrorLine(intent, domain, label string) string {
	return fmt.Sprintf("%s,%s,%s", intent, domain, label)
}
