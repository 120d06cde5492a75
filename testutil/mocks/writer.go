package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/convtree/types"
)

// Branch is one recorded WriteBranch call.
type Branch struct {
	DocID        string
	Label        string
	Domain       string
	Turns        []types.ConversationTurn
	ModeratorLog []types.ModeratorEntry
}

// ErrorRecord is one recorded AppendErrorRecord call.
type ErrorRecord struct {
	DocID     string
	SubIntent string
	Domain    string
	Label     string
}

// LedgerRecord is one recorded AppendTokenLedgerRecord call.
type LedgerRecord struct {
	DocID  string
	Ledger types.TokenLedger
}

// RecordingWriter captures everything written to it. Set the *Err fields to
// inject persistence failures.
type RecordingWriter struct {
	mu sync.Mutex

	WriteErr  error
	LedgerErr error
	ErrorErr  error

	branches []Branch
	ledgers  []LedgerRecord
	errors   []ErrorRecord
}

// NewRecordingWriter returns an empty writer.
func NewRecordingWriter() *RecordingWriter {
	return &RecordingWriter{}
}

func (w *RecordingWriter) WriteBranch(_ context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.WriteErr != nil {
		return w.WriteErr
	}
	w.branches = append(w.branches, Branch{
		DocID:        docID,
		Label:        label,
		Domain:       domain,
		Turns:        types.CloneTurns(turns),
		ModeratorLog: types.CloneModeratorLog(moderatorLog),
	})
	return nil
}

func (w *RecordingWriter) AppendTokenLedgerRecord(_ context.Context, docID string, ledger types.TokenLedger) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.LedgerErr != nil {
		return w.LedgerErr
	}
	w.ledgers = append(w.ledgers, LedgerRecord{DocID: docID, Ledger: ledger})
	return nil
}

func (w *RecordingWriter) AppendErrorRecord(_ context.Context, docID, subIntent, domain, label string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ErrorErr != nil {
		return w.ErrorErr
	}
	w.errors = append(w.errors, ErrorRecord{DocID: docID, SubIntent: subIntent, Domain: domain, Label: label})
	return nil
}

// Branches returns the recorded branches in write order.
func (w *RecordingWriter) Branches() []Branch {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Branch(nil), w.branches...)
}

// Ledgers returns the recorded ledger records.
func (w *RecordingWriter) Ledgers() []LedgerRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]LedgerRecord(nil), w.ledgers...)
}

// Errors returns the recorded error records.
func (w *RecordingWriter) Errors() []ErrorRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ErrorRecord(nil), w.errors...)
}

// Labels returns the labels of every recorded branch.
func (w *RecordingWriter) Labels() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.branches))
	for i, b := range w.branches {
		out[i] = b.Label
	}
	return out
}
