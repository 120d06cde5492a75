package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BaSui01/convtree/internal/database"
	"github.com/BaSui01/convtree/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const sqlTxRetries = 3

type branchRow struct {
	ID        uint   `gorm:"primaryKey"`
	DocID     string `gorm:"size:191;not null;uniqueIndex:idx_convtree_branch"`
	Label     string `gorm:"size:191;not null;uniqueIndex:idx_convtree_branch"`
	Intent    string `gorm:"size:512"`
	Domain    string `gorm:"size:191"`
	Turns     int
	Document  string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (branchRow) TableName() string { return "convtree_branches" }

type ledgerRow struct {
	ID              uint   `gorm:"primaryKey"`
	DocID           string `gorm:"size:191;index"`
	UserTokens      int
	UserCost        string `gorm:"size:64"`
	AssistantTokens int
	AssistantCost   string `gorm:"size:64"`
	ModeratorTokens int
	ModeratorCost   string `gorm:"size:64"`
	CreatedAt       time.Time
}

func (ledgerRow) TableName() string { return "convtree_token_ledger" }

func (r ledgerRow) record() LedgerRecord {
	return LedgerRecord{
		DocID:     r.DocID,
		User:      Usage{TokenCount: r.UserTokens, TokenCost: r.UserCost},
		Assistant: Usage{TokenCount: r.AssistantTokens, TokenCost: r.AssistantCost},
		Moderator: Usage{TokenCount: r.ModeratorTokens, TokenCost: r.ModeratorCost},
	}
}

type errorRow struct {
	ID        uint   `gorm:"primaryKey"`
	DocID     string `gorm:"size:191;index"`
	Intent    string `gorm:"size:512"`
	Domain    string `gorm:"size:191"`
	Label     string `gorm:"size:191"`
	CreatedAt time.Time
}

func (errorRow) TableName() string { return "convtree_errors" }

// SQLStore persists transcripts through GORM to SQLite, PostgreSQL or MySQL.
// A branch written twice under the same (doc_id, label) is replaced.
type SQLStore struct {
	pm     *database.PoolManager
	opts   options
	closed atomic.Bool
}

// OpenSQLStore opens the database described by cfg and migrates the schema.
func OpenSQLStore(cfg database.Config, opts ...Option) (*SQLStore, error) {
	o := newOptions(opts)
	pm, err := database.Open(cfg, o.logger)
	if err != nil {
		return nil, err
	}
	store, err := NewSQLStore(pm, opts...)
	if err != nil {
		pm.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open pool and migrates the schema. The store owns the
// pool and closes it on Close.
func NewSQLStore(pm *database.PoolManager, opts ...Option) (*SQLStore, error) {
	if pm == nil {
		return nil, fmt.Errorf("%w: nil database pool", ErrInvalidInput)
	}
	if err := pm.DB().AutoMigrate(&branchRow{}, &ledgerRow{}, &errorRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate transcript tables: %w", err)
	}
	o := newOptions(opts)
	o.logger = o.logger.With(zap.String("component", "sql_store"))
	return &SQLStore{pm: pm, opts: o}, nil
}

// Close closes the store
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.pm.Close()
}

// Ping checks if the store is healthy
func (s *SQLStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.pm.Ping(ctx)
}

// WriteBranch upserts the branch document.
func (s *SQLStore) WriteBranch(ctx context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := validateKey(docID, label); err != nil {
		return err
	}

	doc := NewDocument(docID, label, domain, turns, moderatorLog, s.opts.models, s.opts.now())
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal branch %s: %w", label, err)
	}
	row := branchRow{
		DocID:    docID,
		Label:    label,
		Intent:   doc.Intent,
		Domain:   domain,
		Turns:    len(turns),
		Document: string(data),
	}

	err = s.pm.WithTransactionRetry(ctx, sqlTxRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "doc_id"}, {Name: "label"}},
			DoUpdates: clause.AssignmentColumns([]string{"intent", "domain", "turns", "document", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to store branch %s: %w", label, err)
	}
	s.opts.logger.Debug("branch written", zap.String("doc_id", docID), zap.String("label", label))
	return nil
}

// AppendTokenLedgerRecord inserts a priced ledger row.
func (s *SQLStore) AppendTokenLedgerRecord(ctx context.Context, docID string, ledger types.TokenLedger) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if docID == "" {
		return ErrInvalidInput
	}
	rec := NewLedgerRecord(docID, ledger, s.opts.pricing)
	row := ledgerRow{
		DocID:           docID,
		UserTokens:      rec.User.TokenCount,
		UserCost:        rec.User.TokenCost,
		AssistantTokens: rec.Assistant.TokenCount,
		AssistantCost:   rec.Assistant.TokenCost,
		ModeratorTokens: rec.Moderator.TokenCount,
		ModeratorCost:   rec.Moderator.TokenCost,
	}
	return s.pm.WithTransactionRetry(ctx, sqlTxRetries, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

// AppendErrorRecord inserts an error row.
func (s *SQLStore) AppendErrorRecord(ctx context.Context, docID, subIntent, domain, label string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	row := errorRow{DocID: docID, Intent: subIntent, Domain: domain, Label: label}
	return s.pm.WithTransactionRetry(ctx, sqlTxRetries, func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

// LoadBranch reads a branch document back.
func (s *SQLStore) LoadBranch(ctx context.Context, docID, label string) (*Document, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var row branchRow
	err := s.pm.DB().WithContext(ctx).
		Where("doc_id = ? AND label = ?", docID, label).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal([]byte(row.Document), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal branch %s: %w", label, err)
	}
	doc.Label = row.Label
	return &doc, nil
}

// ListBranches returns the sorted labels of a tree.
func (s *SQLStore) ListBranches(ctx context.Context, docID string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	labels := []string{}
	err := s.pm.DB().WithContext(ctx).
		Model(&branchRow{}).
		Where("doc_id = ?", docID).
		Order("label").
		Pluck("label", &labels).Error
	return labels, err
}

// LedgerRecords returns every ledger row in insertion order.
func (s *SQLStore) LedgerRecords(ctx context.Context) ([]LedgerRecord, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var rows []ledgerRow
	if err := s.pm.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]LedgerRecord, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// ErrorRecords returns every error row, formatted as error lines.
func (s *SQLStore) ErrorRecords(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var rows []errorRow
	if err := s.pm.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = ErrorLine(r.Intent, r.Domain, r.Label)
	}
	return out, nil
}
