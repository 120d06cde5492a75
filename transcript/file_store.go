package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/convtree/types"
	"go.uber.org/zap"
)

// FileStore writes one JSON document per branch under
// <BaseDir>/<docID>/<label>.json, a JSON-array ledger file and a plain-text
// error log. The ledger and error log are shared by every tree and guarded by
// their own mutexes.
type FileStore struct {
	baseDir    string
	ledgerPath string
	errorPath  string
	opts       options

	ledgerMu sync.Mutex
	errorMu  sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// NewFileStore creates a file-based store, creating BaseDir if needed.
func NewFileStore(cfg Config, opts ...Option) (*FileStore, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("%w: base_dir is required", ErrInvalidInput)
	}
	if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}

	ledgerPath := cfg.LedgerFile
	if ledgerPath == "" {
		ledgerPath = filepath.Join(cfg.BaseDir, "token_counts.json")
	}
	errorPath := cfg.ErrorLog
	if errorPath == "" {
		errorPath = filepath.Join(cfg.BaseDir, "errors.txt")
	}

	o := newOptions(opts)
	o.logger = o.logger.With(zap.String("component", "file_store"))
	return &FileStore{
		baseDir:    cfg.BaseDir,
		ledgerPath: ledgerPath,
		errorPath:  errorPath,
		opts:       o,
	}, nil
}

func (s *FileStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks that the store is open and its directory exists.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s.baseDir)
	}
	return nil
}

func (s *FileStore) branchPath(docID, label string) string {
	return filepath.Join(s.baseDir, docID, label+".json")
}

// WriteBranch persists one terminal branch. An existing document with the
// same label is replaced.
func (s *FileStore) WriteBranch(ctx context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateKey(docID, label); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := NewDocument(docID, label, domain, turns, moderatorLog, s.opts.models, s.opts.now())
	data, err := encodeJSON(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal branch %s: %w", label, err)
	}

	path := s.branchPath(docID, label)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create tree directory: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return err
	}

	s.opts.logger.Debug("branch written",
		zap.String("doc_id", docID),
		zap.String("label", label),
		zap.Int("turns", len(turns)))
	return nil
}

// AppendTokenLedgerRecord appends a priced record to the ledger file. A
// missing or empty file is treated as an empty array.
func (s *FileStore) AppendTokenLedgerRecord(ctx context.Context, docID string, ledger types.TokenLedger) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if docID == "" {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.ledgerMu.Lock()
	defer s.ledgerMu.Unlock()

	records, err := s.readLedger()
	if err != nil {
		return err
	}
	rec, err := json.Marshal(NewLedgerRecord(docID, ledger, s.opts.pricing))
	if err != nil {
		return err
	}
	records = append(records, rec)

	data, err := encodeJSON(records)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}
	if dir := filepath.Dir(s.ledgerPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return writeFileAtomic(s.ledgerPath, data)
}

// readLedger keeps existing records as raw JSON so records written by other
// tools survive a rewrite.
func (s *FileStore) readLedger() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.ledgerPath)
	if errors.Is(err, os.ErrNotExist) {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("ledger %s is not a JSON array: %w", s.ledgerPath, err)
	}
	return records, nil
}

// AppendErrorRecord appends "<intent>,<domain>,<label>" to the error log.
func (s *FileStore) AppendErrorRecord(ctx context.Context, docID, subIntent, domain, label string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.errorMu.Lock()
	defer s.errorMu.Unlock()

	if dir := filepath.Dir(s.errorPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(s.errorPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open error log: %w", err)
	}
	if _, err := f.WriteString(ErrorLine(subIntent, domain, label) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("failed to append error record: %w", err)
	}
	return f.Close()
}

// LoadBranch reads a branch document back.
func (s *FileStore) LoadBranch(ctx context.Context, docID, label string) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateKey(docID, label); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.branchPath(docID, label))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal branch %s: %w", label, err)
	}
	doc.Label = label
	return &doc, nil
}

// ListBranches lists the labels written for docID.
func (s *FileStore) ListBranches(ctx context.Context, docID string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateKey(docID, "-"); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.baseDir, docID))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		labels = append(labels, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(labels)
	return labels, nil
}

// LedgerRecords reads the ledger file.
func (s *FileStore) LedgerRecords(ctx context.Context) ([]LedgerRecord, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.ledgerMu.Lock()
	raw, err := s.readLedger()
	s.ledgerMu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]LedgerRecord, 0, len(raw))
	for _, r := range raw {
		var rec LedgerRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ErrorRecords reads the error log.
func (s *FileStore) ErrorRecords(ctx context.Context) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.errorMu.Lock()
	defer s.errorMu.Unlock()

	f, err := os.Open(s.errorPath)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// writeFileAtomic writes to a temp file in the same directory and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}
