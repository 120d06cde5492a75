package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/BaSui01/convtree/internal/tlsutil"
	"github.com/BaSui01/convtree/types"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps branch documents as JSON strings and the ledger and error
// log as Redis lists, so several generator processes can share one sink.
//
// Keys, relative to the prefix:
//
//	doc:<docID>:<label>   branch document
//	branches:<docID>      set of labels
//	ledger                list of ledger records
//	errors                list of error lines
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	opts      options
	closed    atomic.Bool
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg RedisConfig, opts ...Option) (*RedisStore, error) {
	redisOpts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		redisOpts.TLSConfig = tlsutil.ClientConfig()
	}
	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, opts...), nil
}

// NewRedisStoreWithClient wraps an existing client. The store owns the
// client and closes it on Close.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string, opts ...Option) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "convtree:"
	}
	o := newOptions(opts)
	o.logger = o.logger.With(zap.String("component", "redis_store"))
	return &RedisStore{client: client, keyPrefix: keyPrefix, opts: o}
}

// Close closes the store
func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) docKey(docID, label string) string {
	return s.keyPrefix + "doc:" + docID + ":" + label
}

func (s *RedisStore) branchesKey(docID string) string {
	return s.keyPrefix + "branches:" + docID
}

func (s *RedisStore) ledgerKey() string { return s.keyPrefix + "ledger" }
func (s *RedisStore) errorsKey() string { return s.keyPrefix + "errors" }

// WriteBranch stores the document and indexes its label in one transaction.
func (s *RedisStore) WriteBranch(ctx context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error {
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

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.docKey(docID, label), data, 0)
		pipe.SAdd(ctx, s.branchesKey(docID), label)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store branch %s: %w", label, err)
	}
	s.opts.logger.Debug("branch written", zap.String("doc_id", docID), zap.String("label", label))
	return nil
}

// AppendTokenLedgerRecord pushes a priced record onto the ledger list.
func (s *RedisStore) AppendTokenLedgerRecord(ctx context.Context, docID string, ledger types.TokenLedger) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if docID == "" {
		return ErrInvalidInput
	}
	data, err := json.Marshal(NewLedgerRecord(docID, ledger, s.opts.pricing))
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, s.ledgerKey(), data).Err()
}

// AppendErrorRecord pushes an error line.
func (s *RedisStore) AppendErrorRecord(ctx context.Context, docID, subIntent, domain, label string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.client.RPush(ctx, s.errorsKey(), ErrorLine(subIntent, domain, label)).Err()
}

// LoadBranch reads a branch document back.
func (s *RedisStore) LoadBranch(ctx context.Context, docID, label string) (*Document, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	if err := validateKey(docID, label); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.docKey(docID, label)).Bytes()
	if errors.Is(err, redis.Nil) {
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

// ListBranches returns the sorted labels of a tree.
func (s *RedisStore) ListBranches(ctx context.Context, docID string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	labels, err := s.client.SMembers(ctx, s.branchesKey(docID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(labels)
	return labels, nil
}

// LedgerRecords returns the ledger list.
func (s *RedisStore) LedgerRecords(ctx context.Context) ([]LedgerRecord, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	raw, err := s.client.LRange(ctx, s.ledgerKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]LedgerRecord, 0, len(raw))
	for _, r := range raw {
		var rec LedgerRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// ErrorRecords returns the error list.
func (s *RedisStore) ErrorRecords(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	return s.client.LRange(ctx, s.errorsKey(), 0, -1).Result()
}
