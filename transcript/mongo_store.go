package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BaSui01/convtree/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

const (
	mongoBranches = "branches"
	mongoLedger   = "token_ledger"
	mongoErrors   = "errors"
)

type mongoBranch struct {
	DocID     string    `bson:"doc_id"`
	Label     string    `bson:"label"`
	Document  Document  `bson:"document"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type mongoLedgerEntry struct {
	Record    LedgerRecord `bson:"record"`
	CreatedAt time.Time    `bson:"created_at"`
}

type mongoErrorEntry struct {
	DocID     string    `bson:"doc_id"`
	Intent    string    `bson:"intent"`
	Domain    string    `bson:"domain"`
	Label     string    `bson:"label"`
	CreatedAt time.Time `bson:"created_at"`
}

// MongoStore keeps branch documents, ledger records and error records in
// three collections of one database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	opts   options
	closed atomic.Bool
}

// NewMongoStore connects, pings and ensures the (doc_id, label) index.
func NewMongoStore(cfg MongoConfig, opts ...Option) (*MongoStore, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("%w: mongo uri and database are required", ErrInvalidInput)
	}
	client, err := mongo.Connect(mongooptions.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	o := newOptions(opts)
	o.logger = o.logger.With(zap.String("component", "mongo_store"))
	s := &MongoStore{client: client, db: client.Database(cfg.Database), opts: o}

	_, err = s.db.Collection(mongoBranches).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "doc_id", Value: 1}, {Key: "label", Value: 1}},
		Options: mongooptions.Index().SetUnique(true),
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to create branch index: %w", err)
	}
	return s, nil
}

// Close closes the store
func (s *MongoStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks if the store is healthy
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.client.Ping(ctx, nil)
}

func branchFilter(docID, label string) bson.D {
	return bson.D{{Key: "doc_id", Value: docID}, {Key: "label", Value: label}}
}

// WriteBranch upserts the branch document.
func (s *MongoStore) WriteBranch(ctx context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if err := validateKey(docID, label); err != nil {
		return err
	}
	now := s.opts.now()
	entry := mongoBranch{
		DocID:     docID,
		Label:     label,
		Document:  NewDocument(docID, label, domain, turns, moderatorLog, s.opts.models, now),
		UpdatedAt: now,
	}
	_, err := s.db.Collection(mongoBranches).ReplaceOne(ctx, branchFilter(docID, label), entry,
		mongooptions.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to store branch %s: %w", label, err)
	}
	s.opts.logger.Debug("branch written", zap.String("doc_id", docID), zap.String("label", label))
	return nil
}

// AppendTokenLedgerRecord inserts a priced record.
func (s *MongoStore) AppendTokenLedgerRecord(ctx context.Context, docID string, ledger types.TokenLedger) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if docID == "" {
		return ErrInvalidInput
	}
	_, err := s.db.Collection(mongoLedger).InsertOne(ctx, mongoLedgerEntry{
		Record:    NewLedgerRecord(docID, ledger, s.opts.pricing),
		CreatedAt: s.opts.now(),
	})
	return err
}

// AppendErrorRecord inserts an error record.
func (s *MongoStore) AppendErrorRecord(ctx context.Context, docID, subIntent, domain, label string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	_, err := s.db.Collection(mongoErrors).InsertOne(ctx, mongoErrorEntry{
		DocID:     docID,
		Intent:    subIntent,
		Domain:    domain,
		Label:     label,
		CreatedAt: s.opts.now(),
	})
	return err
}

// LoadBranch reads a branch document back.
func (s *MongoStore) LoadBranch(ctx context.Context, docID, label string) (*Document, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var entry mongoBranch
	err := s.db.Collection(mongoBranches).FindOne(ctx, branchFilter(docID, label)).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	doc := entry.Document
	doc.Label = entry.Label
	return &doc, nil
}

// ListBranches returns the sorted labels of a tree.
func (s *MongoStore) ListBranches(ctx context.Context, docID string) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	cur, err := s.db.Collection(mongoBranches).Find(ctx,
		bson.D{{Key: "doc_id", Value: docID}},
		mongooptions.Find().
			SetProjection(bson.D{{Key: "label", Value: 1}}).
			SetSort(bson.D{{Key: "label", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Label string `bson:"label"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
	}
	return labels, nil
}

// LedgerRecords returns every ledger record in insertion order.
func (s *MongoStore) LedgerRecords(ctx context.Context) ([]LedgerRecord, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	cur, err := s.db.Collection(mongoLedger).Find(ctx, bson.D{},
		mongooptions.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []mongoLedgerEntry
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]LedgerRecord, len(rows))
	for i, r := range rows {
		out[i] = r.Record
	}
	return out, nil
}

// ErrorRecords returns every error record, formatted as error lines.
func (s *MongoStore) ErrorRecords(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	cur, err := s.db.Collection(mongoErrors).Find(ctx, bson.D{},
		mongooptions.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var rows []mongoErrorEntry
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = ErrorLine(r.Intent, r.Domain, r.Label)
	}
	return out, nil
}
