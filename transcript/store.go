package transcript

import (
	"context"
	"errors"
	"strings"

	"github.com/BaSui01/convtree/internal/database"
	"github.com/BaSui01/convtree/types"
)

// Common errors
var (
	ErrNotFound       = errors.New("not found")
	ErrStoreClosed    = errors.New("store is closed")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Backend names a storage implementation.
type Backend string

const (
	BackendFile  Backend = "file"
	BackendRedis Backend = "redis"
	BackendSQL   Backend = "sql"
	BackendMongo Backend = "mongo"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is file, redis, sql or mongo. Default file.
	Backend Backend `json:"backend" yaml:"backend"`

	// BaseDir holds one directory of branch documents per tree (file backend).
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// LedgerFile is the JSON array of token ledger records (file backend).
	LedgerFile string `json:"ledger_file" yaml:"ledger_file"`

	// ErrorLog is the line-oriented record of forced terminations (file backend).
	ErrorLog string `json:"error_log" yaml:"error_log"`

	Redis RedisConfig     `json:"redis" yaml:"redis"`
	SQL   database.Config `json:"sql" yaml:"sql"`
	Mongo MongoConfig     `json:"mongo" yaml:"mongo"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	TLS       bool   `json:"tls" yaml:"tls"`
}

// MongoConfig contains MongoDB-specific configuration.
type MongoConfig struct {
	URI      string `json:"uri" yaml:"uri"`
	Database string `json:"database" yaml:"database"`
}

// DefaultConfig returns a file store writing under ./conversations.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendFile,
		BaseDir:    "./conversations",
		LedgerFile: "./token_counts.json",
		ErrorLog:   "./errors.txt",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "convtree:",
		},
		SQL: database.Config{
			Driver: database.DriverSQLite,
			DSN:    "convtree.db",
			Pool:   database.DefaultPoolConfig(),
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "convtree",
		},
	}
}

// Writer persists finished branches plus the per-tree ledger and error
// records. It matches the writer the tree generator expects.
type Writer interface {
	WriteBranch(ctx context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error
	AppendTokenLedgerRecord(ctx context.Context, docID string, ledger types.TokenLedger) error
	AppendErrorRecord(ctx context.Context, docID, subIntent, domain, label string) error
}

// Reader reads back what a Writer stored.
type Reader interface {
	// LoadBranch returns the document of one branch, or ErrNotFound.
	LoadBranch(ctx context.Context, docID, label string) (*Document, error)
	// ListBranches returns the labels stored for a tree, sorted.
	ListBranches(ctx context.Context, docID string) ([]string, error)
	// LedgerRecords returns every ledger record in append order.
	LedgerRecords(ctx context.Context) ([]LedgerRecord, error)
	// ErrorRecords returns every error line in append order.
	ErrorRecords(ctx context.Context) ([]string, error)
}

// Store is a complete backend.
type Store interface {
	Writer
	Reader

	// Close releases resources. Later calls fail with ErrStoreClosed.
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

func validateKey(docID, label string) error {
	if docID == "" || label == "" {
		return ErrInvalidInput
	}
	for _, s := range []string{docID, label} {
		if s == "." || s == ".." || strings.ContainsAny(s, "/\\\x00") {
			return ErrInvalidInput
		}
	}
	return nil
}
