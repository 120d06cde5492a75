package transcript

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/convtree/testutil/fixtures"
	"github.com/BaSui01/convtree/types"
)

func TestNewMongoStore_RequiresURIAndDatabase(t *testing.T) {
	tests := []struct {
		name string
		cfg  MongoConfig
	}{
		{"empty", MongoConfig{}},
		{"no database", MongoConfig{URI: "mongodb://localhost:27017"}},
		{"no uri", MongoConfig{Database: "convtree"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMongoStore(tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNew_MongoBackendValidatesConfig(t *testing.T) {
	_, err := New(Config{Backend: BackendMongo})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewMongoStore_Unreachable(t *testing.T) {
	_, err := NewMongoStore(MongoConfig{
		URI:      "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=200&connectTimeoutMS=200",
		Database: "convtree",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MongoDB")
}

func TestMongoStore_ClosedRejectsWrites(t *testing.T) {
	s := &MongoStore{opts: newOptions(nil)}
	s.closed.Store(true)
	ctx := context.Background()

	assert.ErrorIs(t, s.WriteBranch(ctx, "doc", "C-", "d", fixtures.SampleTurns(1), nil), ErrStoreClosed)
	assert.ErrorIs(t, s.AppendTokenLedgerRecord(ctx, "doc", types.TokenLedger{User: 1}), ErrStoreClosed)
	assert.ErrorIs(t, s.AppendErrorRecord(ctx, "doc", "i", "d", "C-"), ErrStoreClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrStoreClosed)
	// 已关闭时 Close 不再访问 client
	assert.NoError(t, s.Close())
}
