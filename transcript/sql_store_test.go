package transcript

import (
	"context"
	"testing"

	"github.com/BaSui01/convtree/internal/database"
	"github.com/BaSui01/convtree/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	store, err := OpenSQLStore(database.Config{
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
		Pool:   database.PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1},
	}, testOptions()...)
	require.NoError(t, err)
	return store
}

func TestSQLStore(t *testing.T) {
	exerciseStore(t, newTestSQLStore(t))
}

func TestSQLStore_UpsertKeepsOneRow(t *testing.T) {
	store := newTestSQLStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.WriteBranch(ctx, "doc", "C-", "d", fixtures.SampleTurns(i), nil))
	}

	var count int64
	require.NoError(t, store.pm.DB().Model(&branchRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var row branchRow
	require.NoError(t, store.pm.DB().First(&row).Error)
	assert.Equal(t, 3, row.Turns)
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(database.Config{Driver: "oracle"})
	assert.ErrorIs(t, err, database.ErrUnsupportedDriver)
}

func TestNewSQLStore_NilPool(t *testing.T) {
	_, err := NewSQLStore(nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
