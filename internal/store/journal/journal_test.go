package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_AppendAndListFills(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, j.AppendFill(ctx, FillRecord{
			Symbol:  "BTCUSDT",
			OrderID: "42",
			Side:    "buy",
			Price:   100 + float64(i),
			Qty:     0.01,
			Fee:     0.001,
			At:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, j.AppendFill(ctx, FillRecord{
		Symbol: "ETHUSDT", OrderID: "7", Side: "sell", Price: 3000, Qty: 0.1, At: base,
	}))

	t.Run("filtered by symbol, newest first", func(t *testing.T) {
		fills, err := j.ListFills(ctx, "BTCUSDT", 10)
		require.NoError(t, err)
		require.Len(t, fills, 3)
		assert.Equal(t, 102.0, fills[0].Price)
		assert.Equal(t, 100.0, fills[2].Price)
		assert.NotEmpty(t, fills[0].ID)
		assert.Equal(t, base.Add(2*time.Minute).UnixMilli(), fills[0].At.UnixMilli())
	})

	t.Run("unfiltered returns all", func(t *testing.T) {
		fills, err := j.ListFills(ctx, "", 10)
		require.NoError(t, err)
		assert.Len(t, fills, 4)
	})

	t.Run("limit respected", func(t *testing.T) {
		fills, err := j.ListFills(ctx, "BTCUSDT", 2)
		require.NoError(t, err)
		assert.Len(t, fills, 2)
	})
}

func TestJournal_AppendOperation(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.AppendOperation(ctx, OperationRecord{
		Symbol: "BTCUSDT", Kind: "cancel_all", Detail: "breaker_trip",
	}))
	// IDs and timestamps are filled in when omitted; a second append with the
	// same content must not conflict.
	require.NoError(t, j.AppendOperation(ctx, OperationRecord{
		Symbol: "BTCUSDT", Kind: "cancel_all", Detail: "breaker_trip",
	}))
}

func TestJournal_RejectsEmptyPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}
