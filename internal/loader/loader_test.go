package loader

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/crypto-etl/internal/model"
)

var extractedAt = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func snapshots(n int) []model.Snapshot {
	out := make([]model.Snapshot, n)
	for i := range out {
		out[i] = model.Snapshot{
			CoinID:          fmt.Sprintf("coin-%03d", i),
			Symbol:          fmt.Sprintf("C%d", i),
			Name:            fmt.Sprintf("Coin %d", i),
			CurrentPrice:    float64(i) + 0.5,
			MarketCap:       int64(1000 * (i + 1)),
			TotalVolume:     int64(10 * (i + 1)),
			PriceChange24h:  -1.5,
			MarketCapRank:   i + 1,
			VolatilityScore: 1.5 * float64(10*(i+1)),
			ExtractedAt:     extractedAt,
		}
	}
	return out
}

func TestLoad_Empty(t *testing.T) {
	pool := &fakePool{db: newFakeDB()}
	l := New(DefaultConfig(), pool, nil)

	res, err := l.Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, model.LoadResult{}, res)
	assert.Zero(t, pool.acquires, "empty input never touches the pool")
}

func TestLoad_AllSucceed(t *testing.T) {
	db := newFakeDB()
	pool := &fakePool{db: db}
	l := New(Config{BatchSize: 100}, pool, nil)

	res, err := l.Load(context.Background(), snapshots(20))
	require.NoError(t, err)
	assert.Equal(t, model.LoadResult{SuccessCount: 20, Total: 20}, res)
	assert.Equal(t, 20, db.rowCount())
	assert.Equal(t, 1, pool.acquires)
	assert.Equal(t, 1, pool.releases)
}

func TestLoad_PartialFailure(t *testing.T) {
	db := newFakeDB()
	db.reject["coin-007"] = true
	db.reject["coin-042"] = true
	db.reject["coin-099"] = true
	l := New(DefaultConfig(), &fakePool{db: db}, nil)

	res, err := l.Load(context.Background(), snapshots(100))
	require.NoError(t, err)
	assert.Equal(t, model.LoadResult{SuccessCount: 97, ErrorCount: 3, Total: 100}, res)
	assert.Equal(t, 97, db.rowCount())
	assert.Equal(t, 1, db.commitCount())
}

func TestLoad_Idempotent(t *testing.T) {
	db := newFakeDB()
	l := New(DefaultConfig(), &fakePool{db: db}, nil)
	batch := snapshots(10)

	_, err := l.Load(context.Background(), batch)
	require.NoError(t, err)

	batch[0].CurrentPrice = 999
	res, err := l.Load(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 10, res.SuccessCount)

	assert.Equal(t, 10, db.rowCount(), "second load updates rather than duplicates")
	row := db.rows[rowKey{"coin-000", extractedAt}]
	assert.Equal(t, 999.0, row[3])
}

func TestLoad_CommitsPerSubBatch(t *testing.T) {
	db := newFakeDB()
	l := New(Config{BatchSize: 10}, &fakePool{db: db}, nil)

	res, err := l.Load(context.Background(), snapshots(25))
	require.NoError(t, err)
	assert.Equal(t, 25, res.SuccessCount)
	assert.Equal(t, 3, db.commitCount())

	stats := l.Stats()
	assert.Equal(t, int64(25), stats.Loaded)
	assert.Equal(t, int64(3), stats.Commits)
	assert.Equal(t, int64(1), stats.Loads)
}

func TestLoad_CommitFailureIsFatal(t *testing.T) {
	db := newFakeDB()
	db.commitErr = errors.New("connection reset by peer")
	db.commitAt = 2
	pool := &fakePool{db: db}
	l := New(Config{BatchSize: 10}, pool, nil)

	res, err := l.Load(context.Background(), snapshots(30))
	require.Error(t, err)
	assert.Equal(t, model.KindLoad, model.KindOf(err))
	assert.ErrorIs(t, err, db.commitErr)

	// First sub-batch stays committed; the third is never attempted.
	assert.Equal(t, 10, db.rowCount())
	assert.Equal(t, 10, res.SuccessCount)
	assert.Equal(t, 10, res.ErrorCount)
	assert.Equal(t, 30, res.Total)
	assert.Equal(t, 1, pool.releases, "connection released on failure")
}

func TestLoad_PoolFailure(t *testing.T) {
	poolErr := model.NewError(model.KindPoolExhausted, "acquire", errors.New("no connection free"))
	l := New(DefaultConfig(), &fakePool{err: poolErr}, nil)

	res, err := l.Load(context.Background(), snapshots(3))
	require.Error(t, err)
	assert.Equal(t, model.KindPoolExhausted, model.KindOf(err))
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 3, res.Total)
}

func TestLoad_CancelFinishesCurrentSubBatch(t *testing.T) {
	db := newFakeDB()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while the first sub-batch is committing.
	db.onCommit = cancel
	l := New(Config{BatchSize: 5}, &fakePool{db: db}, nil)

	res, err := l.Load(ctx, snapshots(15))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.KindLoad, model.KindOf(err))

	assert.Equal(t, 5, db.rowCount())
	assert.Equal(t, 5, res.SuccessCount)
	assert.Equal(t, 1, db.commitCount())
}

func TestLoad_CancelledBeforeStart(t *testing.T) {
	db := newFakeDB()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(Config{BatchSize: 100}, &fakePool{db: db}, nil)
	res, err := l.Load(ctx, snapshots(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.SuccessCount)
	assert.Equal(t, 0, db.rowCount())
}

func TestNew_DefaultsBatchSize(t *testing.T) {
	l := New(Config{}, &fakePool{db: newFakeDB()}, nil)
	assert.Equal(t, 100, l.cfg.BatchSize)
}
