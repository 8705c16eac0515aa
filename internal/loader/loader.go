package loader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/crypto-etl/internal/database"
	"github.com/rickgao/crypto-etl/internal/model"
)

const upsertSQL = `
	INSERT INTO crypto_market (
		coin_id, symbol, name, current_price, market_cap, total_volume,
		price_change_24h, market_cap_rank, volatility_score, extracted_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (coin_id, extracted_at) DO UPDATE SET
		current_price    = EXCLUDED.current_price,
		market_cap       = EXCLUDED.market_cap,
		total_volume     = EXCLUDED.total_volume,
		price_change_24h = EXCLUDED.price_change_24h,
		market_cap_rank  = EXCLUDED.market_cap_rank,
		volatility_score = EXCLUDED.volatility_score
`

// Config holds loader settings.
type Config struct {
	// BatchSize is the number of records committed per transaction.
	BatchSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{BatchSize: 100}
}

// Pool hands out database connections for the duration of fn.
type Pool interface {
	WithConn(ctx context.Context, fn func(database.Conn) error) error
}

// Metrics are cumulative counters across all Load calls.
type Metrics struct {
	Loaded  int64
	Errors  int64
	Commits int64
	Loads   int64
}

// Loader writes snapshots through a Pool.
type Loader struct {
	cfg    Config
	pool   Pool
	logger *slog.Logger

	mu      sync.Mutex
	metrics Metrics
}

// New creates a Loader. A non-positive BatchSize falls back to the default.
func New(cfg Config, pool Pool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Loader{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
	}
}

// Stats returns current metrics.
func (l *Loader) Stats() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.metrics
}

// Load upserts snapshots and reports per-record outcomes. Rejected records
// are counted, not returned as errors. An error is returned only when the
// connection or transaction fails, or ctx is cancelled between sub-batches;
// sub-batches committed before that stay committed.
//
// A sub-batch that has started always runs to its commit, even if ctx is
// cancelled meanwhile.
func (l *Loader) Load(ctx context.Context, snapshots []model.Snapshot) (model.LoadResult, error) {
	result := model.LoadResult{Total: len(snapshots)}
	if len(snapshots) == 0 {
		return result, nil
	}

	start := time.Now()
	commits := 0

	err := l.pool.WithConn(ctx, func(conn database.Conn) error {
		for lo := 0; lo < len(snapshots); lo += l.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return model.NewError(model.KindLoad, "load",
					fmt.Errorf("stopped after %d of %d records: %w", lo, len(snapshots), err))
			}

			hi := min(lo+l.cfg.BatchSize, len(snapshots))
			ok, failed, err := l.loadBatch(context.WithoutCancel(ctx), conn, snapshots[lo:hi])
			result.SuccessCount += ok
			result.ErrorCount += failed
			if err != nil {
				return err
			}
			commits++
		}
		return nil
	})

	l.mu.Lock()
	l.metrics.Loaded += int64(result.SuccessCount)
	l.metrics.Errors += int64(result.ErrorCount)
	l.metrics.Commits += int64(commits)
	l.metrics.Loads++
	l.mu.Unlock()

	if err != nil {
		l.logger.Error("load aborted",
			"error", err,
			"loaded", result.SuccessCount,
			"failed", result.ErrorCount,
			"total", result.Total,
		)
		return result, err
	}

	l.logger.Info("load complete",
		"loaded", result.SuccessCount,
		"failed", result.ErrorCount,
		"total", result.Total,
		"commits", commits,
		"duration", time.Since(start),
	)
	return result, nil
}

// loadBatch writes one sub-batch in a single transaction. On a fatal error
// nothing from the sub-batch is durable and every record counts as failed.
func (l *Loader) loadBatch(ctx context.Context, conn database.Conn, batch []model.Snapshot) (ok, failed int, err error) {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, len(batch), model.NewError(model.KindLoad, "load", fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback(ctx) // no-op after commit

	for _, s := range batch {
		sp, err := tx.Begin(ctx)
		if err != nil {
			return 0, len(batch), model.NewError(model.KindLoad, "load", fmt.Errorf("create savepoint: %w", err))
		}

		if _, err := sp.Exec(ctx, upsertSQL,
			s.CoinID, s.Symbol, s.Name, s.CurrentPrice, s.MarketCap, s.TotalVolume,
			s.PriceChange24h, s.MarketCapRank, s.VolatilityScore, s.ExtractedAt,
		); err != nil {
			l.logger.Warn("record rejected",
				"coin_id", s.CoinID,
				"extracted_at", s.ExtractedAt,
				"error", err,
			)
			if rbErr := sp.Rollback(ctx); rbErr != nil {
				return 0, len(batch), model.NewError(model.KindLoad, "load", fmt.Errorf("rollback to savepoint: %w", rbErr))
			}
			failed++
			continue
		}

		if err := sp.Commit(ctx); err != nil {
			return 0, len(batch), model.NewError(model.KindLoad, "load", fmt.Errorf("release savepoint: %w", err))
		}
		ok++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, len(batch), model.NewError(model.KindLoad, "load", fmt.Errorf("commit: %w", err))
	}

	l.logger.Debug("sub-batch committed", "records", len(batch), "ok", ok, "failed", failed)
	return ok, failed, nil
}
