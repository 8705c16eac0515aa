package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TableName is the table holding every market snapshot.
const TableName = "crypto_market"

// schemaStatements create the snapshot table and the access paths used by
// downstream readers. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS crypto_market (
		id               SERIAL PRIMARY KEY,
		coin_id          TEXT NOT NULL,
		symbol           TEXT NOT NULL,
		name             TEXT NOT NULL,
		current_price    DOUBLE PRECISION,
		market_cap       BIGINT,
		total_volume     BIGINT,
		price_change_24h DOUBLE PRECISION,
		market_cap_rank  INTEGER,
		volatility_score DOUBLE PRECISION,
		extracted_at     TIMESTAMP NOT NULL,
		UNIQUE (coin_id, extracted_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_coin_id ON crypto_market (coin_id)`,
	`CREATE INDEX IF NOT EXISTS idx_extracted_at ON crypto_market (extracted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_market_cap_rank ON crypto_market (market_cap_rank)`,
}

// EnsureSchema creates the snapshot table and its indexes if missing, in a
// single transaction. It is not a migration system.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	err := m.WithConn(ctx, func(c Conn) error {
		return pgx.BeginFunc(ctx, c, func(tx pgx.Tx) error {
			for _, stmt := range schemaStatements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	m.logger.Info("schema ready", "table", TableName, "indexes", len(schemaStatements)-1)
	return nil
}
