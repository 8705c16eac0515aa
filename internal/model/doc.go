// Package model defines shared data types used across the ETL pipeline.
//
// All types mirror the crypto_market table created by the database package.
//
// Conventions:
//   - Prices and derived scores: float64
//   - Market cap and volume: int64
//   - Timestamps: time.Time in UTC, truncated to microseconds (Postgres precision)
//   - Run IDs: uuid.UUID
package model
