// Package loader persists snapshots into the crypto_market table.
//
// Rows are written with an upsert keyed on (coin_id, extracted_at), so
// loading the same snapshot twice leaves one row per coin. Input is split
// into sub-batches, each committed in its own transaction; a crash part way
// through keeps every sub-batch committed before it.
//
// Each record runs inside a savepoint. A record the database rejects is
// rolled back to its savepoint, counted and logged with its key, and the
// sub-batch carries on. Failures of the transaction itself (begin, savepoint,
// commit) abort the call with a model.KindLoad error.
package loader
