// Package transform turns validated upstream coin records into snapshots
// ready for persistence.
//
// Transform is pure: it performs no I/O and never mutates its input. The
// same records and timestamp always produce the same snapshots.
//
// Stages run in a fixed order, each assuming the previous one ran:
//
//	normalize  absent/null numeric fields get their defaults
//	coerce     numbers (or numeric strings) become float64/int64/int
//	derive     volatility_score = |price_change_24h| * total_volume
//	stamp      every snapshot gets the run's extracted_at
//	project    id -> coin_id, symbol upper-cased, other fields dropped
//
// A value that cannot be coerced fails the whole call with a
// model.KindTransform error naming the coin and field.
package transform
