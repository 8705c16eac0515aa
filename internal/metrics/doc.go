// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Pipeline runs by outcome, and run duration
//   - Records per stage (extracted, transformed, loaded, failed)
//   - Time of the last successful run
//   - Database connection pool stats
//   - Build info
package metrics
