// Package pipeline runs one extract, transform, load cycle.
//
// A run moves strictly forward through
//
//	idle -> extracting -> transforming -> loading -> completed
//
// and jumps to failed from any stage, skipping the stages after it. The
// table schema is ensured before the first run of the process; a failed
// attempt is repeated on the next run.
//
// Transient upstream failures (throttling, network errors) are retried under
// a retry.Policy before the run is failed. Everything after extraction is
// tried once.
//
// Pipeline does not serialize concurrent Run calls; the scheduler does.
package pipeline
