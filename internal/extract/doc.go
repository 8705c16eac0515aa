// Package extract implements the Extractor stage of the pipeline.
//
// One Extract call issues one upstream request, optionally archives the raw
// payload, validates its shape, and returns the decoded records or a single
// classified error (extraction, rate limit, validation). It never retries.
package extract
