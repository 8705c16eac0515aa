// Package api provides a minimal client for the CoinGecko REST API.
//
// Endpoints used:
//   - GET /coins/markets: one page of coins ordered by market cap
//   - GET /ping: liveness
//
// Public base URL: https://api.coingecko.com/api/v3
//
// The client makes exactly one HTTP call per method and never retries;
// backoff policy belongs to the caller.
package api
