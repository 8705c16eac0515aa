package model

import (
	"time"

	"github.com/google/uuid"
)

// UnrankedSentinel is stored as market_cap_rank when upstream has no rank.
// Large enough that unranked coins sort after every ranked one.
const UnrankedSentinel = 9999

// -----------------------------------------------------------------------------
// Extraction
// -----------------------------------------------------------------------------

// RawRecord is one coin object exactly as decoded from the upstream payload.
// Numbers are json.Number so large integers survive decoding untouched.
type RawRecord map[string]any

// ID returns the upstream identifier if it is a string.
func (r RawRecord) ID() string {
	s, _ := r["id"].(string)
	return s
}

// -----------------------------------------------------------------------------
// Persistence
// -----------------------------------------------------------------------------

// Snapshot is one coin's market state at one extraction instant.
// (CoinID, ExtractedAt) is the natural key of the crypto_market table.
type Snapshot struct {
	CoinID          string    `json:"coin_id"`
	Symbol          string    `json:"symbol"` // Upper-cased
	Name            string    `json:"name"`
	CurrentPrice    float64   `json:"current_price"`
	MarketCap       int64     `json:"market_cap"`
	TotalVolume     int64     `json:"total_volume"`
	PriceChange24h  float64   `json:"price_change_24h"`
	MarketCapRank   int       `json:"market_cap_rank"` // UnrankedSentinel when missing
	VolatilityScore float64   `json:"volatility_score"`
	ExtractedAt     time.Time `json:"extracted_at"` // Shared by every record of a run
}

// LoadResult reports per-record outcomes of one load call.
type LoadResult struct {
	SuccessCount int `json:"success_count"`
	ErrorCount   int `json:"error_count"`
	Total        int `json:"total"`
}

// -----------------------------------------------------------------------------
// Orchestration
// -----------------------------------------------------------------------------

// RunState is a pipeline run's position in its state machine.
type RunState int32

const (
	StateIdle RunState = iota
	StateExtracting
	StateTransforming
	StateLoading
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateTransforming:
		return "transforming"
	case StateLoading:
		return "loading"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// RunResult is the outcome of one pipeline run. It is never persisted.
type RunResult struct {
	RunID       uuid.UUID
	State       RunState
	Extracted   int
	Transformed int
	Loaded      int
	Failed      int
	ExtractedAt time.Time
	StartedAt   time.Time
	EndedAt     time.Time
	Err         error // Set when State is StateFailed
}

// Duration returns the wall time of the run, or zero while it is still active.
func (r *RunResult) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run reached StateCompleted.
func (r *RunResult) Succeeded() bool {
	return r.State == StateCompleted
}
