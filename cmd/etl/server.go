package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/crypto-etl/internal/metrics"
	"github.com/rickgao/crypto-etl/internal/model"
	"github.com/rickgao/crypto-etl/internal/version"
)

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunTracker reports pipeline progress.
type RunTracker interface {
	State() model.RunState
	Last() *model.RunResult
}

// Trigger starts an out-of-schedule run.
type Trigger interface {
	RunNow(ctx context.Context) (*model.RunResult, error)
}

// LatestReader serves the most recently published snapshot.
type LatestReader interface {
	Latest(ctx context.Context, coinID string) (*model.Snapshot, error)
	LatestExtractedAt(ctx context.Context) (time.Time, error)
}

// runView is the JSON form of a run result.
type runView struct {
	RunID       uuid.UUID `json:"run_id"`
	State       string    `json:"state"`
	Extracted   int       `json:"extracted"`
	Transformed int       `json:"transformed"`
	Loaded      int       `json:"loaded"`
	Failed      int       `json:"failed"`
	ExtractedAt time.Time `json:"extracted_at,omitzero"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	DurationMs  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	ErrorKind   string    `json:"error_kind,omitempty"`
}

func viewOf(res *model.RunResult) *runView {
	if res == nil {
		return nil
	}
	v := &runView{
		RunID:       res.RunID,
		State:       res.State.String(),
		Extracted:   res.Extracted,
		Transformed: res.Transformed,
		Loaded:      res.Loaded,
		Failed:      res.Failed,
		ExtractedAt: res.ExtractedAt,
		StartedAt:   res.StartedAt,
		EndedAt:     res.EndedAt,
		DurationMs:  res.Duration().Milliseconds(),
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
		v.ErrorKind = model.KindOf(res.Err).String()
	}
	return v
}

// createOpsHandler creates the HTTP handler for health, metrics and manual
// runs. The /latest routes are served only when latest is non-nil.
func createOpsHandler(db Pinger, runs RunTracker, trigger Trigger, latest LatestReader, gatherer prometheus.Gatherer, metricsPath string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]any),
		}

		// Check database
		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		// Check pipeline
		state := runs.State()
		last := runs.Last()
		health.Components["pipeline"] = map[string]any{
			"state":    state.String(),
			"running":  state != model.StateIdle && !state.Terminal(),
			"last_run": viewOf(last),
		}
		if last != nil && !last.Succeeded() && health.Status == "healthy" {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("POST /run", func(w http.ResponseWriter, r *http.Request) {
		res, err := trigger.RunNow(r.Context())
		if err != nil {
			status := http.StatusServiceUnavailable
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			logger.Warn("manual run not started", "error", err)
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if !res.Succeeded() {
			w.WriteHeader(http.StatusInternalServerError)
		}
		json.NewEncoder(w).Encode(viewOf(res))
	})

	if latest != nil {
		mux.HandleFunc("GET /latest", func(w http.ResponseWriter, r *http.Request) {
			at, err := latest.LatestExtractedAt(r.Context())
			if err != nil {
				logger.Warn("failed to read latest snapshot time", "error", err)
				http.Error(w, "cache unavailable", http.StatusBadGateway)
				return
			}
			if at.IsZero() {
				http.Error(w, "no snapshot cached", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]time.Time{"extracted_at": at})
		})

		mux.HandleFunc("GET /latest/{coin}", func(w http.ResponseWriter, r *http.Request) {
			coin := r.PathValue("coin")
			snap, err := latest.Latest(r.Context(), coin)
			if err != nil {
				logger.Warn("failed to read latest snapshot", "coin_id", coin, "error", err)
				http.Error(w, "cache unavailable", http.StatusBadGateway)
				return
			}
			if snap == nil {
				http.Error(w, "coin not cached", http.StatusNotFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(snap)
		})
	}

	mux.Handle("GET "+metricsPath, metrics.Handler(gatherer))

	return mux
}
