package extract

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/crypto-etl/internal/api"
	"github.com/rickgao/crypto-etl/internal/model"
)

// MarketSource fetches one raw page of coin market data.
type MarketSource interface {
	GetCoinMarkets(ctx context.Context, opts api.MarketsOptions) ([]byte, error)
}

// Archiver persists raw payloads for later inspection.
type Archiver interface {
	Save(payload []byte, at time.Time) (string, error)
}

// Extractor pulls and validates one page of market data per call.
type Extractor struct {
	source  MarketSource
	opts    api.MarketsOptions
	archive Archiver // nil disables archival
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an Extractor. archive may be nil.
func New(source MarketSource, opts api.MarketsOptions, archive Archiver, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		source:  source,
		opts:    opts,
		archive: archive,
		logger:  logger,
		now:     time.Now,
	}
}

// Extract fetches, archives and validates one payload. The returned error is
// always a *model.Error of kind extraction, rate limit or validation.
func (e *Extractor) Extract(ctx context.Context) ([]model.RawRecord, error) {
	start := e.now()

	body, err := e.source.GetCoinMarkets(ctx, e.opts)
	if err != nil {
		return nil, classify(err)
	}

	e.archiveRaw(body, start)

	records, err := Validate(body)
	if err != nil {
		e.logger.Warn("payload rejected", "bytes", len(body), "err", err)
		return nil, err
	}

	e.logger.Info("extraction complete",
		"coins", len(records),
		"bytes", len(body),
		"duration", e.now().Sub(start),
	)
	return records, nil
}

// archiveRaw stores the payload. Failures are logged and otherwise ignored.
func (e *Extractor) archiveRaw(body []byte, at time.Time) {
	if e.archive == nil {
		return
	}
	path, err := e.archive.Save(body, at)
	if err != nil {
		e.logger.Warn("failed to archive raw payload", "err", err)
		return
	}
	e.logger.Debug("raw payload archived", "path", path)
}

// classify maps transport and HTTP failures onto pipeline error kinds.
// Client errors other than throttling are marked permanent.
func classify(err error) error {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		return model.NewError(model.KindExtraction, "extract", err)
	}
	if apiErr.IsRateLimited() {
		return &model.Error{
			Kind:       model.KindRateLimit,
			Op:         "extract",
			Err:        err,
			RetryAfter: apiErr.RetryAfter,
		}
	}
	return &model.Error{
		Kind:      model.KindExtraction,
		Op:        "extract",
		Err:       err,
		Permanent: !apiErr.IsRetryable(),
	}
}
