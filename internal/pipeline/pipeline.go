package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/crypto-etl/internal/model"
	"github.com/rickgao/crypto-etl/internal/retry"
)

// Extractor fetches one validated batch of raw records.
type Extractor interface {
	Extract(ctx context.Context) ([]model.RawRecord, error)
}

// TransformFunc turns raw records into snapshots stamped with extractedAt.
type TransformFunc func(raw []model.RawRecord, extractedAt time.Time) ([]model.Snapshot, error)

// Loader persists snapshots.
type Loader interface {
	Load(ctx context.Context, snapshots []model.Snapshot) (model.LoadResult, error)
}

// SchemaEnsurer creates the target table if missing.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Publisher receives the snapshots of every completed run. Failures are
// logged and never fail the run.
type Publisher interface {
	Publish(ctx context.Context, snapshots []model.Snapshot) error
}

// Observer is notified once per finished run.
type Observer interface {
	ObserveRun(result *model.RunResult)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSchema ensures the schema before the first run.
func WithSchema(s SchemaEnsurer) Option {
	return func(p *Pipeline) { p.schema = s }
}

// WithPublisher publishes completed snapshots.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithObserver reports finished runs.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithRetry sets the policy for transient extraction failures.
func WithRetry(policy retry.Policy) Option {
	return func(p *Pipeline) { p.retryPolicy = policy }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline sequences extraction, transformation and loading.
type Pipeline struct {
	extractor Extractor
	transform TransformFunc
	loader    Loader

	schema      SchemaEnsurer
	publisher   Publisher
	observer    Observer
	retryPolicy retry.Policy
	retrier     *retry.Retrier
	logger      *slog.Logger
	now         func() time.Time

	schemaMu    sync.Mutex
	schemaReady bool

	state atomic.Int32
	last  atomic.Pointer[model.RunResult]
}

// New creates a Pipeline.
func New(extractor Extractor, transform TransformFunc, loader Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:   extractor,
		transform:   transform,
		loader:      loader,
		retryPolicy: retry.Policy{MaxAttempts: 1},
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.retrier = retry.New(p.retryPolicy, p.logger)
	return p
}

// State returns the stage of the current run, or the terminal state of the
// last one.
func (p *Pipeline) State() model.RunState {
	return model.RunState(p.state.Load())
}

// Last returns the result of the most recent finished run, or nil.
func (p *Pipeline) Last() *model.RunResult {
	return p.last.Load()
}

// Run executes one full cycle. It never returns nil; failures are reported
// through the result's State and Err.
func (p *Pipeline) Run(ctx context.Context) *model.RunResult {
	res := &model.RunResult{
		RunID:     uuid.New(),
		State:     model.StateIdle,
		StartedAt: p.now(),
	}
	logger := p.logger.With("run_id", res.RunID)
	p.setState(res, model.StateIdle)

	logger.Info("pipeline run started")
	defer p.finish(res, logger)

	if err := p.ensureSchema(ctx, logger); err != nil {
		p.fail(res, err)
		return res
	}

	// Extract
	p.setState(res, model.StateExtracting)
	var records []model.RawRecord
	err := p.retrier.Do(ctx, retry.Transient, func(ctx context.Context) error {
		var err error
		records, err = p.extractor.Extract(ctx)
		return err
	})
	if err != nil {
		p.fail(res, err)
		return res
	}
	res.Extracted = len(records)

	// Transform
	p.setState(res, model.StateTransforming)
	res.ExtractedAt = p.now().UTC().Truncate(time.Microsecond)
	snapshots, err := p.transform(records, res.ExtractedAt)
	if err != nil {
		p.fail(res, err)
		return res
	}
	res.Transformed = len(snapshots)

	// Load
	p.setState(res, model.StateLoading)
	loaded, err := p.loader.Load(ctx, snapshots)
	res.Loaded = loaded.SuccessCount
	res.Failed = loaded.ErrorCount
	if err != nil {
		p.fail(res, err)
		return res
	}

	p.setState(res, model.StateCompleted)
	p.publish(ctx, snapshots, logger)
	return res
}

func (p *Pipeline) ensureSchema(ctx context.Context, logger *slog.Logger) error {
	if p.schema == nil {
		return nil
	}

	p.schemaMu.Lock()
	defer p.schemaMu.Unlock()

	if p.schemaReady {
		return nil
	}
	if err := p.schema.EnsureSchema(ctx); err != nil {
		if model.KindOf(err) == model.KindUnknown {
			err = model.NewError(model.KindConnection, "ensure schema", err)
		}
		return err
	}
	p.schemaReady = true
	logger.Debug("schema ensured")
	return nil
}

func (p *Pipeline) publish(ctx context.Context, snapshots []model.Snapshot, logger *slog.Logger) {
	if p.publisher == nil || len(snapshots) == 0 {
		return
	}
	if err := p.publisher.Publish(ctx, snapshots); err != nil {
		logger.Warn("failed to publish latest snapshot", "error", err)
	}
}

func (p *Pipeline) setState(res *model.RunResult, s model.RunState) {
	res.State = s
	p.state.Store(int32(s))
}

func (p *Pipeline) fail(res *model.RunResult, err error) {
	res.Err = err
	p.setState(res, model.StateFailed)
}

func (p *Pipeline) finish(res *model.RunResult, logger *slog.Logger) {
	res.EndedAt = p.now()
	p.last.Store(res)

	if res.Succeeded() {
		logger.Info("pipeline run completed",
			"extracted", res.Extracted,
			"transformed", res.Transformed,
			"loaded", res.Loaded,
			"failed", res.Failed,
			"extracted_at", res.ExtractedAt,
			"duration", res.Duration(),
		)
	} else {
		logger.Error("pipeline run failed",
			"error", res.Err,
			"kind", model.KindOf(res.Err),
			"extracted", res.Extracted,
			"loaded", res.Loaded,
			"duration", res.Duration(),
		)
	}

	if p.observer != nil {
		p.observer.ObserveRun(res)
	}
}
