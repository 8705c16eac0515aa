package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/crypto-etl/internal/config"
	"github.com/rickgao/crypto-etl/internal/model"
)

// releaseTimeout bounds closing an unpooled connection.
const releaseTimeout = 5 * time.Second

// ErrShutdown is returned by Acquire after Shutdown.
var ErrShutdown = errors.New("connection manager is shut down")

// Conn is the subset of a PostgreSQL connection used by the pipeline.
// Both *pgxpool.Conn and *pgx.Conn satisfy it.
type Conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Lease is a connection checked out by exactly one caller.
type Lease struct {
	Conn

	pooled   *pgxpool.Conn
	direct   *pgx.Conn
	released bool
}

// Pooled reports whether the lease came from the pool.
func (l *Lease) Pooled() bool {
	return l.pooled != nil
}

// PoolStat is a point-in-time view of pool usage.
type PoolStat struct {
	Acquired int32
	Idle     int32
	Total    int32
	Max      int32
}

// Manager owns the database connections of the process.
type Manager struct {
	cfg     config.DBConfig
	connStr string
	logger  *slog.Logger

	mu     sync.RWMutex
	pool   *pgxpool.Pool
	closed bool
}

// NewManager creates a Manager. No connection is opened until Initialize or Acquire.
func NewManager(cfg config.DBConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		connStr: BuildConnString(cfg),
		logger:  logger,
	}
}

// Initialize creates the bounded pool (cfg.MinConns..cfg.MaxConns) and
// verifies it with a ping. Calling it again is a no-op.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.NewError(model.KindConnection, "initialize pool", ErrShutdown)
	}
	if m.pool != nil {
		return nil
	}

	poolCfg, err := pgxpool.ParseConfig(m.connStr)
	if err != nil {
		return model.NewError(model.KindConnection, "initialize pool", fmt.Errorf("parse connection string: %w", err))
	}

	poolCfg.MinConns = int32(m.cfg.MinConns)
	poolCfg.MaxConns = int32(m.cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return model.NewError(model.KindConnection, "initialize pool", fmt.Errorf("create pool: %w", err))
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return model.NewError(model.KindConnection, "initialize pool", fmt.Errorf("ping database: %w", err))
	}

	m.pool = pool
	m.logger.Info("connection pool created",
		"host", m.cfg.Host,
		"database", m.cfg.Name,
		"min_conns", m.cfg.MinConns,
		"max_conns", m.cfg.MaxConns,
	)
	return nil
}

// Acquire checks out a connection. With a pool it blocks until one is free,
// bounded only by ctx and cfg.AcquireTimeout (0 waits indefinitely).
// Without a pool it opens a private connection.
func (m *Manager) Acquire(ctx context.Context) (*Lease, error) {
	m.mu.RLock()
	pool, closed := m.pool, m.closed
	m.mu.RUnlock()

	if closed {
		return nil, model.NewError(model.KindConnection, "acquire", ErrShutdown)
	}

	if pool == nil {
		conn, err := pgx.Connect(ctx, m.connStr)
		if err != nil {
			return nil, model.NewError(model.KindConnection, "acquire", fmt.Errorf("connect: %w", err))
		}
		m.logger.Debug("opened unpooled connection")
		return &Lease{Conn: conn, direct: conn}, nil
	}

	acquireCtx := ctx
	if m.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, m.cfg.AcquireTimeout)
		defer cancel()
	}

	conn, err := pool.Acquire(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, model.NewError(model.KindPoolExhausted, "acquire",
				fmt.Errorf("no connection free after %s (max_conns=%d)", m.cfg.AcquireTimeout, m.cfg.MaxConns))
		}
		return nil, model.NewError(model.KindConnection, "acquire", err)
	}
	return &Lease{Conn: conn, pooled: conn}, nil
}

// Release returns a pooled connection or closes an unpooled one.
// Releasing nil or an already released lease is a no-op.
func (m *Manager) Release(l *Lease) {
	if l == nil || l.released {
		return
	}
	l.released = true

	if l.Pooled() {
		l.pooled.Release()
		return
	}
	if l.direct != nil {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := l.direct.Close(ctx); err != nil {
			m.logger.Warn("failed to close unpooled connection", "err", err)
		}
	}
}

// WithConn runs fn on a leased connection and releases it on every exit
// path, including errors and panics inside fn.
func (m *Manager) WithConn(ctx context.Context, fn func(Conn) error) error {
	lease, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer m.Release(lease)

	return fn(lease)
}

// Ping verifies the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.WithConn(ctx, func(c Conn) error {
		var one int
		if err := c.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
			return model.NewError(model.KindConnection, "ping", err)
		}
		return nil
	})
}

// ServerVersion returns the server's version() string.
func (m *Manager) ServerVersion(ctx context.Context) (string, error) {
	var version string
	err := m.WithConn(ctx, func(c Conn) error {
		return c.QueryRow(ctx, "SELECT version()").Scan(&version)
	})
	if err != nil {
		return "", fmt.Errorf("query server version: %w", err)
	}
	return version, nil
}

// Stat returns pool usage; the zero value when no pool is active.
func (m *Manager) Stat() PoolStat {
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()

	if pool == nil {
		return PoolStat{}
	}
	s := pool.Stat()
	return PoolStat{
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
		Max:      s.MaxConns(),
	}
}

// Shutdown closes all pooled connections. It waits for leased connections
// to be released. Later Acquire calls fail.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.closed = true
	m.mu.Unlock()

	if pool != nil {
		pool.Close()
		m.logger.Info("connection pool closed")
	}
}
