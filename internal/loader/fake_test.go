package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/crypto-etl/internal/database"
)

type rowKey struct {
	coinID      string
	extractedAt time.Time
}

// fakeDB is an in-memory stand-in for crypto_market with upsert and
// savepoint semantics.
type fakeDB struct {
	mu        sync.Mutex
	rows      map[rowKey][]any
	reject    map[string]bool // coin ids the "database" refuses
	commitErr error
	commitAt  int // fail the commitAt-th commit (1-based); 0 fails every commit when commitErr is set
	commits   int
	begins    int
	onCommit  func()
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		rows:   make(map[rowKey][]any),
		reject: make(map[string]bool),
	}
}

func (db *fakeDB) rowCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.rows)
}

func (db *fakeDB) commitCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commits
}

// fakePool implements Pool with a single connection.
type fakePool struct {
	db       *fakeDB
	acquires int
	releases int
	err      error
}

func (p *fakePool) WithConn(ctx context.Context, fn func(database.Conn) error) error {
	if p.err != nil {
		return p.err
	}
	p.acquires++
	defer func() { p.releases++ }()
	return fn(&fakeConn{db: p.db})
}

type fakeConn struct {
	db *fakeDB
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("exec outside transaction not supported")
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	c.db.mu.Lock()
	c.db.begins++
	c.db.mu.Unlock()
	return &fakeTx{db: c.db, pending: make(map[rowKey][]any)}, nil
}

// fakeTx overrides the pgx.Tx methods the loader uses. Calling any other
// method panics on the nil embedded interface.
type fakeTx struct {
	pgx.Tx

	db      *fakeDB
	parent  *fakeTx
	pending map[rowKey][]any
	closed  bool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	if t.closed {
		return nil, pgx.ErrTxClosed
	}
	return &fakeTx{db: t.db, parent: t, pending: make(map[rowKey][]any)}, nil
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.closed {
		return pgconn.CommandTag{}, pgx.ErrTxClosed
	}
	if len(args) != 10 {
		return pgconn.CommandTag{}, fmt.Errorf("expected 10 args, got %d", len(args))
	}
	coinID := args[0].(string)
	if t.db.reject[coinID] {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23514", Message: "check constraint violated"}
	}
	t.pending[rowKey{coinID, args[9].(time.Time)}] = args
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true

	if t.parent != nil {
		for k, v := range t.pending {
			t.parent.pending[k] = v
		}
		return nil
	}

	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if t.db.commitErr != nil && (t.db.commitAt == 0 || t.db.commitAt == t.db.commits+1) {
		return t.db.commitErr
	}
	for k, v := range t.pending {
		t.db.rows[k] = v
	}
	t.db.commits++
	if t.db.onCommit != nil {
		t.db.onCommit()
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.pending = nil
	return nil
}
