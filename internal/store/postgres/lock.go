package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bitredict/backend/internal/domain"
)

// LockManager implements domain.LockManager with PostgreSQL session
// advisory locks. Each Acquire pins one pooled connection for the lock's
// lifetime, so cross-process exclusion shares fate with the database the
// guarded writes go to. Keys partition cleanly per entity (pool:<id>,
// cycle:<id>, ingest:<window>); no global lock exists.
type LockManager struct {
	pool *pgxpool.Pool
}

// NewLockManager creates a LockManager backed by the given pool.
func NewLockManager(pool *pgxpool.Pool) *LockManager {
	return &LockManager{pool: pool}
}

// keyHash folds a lock key into the bigint keyspace of advisory locks.
func keyHash(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}

// Acquire attempts to take the advisory lock for key. It returns
// domain.ErrLockHeld when another session holds it. The returned unlock
// function releases the lock and the pinned connection; it is safe to call
// more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string) (func(), error) {
	conn, err := lm.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: acquire conn for lock %s: %w", key, err)
	}

	var got bool
	if err := conn.QueryRow(ctx,
		`SELECT pg_try_advisory_lock($1)`, keyHash(key),
	).Scan(&got); err != nil {
		conn.Release()
		return nil, fmt.Errorf("postgres: try lock %s: %w", key, err)
	}
	if !got {
		conn.Release()
		return nil, domain.ErrLockHeld
	}

	released := false
	unlock := func() {
		if released {
			return
		}
		released = true

		// Background context so unlock works even when the caller's context
		// is already cancelled during shutdown.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, keyHash(key))
		conn.Release()
	}
	return unlock, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
