package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carbonledger/carbonledger/internal/ledger"
	"github.com/carbonledger/carbonledger/internal/platform/db"
)

// Backends bundles the journal store with the pool it may run on. Pool is nil
// for the memory store.
type Backends struct {
	Store ledger.Store
	Pool  *pgxpool.Pool
}

// Close releases the pool.
func (b *Backends) Close() {
	if b != nil && b.Pool != nil {
		b.Pool.Close()
	}
}

// OpenBackends connects the configured journal store. The memory store still
// connects to Postgres when requirePool is set, for audit reads and writes.
func OpenBackends(ctx context.Context, cfg *Config, requirePool bool) (*Backends, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	out := &Backends{}
	if cfg.LedgerStore == StorePostgres || requirePool {
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		out.Pool = pool
	}
	switch cfg.LedgerStore {
	case StorePostgres:
		out.Store = ledger.NewPostgresStore(out.Pool)
	case StoreMemory:
		out.Store = ledger.NewMemoryStore()
	default:
		out.Close()
		return nil, fmt.Errorf("app: unknown ledger store %q", cfg.LedgerStore)
	}
	return out, nil
}
