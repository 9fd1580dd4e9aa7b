package main

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/switchboard/internal/postgres"
	"github.com/linnemanlabs/switchboard/internal/refdata"
	refmem "github.com/linnemanlabs/switchboard/internal/refdata/memstore"
	refpg "github.com/linnemanlabs/switchboard/internal/refdata/pgstore"
	"github.com/linnemanlabs/switchboard/internal/triage"
	"github.com/linnemanlabs/switchboard/internal/triage/memstore"
	"github.com/linnemanlabs/switchboard/internal/triage/pgstore"
)

// stores bundles the reference directory and the decision store.
type stores struct {
	dir       *refdata.Directory
	decisions triage.Store
	close     func()
}

// openStores selects PostgreSQL when databaseURL is set and in-memory
// stores otherwise. With PostgreSQL, an explicit seed file is loaded into
// the reference tables; the embedded dataset only seeds memory.
func openStores(ctx context.Context, L log.Logger, databaseURL, seedFile string, now time.Time) (*stores, error) {
	if databaseURL == "" {
		seed, err := refdata.LoadSeedFile(seedFile, now)
		if err != nil {
			return nil, fmt.Errorf("reference seed: %w", err)
		}
		L.Info(ctx, "using in-memory stores (no database-url configured)",
			"customers", len(seed.Customers),
			"services", len(seed.Services),
		)
		return &stores{
			dir:       refdata.NewDirectory(refmem.New(seed)),
			decisions: memstore.New(),
			close:     func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}

	refStore, err := refpg.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("reference pgstore init: %w", err)
	}
	if seedFile != "" {
		seed, err := refdata.LoadSeedFile(seedFile, now)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("reference seed: %w", err)
		}
		if err := refStore.Load(ctx, seed); err != nil {
			pool.Close()
			return nil, fmt.Errorf("load reference seed: %w", err)
		}
		L.Info(ctx, "loaded reference seed into postgres", "file", seedFile, "customers", len(seed.Customers))
	}

	decisionStore, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("decision pgstore init: %w", err)
	}

	L.Info(ctx, "using postgres stores")
	return &stores{
		dir:       refdata.NewDirectory(refStore),
		decisions: decisionStore,
		close:     pool.Close,
	}, nil
}
