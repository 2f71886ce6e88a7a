// Package sqlsavepoint implements engine.Rollbackable over a single
// long-lived, uncommitted SQL transaction guarded by nested SAVEPOINTs —
// the adapter for Postgres and MySQL targets.
package sqlsavepoint

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/exploration-engine/engine"
)

// Token is the SAVEPOINT name captured at Checkpoint time. It never spans a
// reconnect: if the underlying transaction is lost, every outstanding token
// becomes unusable and the next Rollback call returns a fatal error.
type Token struct {
	system string
	name   string
}

func (t Token) System() string { return t.system }

// Adapter wraps one uncommitted database/sql transaction per exploration
// run. Observe counts rows in a configured set of tables so that each State
// carries a coarse, cheap fingerprint input; richer invariants read the
// tables directly via DB().
type Adapter struct {
	name         string
	db           *sqlx.DB
	tx           *sqlx.Tx
	tables       []string
	filters      map[string]string
	filterParams map[string]interface{}
	mu           sync.Mutex
	savepointSeq int
	closed       bool
}

// Config configures a new Adapter.
type Config struct {
	Name       string
	DriverName string // "postgres" or "mysql"; defaults to "postgres"
	DSN        string
	// ObservedTables lists tables whose row counts feed Observe(); order is
	// irrelevant, the adapter sorts them for a stable fingerprint.
	ObservedTables []string
	// TableFilters optionally maps a table name to a named-parameter SQL
	// WHERE fragment (e.g. "created_at > :since") evaluated with
	// FilterParams, narrowing that table's row count to a subset an
	// invariant cares about instead of the whole table.
	TableFilters map[string]string
	// FilterParams supplies the named-parameter bindings referenced by
	// TableFilters, re-evaluated on every Observe call.
	FilterParams map[string]interface{}
}

// New opens a connection and begins the single long-lived transaction that
// every Checkpoint/Rollback call operates within.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	driver := cfg.DriverName
	if driver == "" {
		driver = "postgres"
	}
	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	tables := append([]string(nil), cfg.ObservedTables...)
	sort.Strings(tables)

	name := cfg.Name
	if name == "" {
		name = "db"
	}

	return &Adapter{
		name:         name,
		db:           db,
		tx:           tx,
		tables:       tables,
		filters:      cfg.TableFilters,
		filterParams: cfg.FilterParams,
	}, nil
}

func (a *Adapter) Name() string { return a.name }

// Checkpoint issues SAVEPOINT <name> inside the live transaction.
func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("%s: transaction closed", a.name)
	}

	a.savepointSeq++
	spName := savepointName(name, a.savepointSeq)
	if _, err := a.tx.ExecContext(ctx, "SAVEPOINT "+spName); err != nil {
		return nil, fmt.Errorf("%s: savepoint %s: %w", a.name, spName, err)
	}
	return Token{system: a.name, name: spName}, nil
}

// Rollback issues ROLLBACK TO SAVEPOINT <name>. A failure here means the
// transaction itself is unusable (e.g. the connection dropped mid-test) and
// is always fatal, per the documented contract for this adapter: savepoints
// cannot survive a reconnect.
func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%s: transaction closed", a.name)
	}
	if _, err := a.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+t.name); err != nil {
		return fmt.Errorf("%s: rollback to savepoint %s: %w", a.name, t.name, err)
	}
	return nil
}

// Observe returns row counts for every configured table, taken within the
// live transaction so it reflects uncommitted writes made by prior actions.
// A table with a configured TableFilters entry is counted through a
// named-parameter query bound against FilterParams instead of a bare
// COUNT(*), so Observe can narrow a noisy table (e.g. "only rows created
// since the exploration started") without the caller hand-building SQL.
func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	data := make(map[string]interface{}, len(a.tables))
	for _, table := range a.tables {
		count, err := a.countTable(ctx, table)
		if err != nil {
			return engine.Observation{}, fmt.Errorf("%s: count %s: %w", a.name, table, err)
		}
		data[table+"_count"] = count
	}

	return engine.Observation{
		System:     a.name,
		Data:       data,
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) countTable(ctx context.Context, table string) (int64, error) {
	// #nosec G201 -- table names come from adapter configuration, not request input.
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)

	if filter, ok := a.filters[table]; ok && filter != "" {
		rows, err := a.tx.NamedQuery(query+" WHERE "+filter, a.filterParams)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var count int64
		if rows.Next() {
			if err := rows.Scan(&count); err != nil {
				return 0, err
			}
		}
		return count, rows.Err()
	}

	var count int64
	if err := a.tx.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DB exposes the live transaction for invariants that need to query data
// the coarse row-count observation doesn't capture.
func (a *Adapter) DB() *sqlx.Tx {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tx
}

// Close issues a final ROLLBACK to abandon the entire test transaction and
// closes the underlying connection pool, so no exploration writes ever
// reach a durable commit.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	var firstErr error
	if err := a.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		firstErr = fmt.Errorf("%s: final rollback: %w", a.name, err)
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("%s: close connection: %w", a.name, err)
	}
	return firstErr
}

func savepointName(label string, seq int) string {
	clean := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, label)
	return fmt.Sprintf("sp_%s_%d", clean, seq)
}
