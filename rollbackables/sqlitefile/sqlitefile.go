// Package sqlitefile implements engine.Rollbackable by copying the live
// SQLite database file on Checkpoint and replacing it on Rollback. Unlike
// the savepoint adapter, the whole file IS the snapshot: no in-database
// transaction spans the checkpoint boundary.
package sqlitefile

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/R3E-Network/exploration-engine/engine"
)

// Token names the scratch copy of the database file taken at Checkpoint
// time.
type Token struct {
	system string
	path   string
}

func (t Token) System() string { return t.system }

// Adapter owns one SQLite file and a single open *sql.DB against it. Every
// Checkpoint closes no connections (SQLite on a single process keeps one
// writer); it copies the file bytes to a scratch path. Rollback closes the
// live handle, overwrites the live file with the scratch copy, and reopens.
type Adapter struct {
	name   string
	path   string
	db     *sql.DB
	mu     sync.Mutex
	seq    int
	closed bool
}

// Config configures a new Adapter.
type Config struct {
	Name string
	Path string
}

// New opens (creating if absent) the SQLite file in WAL mode.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	name := cfg.Name
	if name == "" {
		name = "sqlite"
	}

	db, err := openWithPragmas(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}

	return &Adapter{name: name, path: cfg.Path, db: db}, nil
}

func openWithPragmas(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return db, nil
}

func (a *Adapter) Name() string { return a.name }

// DB exposes the live connection for invariants and actions that need
// direct SQL access.
func (a *Adapter) DB() *sql.DB {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db
}

// Checkpoint forces a WAL checkpoint (so the main file reflects every
// committed write) then copies the file to a scratch path.
func (a *Adapter) Checkpoint(ctx context.Context, name string) (engine.CheckpointToken, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, fmt.Errorf("%s: adapter closed", a.name)
	}

	if _, err := a.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("%s: wal checkpoint: %w", a.name, err)
	}

	a.seq++
	scratchPath := fmt.Sprintf("%s.cp-%d-%d", a.path, time.Now().UnixNano(), a.seq)
	if err := copyFile(a.path, scratchPath); err != nil {
		return nil, fmt.Errorf("%s: copy %s: %w", a.name, name, err)
	}
	return Token{system: a.name, path: scratchPath}, nil
}

// Rollback closes the live connection, replaces the live file with the
// scratch copy, and reopens.
func (a *Adapter) Rollback(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%s: adapter closed", a.name)
	}

	if err := a.db.Close(); err != nil {
		return fmt.Errorf("%s: close live handle before restore: %w", a.name, err)
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(a.path + suffix)
	}
	if err := copyFile(t.path, a.path); err != nil {
		return fmt.Errorf("%s: restore from %s: %w", a.name, t.path, err)
	}

	db, err := openWithPragmas(ctx, a.path)
	if err != nil {
		return fmt.Errorf("%s: reopen after restore: %w", a.name, err)
	}
	a.db = db
	return nil
}

// Release deletes the scratch copy for a checkpoint token that was never
// rolled back to, freeing disk space as exploration proceeds deeper.
func (a *Adapter) Release(ctx context.Context, token engine.CheckpointToken) error {
	t, ok := token.(Token)
	if !ok {
		return fmt.Errorf("%s: token of wrong type %T", a.name, token)
	}
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%s: release scratch copy %s: %w", a.name, t.path, err)
	}
	return nil
}

// Observe reports the live file's size in bytes as a coarse fingerprint
// input; invariants needing exact row data should query DB()
// directly.
func (a *Adapter) Observe(ctx context.Context) (engine.Observation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := os.Stat(a.path)
	if err != nil {
		return engine.Observation{}, fmt.Errorf("%s: stat: %w", a.name, err)
	}

	return engine.Observation{
		System: a.name,
		Data: map[string]interface{}{
			"size_bytes": info.Size(),
		},
		ObservedAt: time.Now(),
	}, nil
}

func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
