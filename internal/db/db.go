package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const (
	stateDir    = ".idc"
	storeName   = "console.db"
	defaultWait = 5 * time.Second
)

// Config locates the console event store.
type Config struct {
	Workspace string
	// BusyTimeout bounds how long a writer waits on a locked database;
	// zero uses five seconds.
	BusyTimeout time.Duration
}

// Dir is the state directory of workspace.
func Dir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, stateDir)
}

// Path returns the store path for the workspace.
func Path(workspace string) string {
	return filepath.Join(Dir(workspace), storeName)
}

// EnsureDir creates the workspace state directory if missing.
func EnsureDir(workspace string) (string, error) {
	dir := Dir(workspace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	return dir, nil
}

// Open opens the workspace store and checks it is reachable. The CLI
// and the server may write concurrently, so the store runs in WAL mode
// with a busy timeout.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureDir(cfg.Workspace); err != nil {
		return nil, err
	}
	wait := cfg.BusyTimeout
	if wait <= 0 {
		wait = defaultWait
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		Path(cfg.Workspace), wait.Milliseconds())
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", Path(cfg.Workspace), err)
	}
	return conn, nil
}
