package jsonldb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	storeDirName = "store"
	logDirName   = "logs"
	blobDirName  = "blobs"

	logFileSuffix = ".jsonl"
)

// ErrInvalidKey is returned when a key cannot be mapped to a file name.
var ErrInvalidKey = errors.New("invalid key")

// Options configures a DB. A nil *Options is valid.
type Options struct {
	// Locks is the registry shared by all sessions. Nil creates a private one.
	Locks *LockRegistry
	// Metrics receives session counters. Nil creates unregistered collectors.
	Metrics *Metrics
	// History records every document commit and log flush in a git
	// repository rooted at the DB directory.
	History bool
}

// DB is the root handle of the storage layer.
//
// Layout under root:
//
//	store/<key>        one JSON document per key, rewritten in full
//	logs/<key>.jsonl   one JSON record per line, append-only
//	blobs/<id>         one payload per identifier
type DB struct {
	root    string
	locks   *LockRegistry
	metrics *Metrics
	history *history
}

// Open opens or creates a DB rooted at root.
func Open(root string, opts *Options) (*DB, error) {
	if opts == nil {
		opts = &Options{}
	}
	for _, d := range []string{storeDirName, logDirName, blobDirName} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil { //nolint:gosec // G301: data directories are meant to be readable
			return nil, fmt.Errorf("failed to create %s directory: %w", d, err)
		}
	}
	db := &DB{
		root:    root,
		locks:   opts.Locks,
		metrics: opts.Metrics,
	}
	if db.locks == nil {
		db.locks = NewLockRegistry()
	}
	if db.metrics == nil {
		db.metrics = NewMetrics()
	}
	if opts.History {
		h, err := openHistory(root)
		if err != nil {
			return nil, err
		}
		db.history = h
	}
	return db, nil
}

// Root returns the directory the DB was opened on.
func (db *DB) Root() string {
	return db.root
}

// Locks returns the lock registry used by the DB.
func (db *DB) Locks() *LockRegistry {
	return db.locks
}

// acquire takes the lock for (namespace, key) and records the wait time.
func (db *DB) acquire(ctx context.Context, namespace, kind, key string) (*Lock, error) {
	l := db.locks.Lock(namespace, key)
	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("failed to lock %s %q: %w", kind, key, err)
	}
	db.metrics.observeLockWait(kind, start)
	return l, nil
}

func (db *DB) storePath(key string) string {
	return filepath.Join(db.root, storeDirName, key)
}

func (db *DB) logPath(key string) string {
	return filepath.Join(db.root, logDirName, key+logFileSuffix)
}

func (db *DB) blobPath(id string) string {
	return filepath.Join(db.root, blobDirName, id)
}

// validateKey rejects keys that would escape their directory or collide with
// bookkeeping files.
func validateKey(key string) error {
	switch {
	case key == "", key == ".", key == "..":
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	case strings.ContainsAny(key, `/\`), strings.ContainsRune(key, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidKey, key)
	case strings.HasPrefix(key, "."):
		return fmt.Errorf("%w: %q is hidden", ErrInvalidKey, key)
	}
	return nil
}
