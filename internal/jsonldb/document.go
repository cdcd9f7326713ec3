// Implements transactional read/modify/write sessions over JSON documents.

package jsonldb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCorruptDocument is returned when a document file exists but does not
// hold a JSON object.
var ErrCorruptDocument = errors.New("corrupt document")

// ErrSessionClosed is returned when a finished session is used again.
var ErrSessionClosed = errors.New("session already closed")

// Document is the in-memory form of a stored document.
//
// Loaded values are what encoding/json produces for an untyped decode with
// numbers kept as json.Number: json.Number, string, bool, nil, []any and
// map[string]any. Numbers are written back exactly as they were read, so
// integers beyond float64 precision survive sessions that do not touch them.
type Document map[string]any

// StoreSession is an exclusive session on one document.
//
// The session holds the key's lock from OpenStore until Commit or Close.
// Changes made to Data are only written by Commit.
type StoreSession struct {
	db   *DB
	key  string
	lock *Lock
	data Document
	done bool
}

// OpenStore acquires the lock for key and loads its document.
//
// A missing file yields an empty Document. A file that fails to parse is an
// error; the lock is released before returning.
func (db *DB) OpenStore(ctx context.Context, key string) (*StoreSession, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	l, err := db.acquire(ctx, NamespaceStore, kindStore, key)
	if err != nil {
		return nil, err
	}
	data, err := db.loadDocument(key)
	if err != nil {
		l.Release()
		return nil, err
	}
	return &StoreSession{db: db, key: key, lock: l, data: data}, nil
}

// Key returns the document key.
func (s *StoreSession) Key() string {
	return s.key
}

// Data returns the mutable working document.
func (s *StoreSession) Data() Document {
	return s.data
}

// Commit writes the working document over the backing file and releases the
// lock. The lock is released even if writing fails.
func (s *StoreSession) Commit() error {
	if s.done {
		return ErrSessionClosed
	}
	defer s.release()
	raw, err := json.Marshal(s.data)
	if err != nil {
		s.db.metrics.aborts.WithLabelValues(kindStore).Inc()
		return fmt.Errorf("failed to marshal document %q: %w", s.key, err)
	}
	if err := os.WriteFile(s.db.storePath(s.key), raw, 0o644); err != nil { //nolint:gosec // G306: documents are not secrets
		s.db.metrics.aborts.WithLabelValues(kindStore).Inc()
		return fmt.Errorf("failed to write document %q: %w", s.key, err)
	}
	s.db.metrics.commits.WithLabelValues(kindStore).Inc()
	s.db.record(context.Background(), storeDirName+"/"+s.key, "store: "+s.key)
	return nil
}

// Close aborts the session if it was not committed, discarding all changes,
// and releases the lock. It is safe to call more than once.
func (s *StoreSession) Close() {
	if s.done {
		return
	}
	s.db.metrics.aborts.WithLabelValues(kindStore).Inc()
	s.release()
}

func (s *StoreSession) release() {
	s.done = true
	s.data = nil
	s.lock.Release()
}

// Update runs fn on the document for key inside a session.
//
// The document is committed when fn returns nil. When fn returns an error or
// panics, nothing is written and the lock is released before the error or
// panic propagates.
func (db *DB) Update(ctx context.Context, key string, fn func(Document) error) error {
	s, err := db.OpenStore(ctx, key)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := fn(s.data); err != nil {
		return err
	}
	return s.Commit()
}

// View runs fn on the document for key while holding its lock. The document
// is never written back.
func (db *DB) View(ctx context.Context, key string, fn func(Document) error) error {
	if err := validateKey(key); err != nil {
		return err
	}
	l, err := db.acquire(ctx, NamespaceStore, kindStore, key)
	if err != nil {
		return err
	}
	defer l.Release()
	data, err := db.loadDocument(key)
	if err != nil {
		return err
	}
	return fn(data)
}

func (db *DB) loadDocument(key string) (Document, error) {
	raw, err := os.ReadFile(db.storePath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("failed to read document %q: %w", key, err)
	}
	data, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrCorruptDocument, key, err)
	}
	return data, nil
}

// decodeDocument parses raw as a single JSON object.
func decodeDocument(raw []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data Document
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after object")
	}
	if data == nil {
		// Only the literal null decodes to a nil map.
		return nil, fmt.Errorf("got %s, want an object", bytes.TrimSpace(raw))
	}
	return data, nil
}
