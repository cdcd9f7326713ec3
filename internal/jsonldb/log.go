// Implements buffered append-only JSONL logs.

package jsonldb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// LogSession buffers records for one log key.
//
// Opening a session takes no lock and does no I/O. Close takes the key's lock
// only for the duration of the write, appending every buffered record in
// order. Discard drops the buffer.
type LogSession struct {
	db   *DB
	key  string
	buf  bytes.Buffer
	n    int
	done bool
}

// OpenLog starts a buffered session on the log for key.
func (db *DB) OpenLog(key string) (*LogSession, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return &LogSession{db: db, key: key}, nil
}

// Key returns the log key.
func (s *LogSession) Key() string {
	return s.key
}

// Len returns the number of buffered records.
func (s *LogSession) Len() int {
	return s.n
}

// Append encodes record and adds it to the session buffer.
//
// The record is encoded immediately, so later mutations of record are not
// reflected in the log.
func (s *LogSession) Append(record any) error {
	if s.done {
		return ErrSessionClosed
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal log record for %q: %w", s.key, err)
	}
	s.buf.Write(raw)
	s.buf.WriteByte('\n')
	s.n++
	return nil
}

// Close flushes the buffered records to the log file under the key's lock.
//
// All records are written with a single append. An empty session does not
// touch the file or the lock.
func (s *LogSession) Close(ctx context.Context) error {
	if s.done {
		return ErrSessionClosed
	}
	s.done = true
	if s.n == 0 {
		return nil
	}
	defer s.buf.Reset()
	l, err := s.db.acquire(ctx, NamespaceLog, kindLog, s.key)
	if err != nil {
		s.db.metrics.aborts.WithLabelValues(kindLog).Inc()
		return err
	}
	defer l.Release()
	if err := s.flush(); err != nil {
		s.db.metrics.aborts.WithLabelValues(kindLog).Inc()
		return err
	}
	s.db.metrics.commits.WithLabelValues(kindLog).Inc()
	s.db.metrics.recordsWritten.Add(float64(s.n))
	s.db.record(ctx, logDirName+"/"+s.key+logFileSuffix, "log: "+s.key)
	return nil
}

func (s *LogSession) flush() error {
	f, err := os.OpenFile(s.db.logPath(s.key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G302: logs are not secrets
	if err != nil {
		return fmt.Errorf("failed to open log %q for append: %w", s.key, err)
	}
	if _, err := f.Write(s.buf.Bytes()); err != nil {
		return errors.Join(fmt.Errorf("failed to append to log %q: %w", s.key, err), f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close log %q: %w", s.key, err)
	}
	return nil
}

// Discard drops the buffered records without writing anything.
func (s *LogSession) Discard() {
	if s.done {
		return
	}
	s.done = true
	s.buf.Reset()
	if s.n > 0 {
		s.db.metrics.aborts.WithLabelValues(kindLog).Inc()
	}
}

// WithLog runs fn with a session on the log for key.
//
// The buffered records are flushed when fn returns nil and discarded when it
// returns an error or panics.
func (db *DB) WithLog(ctx context.Context, key string, fn func(*LogSession) error) error {
	s, err := db.OpenLog(key)
	if err != nil {
		return err
	}
	defer s.Discard()
	if err := fn(s); err != nil {
		return err
	}
	return s.Close(ctx)
}

// Append writes a single record to the log for key.
func (db *DB) Append(ctx context.Context, key string, record any) error {
	return db.WithLog(ctx, key, func(s *LogSession) error {
		return s.Append(record)
	})
}

// IterateLog returns the records of the log for key, oldest first.
//
// The sequence is lazy: the file is opened when iteration starts and read one
// line at a time, and every range over the sequence reads the file again.
// Iteration does not take the key's lock. A flush that races with the
// iteration may or may not be observed, but only newline-terminated lines
// are yielded so a partially written record is never returned. Records still
// buffered in an open session are not visible.
//
// A missing log is empty. Read and decode errors are yielded once, after
// which the iteration stops.
func (db *DB) IterateLog(key string) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		if err := validateKey(key); err != nil {
			yield(nil, err)
			return
		}
		f, err := os.Open(db.logPath(key))
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				yield(nil, fmt.Errorf("failed to open log %q: %w", key, err))
			}
			return
		}
		defer func() {
			_ = f.Close()
		}()
		r := bufio.NewReader(f)
		for lineNo := 1; ; lineNo++ {
			line, err := r.ReadBytes('\n')
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("failed to read log %q: %w", key, err))
				}
				// A trailing line without newline is an in-flight append.
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			if !json.Valid(line) {
				yield(nil, fmt.Errorf("invalid record at %s:%d", db.logPath(key), lineNo))
				return
			}
			if !yield(json.RawMessage(line), nil) {
				return
			}
		}
	}
}

// IterateLogAs decodes each record of the log for key into T.
func IterateLogAs[T any](db *DB, key string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for raw, err := range db.IterateLog(key) {
			var v T
			if err == nil {
				if err = json.Unmarshal(raw, &v); err != nil {
					err = fmt.Errorf("failed to decode record in log %q: %w", key, err)
				}
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}
