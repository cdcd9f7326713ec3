// Package jsonldb provides process-local keyed storage for small JSON
// documents, append-only JSONL logs and opaque blobs.
//
// # Overview
//
// A [DB] is rooted at a directory. [DB.OpenStore] and [DB.Update] give
// transactional read/modify/write access to one JSON object per key.
// [DB.OpenLog], [DB.WithLog] and [DB.Append] append JSON records to a per-key
// log, and [DB.IterateLog] reads them back lazily. [DB.WriteBlob] and
// [DB.ReadBlob] store text, bytes or JSON-encoded values under random
// identifiers.
//
// # Concurrency: Per-Key Locking
//
// Every document key and every log key has its own binary lock in a
// [LockRegistry]. A document session holds its lock from open to commit or
// abort, so sessions on the same key are strictly serialized while sessions
// on different keys never wait on each other. A log session only takes its
// lock while flushing its buffer, keeping the hold time short. Locks are
// released on every exit path, including errors and panics.
//
// The locks coordinate goroutines within one process only. Nothing here
// protects against another process writing the same directory.
//
// # Durability
//
// Documents are rewritten in full on commit, without a rename, so a crash
// during the write can leave a torn file; it will then fail to load with
// [ErrCorruptDocument]. Log records are appended with a single write per
// flush and are never rewritten.
package jsonldb
