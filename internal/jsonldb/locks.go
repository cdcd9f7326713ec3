// Defines the per-key lock registry shared by document and log sessions.

package jsonldb

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Lock namespaces. The same key string names one lock in each namespace.
const (
	NamespaceStore = "kv"
	NamespaceLog   = "log"
)

// Lock is a binary semaphore guarding a single (namespace, key) pair.
type Lock struct {
	sem *semaphore.Weighted
}

// Acquire blocks until the lock is held or ctx is done.
//
// There is no timeout other than the one carried by ctx.
func (l *Lock) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryAcquire acquires the lock without blocking. Reports whether it succeeded.
func (l *Lock) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release releases the lock. Each successful Acquire must be matched by
// exactly one Release.
func (l *Lock) Release() {
	l.sem.Release(1)
}

type lockKey struct {
	namespace string
	key       string
}

// LockRegistry maps (namespace, key) to a Lock.
//
// Locks are created on first reference and never evicted, so the registry
// grows with the number of distinct keys touched by the process. It is safe
// for concurrent use.
type LockRegistry struct {
	mu    sync.Mutex
	locks map[lockKey]*Lock
}

// NewLockRegistry returns an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[lockKey]*Lock)}
}

// Lock returns the lock for (namespace, key), creating it if needed.
//
// Every call with the same arguments returns the same *Lock.
func (r *LockRegistry) Lock(namespace, key string) *Lock {
	k := lockKey{namespace: namespace, key: key}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[k]
	if !ok {
		l = &Lock{sem: semaphore.NewWeighted(1)}
		r.locks[k] = l
	}
	return l
}

// Len returns the number of locks ever created.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
