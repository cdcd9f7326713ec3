// Records document commits and log flushes in a git repository using go-git.

package jsonldb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	historyName  = "apy4i"
	historyEmail = "apy4i@localhost"

	// maxHistory caps the number of commits returned by DocumentHistory.
	maxHistory = 1000
)

// ErrNoHistory is returned by history queries on a DB opened without
// Options.History.
var ErrNoHistory = errors.New("history is not enabled")

// Revision is one recorded change of a document.
type Revision struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Date    time.Time `json:"date"`
}

type history struct {
	mu   sync.Mutex
	repo *gogit.Repository
}

func openHistory(root string) (*history, error) {
	repo, err := gogit.PlainOpen(root)
	if err != nil {
		repo, err = gogit.PlainInit(root, false)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize git repo: %w", err)
		}
		cfg, err := repo.Config()
		if err != nil {
			return nil, fmt.Errorf("failed to read git config: %w", err)
		}
		cfg.User.Name = historyName
		cfg.User.Email = historyEmail
		if err := repo.SetConfig(cfg); err != nil {
			return nil, fmt.Errorf("failed to write git config: %w", err)
		}
	}
	return &history{repo: repo}, nil
}

// commit stages path, relative to the DB root, and commits it if it changed.
//
// Only path is hashed and compared with HEAD, so the cost does not grow with
// the number of files in the repository.
func (h *history) commit(path, msg string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, err := h.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}
	// SkipStatus keeps Add from scanning the whole worktree.
	if err := w.AddWithOptions(&gogit.AddOptions{Path: path, SkipStatus: true}); err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}
	idx, err := h.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	staged, err := idx.Entry(path)
	if err != nil {
		return fmt.Errorf("failed to find %s in index: %w", path, err)
	}
	prev, err := h.headEntry(path)
	if err != nil {
		return err
	}
	if prev == staged.Hash {
		return nil
	}
	sig := &object.Signature{Name: historyName, Email: historyEmail, When: time.Now()}
	if _, err := w.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig}); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}

// headEntry returns the blob hash of path in HEAD, or the zero hash when
// there is no HEAD yet or path is not in it.
func (h *history) headEntry(path string) (plumbing.Hash, error) {
	ref, err := h.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	c, err := h.repo.CommitObject(ref.Hash())
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read HEAD commit: %w", err)
	}
	tree, err := c.Tree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read HEAD tree: %w", err)
	}
	e, err := tree.FindEntry(path)
	if err != nil {
		if errors.Is(err, object.ErrEntryNotFound) || errors.Is(err, object.ErrDirectoryNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, fmt.Errorf("failed to look up %s in HEAD: %w", path, err)
	}
	return e.Hash, nil
}

// record commits path in history when enabled. The data is already on disk at
// this point, so failures are logged rather than returned.
func (db *DB) record(ctx context.Context, path, msg string) {
	if db.history == nil {
		return
	}
	if err := db.history.commit(path, msg); err != nil {
		db.metrics.historyFailures.Inc()
		slog.WarnContext(ctx, "jsonldb: history commit failed", "path", path, "err", err)
	}
}

// DocumentHistory returns up to n revisions of the document for key, newest
// first. n <= 0 means the maximum.
func (db *DB) DocumentHistory(_ context.Context, key string, n int) ([]Revision, error) {
	if db.history == nil {
		return nil, ErrNoHistory
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if n <= 0 || n > maxHistory {
		n = maxHistory
	}
	path := storeDirName + "/" + key

	db.history.mu.Lock()
	defer db.history.mu.Unlock()
	it, err := db.history.repo.Log(&gogit.LogOptions{FileName: &path})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// No commits yet.
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history of %q: %w", key, err)
	}
	defer it.Close()
	var out []Revision
	for range n {
		c, err := it.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read history of %q: %w", key, err)
		}
		subject, _, _ := strings.Cut(c.Message, "\n")
		out = append(out, Revision{Hash: c.Hash.String(), Message: subject, Date: c.Committer.When})
	}
	return out, nil
}

// DocumentAt returns the document for key as recorded at revision hash.
func (db *DB) DocumentAt(_ context.Context, key, hash string) (Document, error) {
	if db.history == nil {
		return nil, ErrNoHistory
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}

	db.history.mu.Lock()
	defer db.history.mu.Unlock()
	c, err := db.history.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		return nil, fmt.Errorf("failed to get revision %s: %w", hash, err)
	}
	f, err := c.File(storeDirName + "/" + key)
	if err != nil {
		return nil, fmt.Errorf("failed to get %q at %s: %w", key, hash, err)
	}
	raw, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %q at %s: %w", key, hash, err)
	}
	data, err := decodeDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w %q at %s: %w", ErrCorruptDocument, key, hash, err)
	}
	return data, nil
}
