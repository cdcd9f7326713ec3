package jsonldb

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// BlobIndexKey is the document mapping blob identifiers to their Mode.
const BlobIndexKey = "blobs"

var (
	// ErrBlobNotFound is returned when an identifier is not in the blob index.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobMissing is returned when the index lists an identifier whose
	// payload file is gone.
	ErrBlobMissing = errors.New("blob payload missing")
	// ErrInvalidMode is returned when a caller asks for a mode that does not
	// exist. It also matches ErrUnknownMode.
	ErrInvalidMode = errors.New("invalid blob mode")
	// ErrModeMismatch is returned when a payload cannot be read in the mode
	// the caller asked for.
	ErrModeMismatch = errors.New("blob does not match mode")
)

// newBlobID returns a random identifier, unrelated to the payload content.
func newBlobID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// WriteBlob stores p under a new random identifier and returns it.
//
// The payload file is written first, then the identifier is added to the
// BlobIndexKey document. If updating the index fails the payload file is
// removed.
func (db *DB) WriteBlob(ctx context.Context, p Payload) (string, error) {
	if err := p.mode.Validate(); err != nil {
		return "", err
	}
	id := newBlobID()
	if err := db.writeBlobFile(id, p.data); err != nil {
		return "", err
	}
	err := db.Update(ctx, BlobIndexKey, func(d Document) error {
		d[id] = string(p.mode)
		return nil
	})
	if err != nil {
		if rmErr := os.Remove(db.blobPath(id)); rmErr != nil {
			slog.WarnContext(ctx, "jsonldb: failed to remove unindexed blob", "id", id, "err", rmErr)
		}
		return "", fmt.Errorf("failed to index blob %s: %w", id, err)
	}
	db.metrics.blobsWritten.WithLabelValues(string(p.mode)).Inc()
	db.record(ctx, blobDirName+"/"+id, "blob: "+id)
	return id, nil
}

// ReadBlob returns the payload stored under id.
//
// When mode is empty it is looked up in the blob index and ErrBlobNotFound is
// returned for unknown identifiers. A payload file missing despite an index
// entry yields ErrBlobMissing. A non-empty mode skips the index lookup.
func (db *DB) ReadBlob(ctx context.Context, id string, mode Mode) (Payload, error) {
	if err := validateKey(id); err != nil {
		return Payload{}, err
	}
	indexed := mode == ""
	if indexed {
		var err error
		if mode, err = db.blobMode(ctx, id); err != nil {
			return Payload{}, err
		}
	}
	if err := mode.Validate(); err != nil {
		if !indexed {
			return Payload{}, fmt.Errorf("%w for blob %s: %w", ErrInvalidMode, id, err)
		}
		return Payload{}, fmt.Errorf("blob %s: %w", id, err)
	}
	data, err := os.ReadFile(db.blobPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if indexed {
				return Payload{}, fmt.Errorf("%w: %s", ErrBlobMissing, id)
			}
			return Payload{}, fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		return Payload{}, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	if mode == ModeObject && !json.Valid(data) {
		return Payload{}, fmt.Errorf("%w: blob %s is not a JSON object encoding", ErrModeMismatch, id)
	}
	db.metrics.blobsRead.WithLabelValues(string(mode)).Inc()
	return Payload{mode: mode, data: data}, nil
}

func (db *DB) blobMode(ctx context.Context, id string) (Mode, error) {
	var mode Mode
	err := db.View(ctx, BlobIndexKey, func(d Document) error {
		v, ok := d[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrBlobNotFound, id)
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("blob %s: %w %v", id, ErrUnknownMode, v)
		}
		mode = Mode(s)
		return nil
	})
	return mode, err
}

// writeBlobFile writes data to a temp file and renames it into place.
func (db *DB) writeBlobFile(id string, data []byte) error {
	dir := filepath.Join(db.root, blobDirName)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := f.Name()
	if _, err := f.Write(data); err != nil {
		return errors.Join(fmt.Errorf("failed to write blob %s: %w", id, err), f.Close(), os.Remove(tmpPath))
	}
	if err := f.Close(); err != nil {
		return errors.Join(fmt.Errorf("failed to close temp file: %w", err), os.Remove(tmpPath))
	}
	if err := os.Rename(tmpPath, db.blobPath(id)); err != nil {
		return errors.Join(fmt.Errorf("failed to rename blob to final location: %w", err), os.Remove(tmpPath))
	}
	return nil
}
