package jsonldb

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBlobStore(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		db := setupDB(t)
		ctx := t.Context()

		t.Run("string", func(t *testing.T) {
			id, err := db.WriteBlob(ctx, TextPayload("hello"))
			if err != nil {
				t.Fatalf("WriteBlob() error = %v", err)
			}
			p, err := db.ReadBlob(ctx, id, "")
			if err != nil {
				t.Fatalf("ReadBlob() error = %v", err)
			}
			if got, ok := p.Text(); !ok || got != "hello" {
				t.Errorf("Text() = %q, %v, want %q", got, ok, "hello")
			}
		})

		t.Run("bytes", func(t *testing.T) {
			want := []byte{0x00, 0x01}
			id, err := db.WriteBlob(ctx, BytesPayload(want))
			if err != nil {
				t.Fatalf("WriteBlob() error = %v", err)
			}
			p, err := db.ReadBlob(ctx, id, "")
			if err != nil {
				t.Fatalf("ReadBlob() error = %v", err)
			}
			if got, ok := p.Bytes(); !ok || !bytes.Equal(got, want) {
				t.Errorf("Bytes() = %v, %v, want %v", got, ok, want)
			}
		})

		t.Run("object", func(t *testing.T) {
			in, err := ObjectPayload(map[string]int{"a": 1})
			if err != nil {
				t.Fatal(err)
			}
			id, err := db.WriteBlob(ctx, in)
			if err != nil {
				t.Fatalf("WriteBlob() error = %v", err)
			}
			p, err := db.ReadBlob(ctx, id, "")
			if err != nil {
				t.Fatalf("ReadBlob() error = %v", err)
			}
			got, err := p.Object()
			if err != nil {
				t.Fatalf("Object() error = %v", err)
			}
			if want := map[string]any{"a": float64(1)}; !reflect.DeepEqual(got, want) {
				t.Errorf("Object() = %v, want %v", got, want)
			}
			var typed map[string]int
			if err := p.Decode(&typed); err != nil || typed["a"] != 1 {
				t.Errorf("Decode() = %v, %v", typed, err)
			}
		})
	})

	t.Run("identifiers are random", func(t *testing.T) {
		db := setupDB(t)
		id1, err := db.WriteBlob(t.Context(), TextPayload("same"))
		if err != nil {
			t.Fatal(err)
		}
		id2, err := db.WriteBlob(t.Context(), TextPayload("same"))
		if err != nil {
			t.Fatal(err)
		}
		if id1 == id2 {
			t.Errorf("identical payloads got the same id %q", id1)
		}
		if len(id1) != 32 {
			t.Errorf("len(id) = %d, want 32", len(id1))
		}
	})

	t.Run("index records mode", func(t *testing.T) {
		db := setupDB(t)
		id, err := db.WriteBlob(t.Context(), BytesPayload([]byte("raw")))
		if err != nil {
			t.Fatal(err)
		}
		_ = db.View(t.Context(), BlobIndexKey, func(d Document) error {
			if d[id] != string(ModeBytes) {
				t.Errorf("index[%s] = %v, want %q", id, d[id], ModeBytes)
			}
			return nil
		})
	})

	t.Run("explicit mode skips index", func(t *testing.T) {
		db := setupDB(t)
		id, err := db.WriteBlob(t.Context(), TextPayload("abc"))
		if err != nil {
			t.Fatal(err)
		}
		p, err := db.ReadBlob(t.Context(), id, ModeBytes)
		if err != nil {
			t.Fatalf("ReadBlob() error = %v", err)
		}
		if got, ok := p.Bytes(); !ok || string(got) != "abc" {
			t.Errorf("Bytes() = %q, %v", got, ok)
		}
	})

	t.Run("errors", func(t *testing.T) {
		db := setupDB(t)
		ctx := t.Context()
		id, err := db.WriteBlob(ctx, TextPayload("doomed"))
		if err != nil {
			t.Fatal(err)
		}
		textID, err := db.WriteBlob(ctx, TextPayload("plain words"))
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Remove(db.blobPath(id)); err != nil {
			t.Fatal(err)
		}
		if err := db.Update(ctx, BlobIndexKey, func(d Document) error {
			d["badmode"] = "pickle"
			d["notastring"] = 3
			return nil
		}); err != nil {
			t.Fatal(err)
		}

		tests := []struct {
			name    string
			id      string
			mode    Mode
			wantErr error
		}{
			{"unknown id", "0123456789abcdef0123456789abcdef", "", ErrBlobNotFound},
			{"unknown id explicit mode", "0123456789abcdef0123456789abcdef", ModeString, ErrBlobNotFound},
			{"missing payload", id, "", ErrBlobMissing},
			{"unknown indexed mode", "badmode", "", ErrUnknownMode},
			{"non string mode", "notastring", "", ErrUnknownMode},
			{"unknown explicit mode", id, Mode("pickle"), ErrUnknownMode},
			{"unknown explicit mode is invalid", id, Mode("pickle"), ErrInvalidMode},
			{"text read as object", textID, ModeObject, ErrModeMismatch},
			{"invalid id", "../store/blobs", "", ErrInvalidKey},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := db.ReadBlob(ctx, tt.id, tt.mode)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ReadBlob() error = %v, want %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("zero payload is rejected", func(t *testing.T) {
		db := setupDB(t)
		if _, err := db.WriteBlob(t.Context(), Payload{}); !errors.Is(err, ErrUnknownMode) {
			t.Errorf("WriteBlob() error = %v, want %v", err, ErrUnknownMode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		m := NewMetrics()
		db, err := Open(t.TempDir(), &Options{Metrics: m})
		if err != nil {
			t.Fatal(err)
		}
		id, err := db.WriteBlob(t.Context(), TextPayload("x"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db.ReadBlob(t.Context(), id, ""); err != nil {
			t.Fatal(err)
		}
		if got := testutil.ToFloat64(m.blobsWritten.WithLabelValues(string(ModeString))); got != 1 {
			t.Errorf("blobs written = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.blobsRead.WithLabelValues(string(ModeString))); got != 1 {
			t.Errorf("blobs read = %v, want 1", got)
		}
		if got := testutil.ToFloat64(m.commits.WithLabelValues(kindStore)); got != 1 {
			t.Errorf("store commits = %v, want 1", got)
		}
	})
}

func TestPayload(t *testing.T) {
	tests := []struct {
		name     string
		p        Payload
		wantMode Mode
		isText   bool
		isBytes  bool
	}{
		{"text", TextPayload("a"), ModeString, true, false},
		{"bytes", BytesPayload([]byte("a")), ModeBytes, false, true},
		{"zero", Payload{}, "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Mode(); got != tt.wantMode {
				t.Errorf("Mode() = %q, want %q", got, tt.wantMode)
			}
			if _, ok := tt.p.Text(); ok != tt.isText {
				t.Errorf("Text() ok = %v, want %v", ok, tt.isText)
			}
			if _, ok := tt.p.Bytes(); ok != tt.isBytes {
				t.Errorf("Bytes() ok = %v, want %v", ok, tt.isBytes)
			}
			if _, err := tt.p.Object(); err == nil {
				t.Error("Object() succeeded on a non-object payload")
			}
		})
	}

	t.Run("bytes are copied", func(t *testing.T) {
		b := []byte("abc")
		p := BytesPayload(b)
		b[0] = 'z'
		if got, _ := p.Bytes(); string(got) != "abc" {
			t.Errorf("Bytes() = %q, want %q", got, "abc")
		}
	})

	t.Run("object encode failure", func(t *testing.T) {
		if _, err := ObjectPayload(func() {}); err == nil {
			t.Error("ObjectPayload(func) succeeded")
		}
	})
}
