package jsonldb

import (
	"encoding/json"
	"errors"
	"os"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
)

type testRecord struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

// readLog collects all records of key, failing the test on error.
func readLog(t *testing.T, db *DB, key string) []string {
	t.Helper()
	var out []string
	for raw, err := range db.IterateLog(key) {
		if err != nil {
			t.Fatalf("IterateLog() error = %v", err)
		}
		out = append(out, string(raw))
	}
	return out
}

func TestLog(t *testing.T) {
	t.Run("append order", func(t *testing.T) {
		db := setupDB(t)
		err := db.WithLog(t.Context(), "events", func(s *LogSession) error {
			for _, r := range []string{"A", "B", "C"} {
				if err := s.Append(r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("WithLog() error = %v", err)
		}
		want := []string{`"A"`, `"B"`, `"C"`}
		if got := readLog(t, db, "events"); !slices.Equal(got, want) {
			t.Errorf("records = %v, want %v", got, want)
		}
	})

	t.Run("buffered until close", func(t *testing.T) {
		db := setupDB(t)
		s, err := db.OpenLog("events")
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Append(testRecord{Name: "a", N: 1}); err != nil {
			t.Fatal(err)
		}
		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
		if got := readLog(t, db, "events"); len(got) != 0 {
			t.Errorf("records visible before Close: %v", got)
		}
		// Buffering takes no lock.
		if !db.Locks().Lock(NamespaceLog, "events").TryAcquire() {
			t.Fatal("lock held by an open log session")
		}
		db.Locks().Lock(NamespaceLog, "events").Release()
		if err := s.Close(t.Context()); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if got := readLog(t, db, "events"); len(got) != 1 {
			t.Errorf("records after Close = %v, want 1 record", got)
		}
		if err := s.Append("late"); !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Append() after Close error = %v, want %v", err, ErrSessionClosed)
		}
	})

	t.Run("record is snapshotted", func(t *testing.T) {
		db := setupDB(t)
		rec := map[string]any{"v": 1}
		err := db.WithLog(t.Context(), "events", func(s *LogSession) error {
			if err := s.Append(rec); err != nil {
				return err
			}
			rec["v"] = 2
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if got := readLog(t, db, "events"); !slices.Equal(got, []string{`{"v":1}`}) {
			t.Errorf("records = %v", got)
		}
	})

	t.Run("error discards buffer", func(t *testing.T) {
		db := setupDB(t)
		errBoom := errors.New("boom")
		err := db.WithLog(t.Context(), "events", func(s *LogSession) error {
			_ = s.Append("A")
			return errBoom
		})
		if !errors.Is(err, errBoom) {
			t.Fatalf("WithLog() error = %v, want %v", err, errBoom)
		}
		if _, err := os.Stat(db.logPath("events")); !os.IsNotExist(err) {
			t.Errorf("discarded session created a file: %v", err)
		}
	})

	t.Run("panic discards buffer", func(t *testing.T) {
		db := setupDB(t)
		func() {
			defer func() { _ = recover() }()
			_ = db.WithLog(t.Context(), "events", func(s *LogSession) error {
				_ = s.Append("A")
				panic("boom")
			})
		}()
		if got := readLog(t, db, "events"); len(got) != 0 {
			t.Errorf("records = %v, want none", got)
		}
	})

	t.Run("sessions do not interleave", func(t *testing.T) {
		db := setupDB(t)
		if err := db.Append(t.Context(), "events", testRecord{Name: "first", N: 1}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if err := db.Append(t.Context(), "events", testRecord{Name: "second", N: 2}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		raw, err := os.ReadFile(db.logPath("events"))
		if err != nil {
			t.Fatal(err)
		}
		want := "{\"name\":\"first\",\"n\":1}\n{\"name\":\"second\",\"n\":2}\n"
		if string(raw) != want {
			t.Errorf("file = %q, want %q", raw, want)
		}
	})

	t.Run("concurrent sessions", func(t *testing.T) {
		db := setupDB(t)
		const writers, perWriter = 10, 20
		var wg sync.WaitGroup
		for w := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := db.WithLog(t.Context(), "events", func(s *LogSession) error {
					for i := range perWriter {
						if err := s.Append(testRecord{Name: strings.Repeat("x", w+1), N: i}); err != nil {
							return err
						}
					}
					return nil
				})
				if err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
		var got []testRecord
		for r, err := range IterateLogAs[testRecord](db, "events") {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, r)
		}
		if len(got) != writers*perWriter {
			t.Fatalf("got %d records, want %d", len(got), writers*perWriter)
		}
		// Each session's records are contiguous and in order.
		for i := 0; i < len(got); i += perWriter {
			for j := range perWriter {
				r := got[i+j]
				if r.Name != got[i].Name || r.N != j {
					t.Fatalf("record %d = %+v, interleaved with another session", i+j, r)
				}
			}
		}
	})

	t.Run("empty session writes nothing", func(t *testing.T) {
		db := setupDB(t)
		s, err := db.OpenLog("events")
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Close(t.Context()); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
		if _, err := os.Stat(db.logPath("events")); !os.IsNotExist(err) {
			t.Errorf("empty session created a file: %v", err)
		}
	})

	t.Run("unmarshalable record", func(t *testing.T) {
		db := setupDB(t)
		s, err := db.OpenLog("events")
		if err != nil {
			t.Fatal(err)
		}
		defer s.Discard()
		if err := s.Append(make(chan int)); err == nil {
			t.Error("Append(chan) succeeded")
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
	})
}

func TestIterateLog(t *testing.T) {
	t.Run("missing log is empty", func(t *testing.T) {
		db := setupDB(t)
		if got := readLog(t, db, "none"); len(got) != 0 {
			t.Errorf("records = %v, want none", got)
		}
	})

	t.Run("restartable", func(t *testing.T) {
		db := setupDB(t)
		if err := db.Append(t.Context(), "events", 1); err != nil {
			t.Fatal(err)
		}
		seq := db.IterateLog("events")
		first := 0
		for range seq {
			first++
		}
		if err := db.Append(t.Context(), "events", 2); err != nil {
			t.Fatal(err)
		}
		second := 0
		for range seq {
			second++
		}
		if first != 1 || second != 2 {
			t.Errorf("first = %d, second = %d, want 1 and 2", first, second)
		}
	})

	t.Run("early break", func(t *testing.T) {
		db := setupDB(t)
		for i := range 5 {
			if err := db.Append(t.Context(), "events", i); err != nil {
				t.Fatal(err)
			}
		}
		n := 0
		for range db.IterateLog("events") {
			n++
			if n == 2 {
				break
			}
		}
		if n != 2 {
			t.Errorf("n = %d, want 2", n)
		}
	})

	t.Run("partial trailing line is skipped", func(t *testing.T) {
		db := setupDB(t)
		content := "{\"n\":1}\n\n{\"n\":2}\n{\"n\":"
		if err := os.WriteFile(db.logPath("events"), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		want := []string{`{"n":1}`, `{"n":2}`}
		if got := readLog(t, db, "events"); !slices.Equal(got, want) {
			t.Errorf("records = %v, want %v", got, want)
		}
	})

	t.Run("invalid line is an error", func(t *testing.T) {
		db := setupDB(t)
		if err := os.WriteFile(db.logPath("events"), []byte("{\"n\":1}\nnope\n{\"n\":3}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		var got []json.RawMessage
		var gotErr error
		for raw, err := range db.IterateLog("events") {
			if err != nil {
				gotErr = err
				continue
			}
			got = append(got, raw)
		}
		if gotErr == nil {
			t.Error("IterateLog() yielded no error")
		}
		if !reflect.DeepEqual(got, []json.RawMessage{json.RawMessage(`{"n":1}`)}) {
			t.Errorf("records before error = %s", got)
		}
	})

	t.Run("typed", func(t *testing.T) {
		db := setupDB(t)
		want := []testRecord{{Name: "a", N: 1}, {Name: "b", N: 2}}
		err := db.WithLog(t.Context(), "events", func(s *LogSession) error {
			for _, r := range want {
				if err := s.Append(r); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		var got []testRecord
		for r, err := range IterateLogAs[testRecord](db, "events") {
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, r)
		}
		if !slices.Equal(got, want) {
			t.Errorf("records = %+v, want %+v", got, want)
		}
	})

	t.Run("same key as a document", func(t *testing.T) {
		db := setupDB(t)
		if err := db.Update(t.Context(), "shared", func(d Document) error {
			d["doc"] = true
			return nil
		}); err != nil {
			t.Fatal(err)
		}
		if err := db.Append(t.Context(), "shared", "log"); err != nil {
			t.Fatal(err)
		}
		if got := readLog(t, db, "shared"); !slices.Equal(got, []string{`"log"`}) {
			t.Errorf("records = %v", got)
		}
	})
}
