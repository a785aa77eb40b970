package history

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Brownie44l1/fruit-classifier/internal/logger"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileStore, err := NewFileStore(filepath.Join(dir, "json", "history.json"), logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	sqliteStore, err := NewSQLiteStore(filepath.Join(dir, "sqlite", "history.db"), logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStore_AppendThenLoadAll(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if got := store.LoadAll(); len(got) != 0 {
				t.Fatalf("Expected empty history, got %d records", len(got))
			}

			base := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
			labels := []string{"apple", "banana", "orange", "apple"}
			for i, label := range labels {
				before := store.LoadAll()
				rec := NewRecord(base.Add(time.Duration(i)*time.Minute), label, 0.5+float32(i)*0.1)

				if err := store.Append(rec); err != nil {
					t.Fatalf("Append failed: %v", err)
				}

				after := store.LoadAll()
				if len(after) != len(before)+1 {
					t.Fatalf("Expected length %d, got %d", len(before)+1, len(after))
				}
				if !reflect.DeepEqual(after[len(after)-1], rec) {
					t.Errorf("Expected last record %+v, got %+v", rec, after[len(after)-1])
				}
			}

			all := store.LoadAll()
			for i, label := range labels {
				if all[i].ClassLabel != label {
					t.Errorf("Record %d: expected %s, got %s (insertion order lost)", i, label, all[i].ClassLabel)
				}
			}
		})
	}
}

func TestFileStore_FailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{"missing", nil},
		{"empty", strPtr("")},
		{"corrupt", strPtr("{not json")},
		{"wrong shape", strPtr(`{"class_label": "apple"}`)},
		{"null", strPtr("null")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "history.json")
			if tt.content != nil {
				if err := os.WriteFile(path, []byte(*tt.content), 0644); err != nil {
					t.Fatalf("Failed to write history: %v", err)
				}
			}

			store, err := NewFileStore(path, logger.Discard())
			if err != nil {
				t.Fatalf("Failed to create store: %v", err)
			}

			records := store.LoadAll()
			if records == nil || len(records) != 0 {
				t.Fatalf("Expected empty non-nil history, got %#v", records)
			}

			rec := NewRecord(time.Now(), "banana", 0.9)
			if err := store.Append(rec); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if got := store.LoadAll(); len(got) != 1 || got[0] != rec {
				t.Errorf("Expected history to recover with one record, got %+v", got)
			}
		})
	}
}

func TestSQLiteStore_FailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"not a database", bytes.Repeat([]byte("definitely not sqlite "), 200)},
		{"json history", bytes.Repeat([]byte(`{"id": "1", "class_label": "apple"},`), 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "history.db")
			if err := os.WriteFile(path, tt.content, 0644); err != nil {
				t.Fatalf("Failed to write database: %v", err)
			}

			store, err := NewSQLiteStore(path, logger.Discard())
			if err != nil {
				t.Fatalf("Expected corrupt store to be replaced, got: %v", err)
			}
			defer store.Close()

			records := store.LoadAll()
			if records == nil || len(records) != 0 {
				t.Fatalf("Expected empty non-nil history, got %#v", records)
			}

			aside, _ := filepath.Glob(filepath.Join(dir, "history.db.corrupt-*"))
			if len(aside) != 1 {
				t.Errorf("Expected the corrupt file to be kept aside, found %v", aside)
			}

			rec := NewRecord(time.Now(), "orange", 0.75)
			if err := store.Append(rec); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if got := store.LoadAll(); len(got) != 1 || got[0] != rec {
				t.Errorf("Expected history to recover with one record, got %+v", got)
			}
		})
	}
}

func TestSQLiteStore_UnreadableReadsEmpty(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := store.Append(NewRecord(time.Now(), "apple", 0.9)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	store.Close()

	records := store.LoadAll()
	if records == nil || len(records) != 0 {
		t.Errorf("Expected empty history from a closed database, got %#v", records)
	}
}

func TestFileStore_DirectoryAsPath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if got := store.LoadAll(); len(got) != 0 {
		t.Errorf("Expected empty history for unreadable store, got %d", len(got))
	}
}

func TestFileStore_PersistsJSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	store, err := NewFileStore(path, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	rec := NewRecord(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), "orange", 0.42)
	if err := store.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reopened, err := NewFileStore(path, logger.Discard())
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	got := reopened.LoadAll()
	if len(got) != 1 || got[0] != rec {
		t.Fatalf("Expected round trip of %+v, got %+v", rec, got)
	}
	if got[0].Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("Unexpected timestamp format %s", got[0].Timestamp)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("Expected no leftover temp files, got %v", matches)
	}
}

func TestAggregate(t *testing.T) {
	if _, ok := Aggregate(nil); ok {
		t.Error("Expected no stats for empty history")
	}

	records := []Record{
		{ClassLabel: "apple", Confidence: 0.8},
		{ClassLabel: "banana", Confidence: 0.6},
	}
	stats, ok := Aggregate(records)
	if !ok {
		t.Fatal("Expected stats for non-empty history")
	}
	if stats.Count != 2 {
		t.Errorf("Expected count 2, got %d", stats.Count)
	}
	if math.Abs(stats.AverageConfidence-0.7) > 1e-6 {
		t.Errorf("Expected average 0.7, got %v", stats.AverageConfidence)
	}
	if stats.ByLabel["apple"] != 1 || stats.ByLabel["banana"] != 1 {
		t.Errorf("Unexpected label counts %v", stats.ByLabel)
	}
}

func TestNewRecord(t *testing.T) {
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	rec := NewRecord(at, "apple", 0.7)

	if rec.ID == "" {
		t.Error("Expected record ID")
	}
	if rec.Timestamp != "2026-10-19T07:30:00Z" {
		t.Errorf("Expected UTC timestamp, got %s", rec.Timestamp)
	}
	if other := NewRecord(at, "apple", 0.7); other.ID == rec.ID {
		t.Error("Expected unique record IDs")
	}
}

func strPtr(s string) *string { return &s }
