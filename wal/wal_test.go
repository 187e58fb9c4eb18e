package wal

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestWALBasicOperations(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	// One full operation: observed through executed
	observation := map[string]string{"name": "web-0", "state": "running"}
	if err := w.Append(EntryObserved, "op-1", "web-0", observation); err != nil {
		t.Fatalf("Failed to append observed entry: %v", err)
	}

	decision := map[string]string{"action": "create"}
	if err := w.Append(EntryDecided, "op-1", "web-0", decision); err != nil {
		t.Fatalf("Failed to append decided entry: %v", err)
	}

	if err := w.Append(EntryExecuting, "op-1", "web-0", decision); err != nil {
		t.Fatalf("Failed to append executing entry: %v", err)
	}

	result := map[string]string{"instance_id": "i-12345"}
	if err := w.Append(EntryExecuted, "op-1", "web-0", result); err != nil {
		t.Fatalf("Failed to append executed entry: %v", err)
	}
}

func TestWALAppendError(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	cause := errors.New("InsufficientInstanceCapacity")
	if err := w.AppendError(EntryFailed, "op-1", "web-0", nil, cause); err != nil {
		t.Fatalf("Failed to append error entry: %v", err)
	}

	files := w.listWALFiles()
	if len(files) != 1 {
		t.Fatalf("Expected 1 journal file, got %d", len(files))
	}

	reader, err := NewReader(files[0])
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer func() { _ = reader.Close() }()

	entry, err := reader.Next()
	if err != nil {
		t.Fatalf("Failed to read entry: %v", err)
	}

	if entry.Type != EntryFailed {
		t.Errorf("Expected type %s, got %s", EntryFailed, entry.Type)
	}
	if entry.Error != "InsufficientInstanceCapacity" {
		t.Errorf("Expected error message stored, got %q", entry.Error)
	}
}

func TestWALSequenceNumbers(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 5; i++ {
		if err := w.Append(EntryObserved, "op-1", "web-0", nil); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	files := w.listWALFiles()
	reader, err := NewReader(files[0])
	if err != nil {
		t.Fatalf("Failed to open reader: %v", err)
	}
	defer func() { _ = reader.Close() }()

	// Sequences count up from 1 with no gaps
	for want := int64(1); want <= 5; want++ {
		entry, err := reader.Next()
		if err != nil {
			t.Fatalf("Failed to read entry %d: %v", want, err)
		}
		if entry.Sequence != want {
			t.Errorf("Expected sequence %d, got %d", want, entry.Sequence)
		}
	}
}

func TestWALOpIDPersists(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	if err := w.Append(EntryObserved, "4f2c9a", "db-1", nil); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}

	var entries []*Entry
	err = Replay(dir, DefaultConfig(), time.Time{}, func(e *Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].OpID != "4f2c9a" {
		t.Errorf("Expected op id 4f2c9a, got %q", entries[0].OpID)
	}
	if entries[0].ResourceID != "db-1" {
		t.Errorf("Expected resource id db-1, got %q", entries[0].ResourceID)
	}
}

func TestWALReplay(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	_ = w.Append(EntryObserved, "op-1", "web-0", nil)
	_ = w.Append(EntryDecided, "op-1", "web-0", nil)

	cutoff := time.Now()
	time.Sleep(10 * time.Millisecond)

	_ = w.Append(EntryExecuting, "op-2", "web-1", nil)
	_ = w.Append(EntryExecuted, "op-2", "web-1", nil)

	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}

	// Only entries after the cutoff should replay
	var replayed []*Entry
	err = Replay(dir, DefaultConfig(), cutoff, func(e *Entry) error {
		replayed = append(replayed, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if len(replayed) != 2 {
		t.Fatalf("Expected 2 entries after cutoff, got %d", len(replayed))
	}
	if replayed[0].Type != EntryExecuting {
		t.Errorf("Expected first replayed entry executing, got %s", replayed[0].Type)
	}
	if replayed[1].OpID != "op-2" {
		t.Errorf("Expected op-2, got %q", replayed[1].OpID)
	}
}

func TestWALReplayHandlerError(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	_ = w.Append(EntryObserved, "op-1", "web-0", nil)
	_ = w.Close()

	wantErr := errors.New("stop")
	err = Replay(dir, DefaultConfig(), time.Time{}, func(e *Entry) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Expected handler error to propagate, got %v", err)
	}
}

func TestWALDataIntegrity(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	original := map[string]interface{}{
		"name":  "api-web-01",
		"image": "ami-0abcdef",
		"tags":  map[string]interface{}{"team": "platform", "note": "quotes \" and newlines\nsurvive"},
	}
	if err := w.Append(EntryObserved, "op-1", "api-web-01", original); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}

	var got map[string]interface{}
	err = Replay(dir, DefaultConfig(), time.Time{}, func(e *Entry) error {
		return json.Unmarshal(e.Data, &got)
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if got["name"] != "api-web-01" {
		t.Errorf("Expected name api-web-01, got %v", got["name"])
	}
	tags, ok := got["tags"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected nested tags map, got %T", got["tags"])
	}
	if tags["note"] != "quotes \" and newlines\nsurvive" {
		t.Errorf("Special characters corrupted: %q", tags["note"])
	}
}

func TestWALDefaultsOnZeroConfig(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, Config{})
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Append(EntryObserved, "op-1", "web-0", nil); err != nil {
		t.Fatalf("Failed to append entry: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "skiff-*.wal"))
	if len(files) != 1 {
		t.Errorf("Expected default file prefix to apply, found %d skiff files", len(files))
	}
}
