package wal

import (
	"io"
	"testing"
	"time"
)

func TestRotation_SizeLimit(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 500 // Small cap to force rotation

	w, err := Open(dir, config)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 20; i++ {
		if err := w.Append(EntryObserved, "op-1", "web-0", "some padding data"); err != nil {
			t.Fatalf("Failed to append entry %d: %v", i, err)
		}
	}

	files := w.listWALFiles()
	if len(files) < 2 {
		t.Errorf("Expected rotation to produce multiple files, got %d", len(files))
	}
}

func TestRotation_SequenceContinuity(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 500

	w, err := Open(dir, config)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 20; i++ {
		_ = w.Append(EntryObserved, "op-1", "web-0", "some padding data")
	}

	// Sequence keeps counting across file boundaries
	if w.sequence != 20 {
		t.Errorf("Expected sequence 20, got %d", w.sequence)
	}

	count := 0
	seen := make(map[int64]bool)
	for _, file := range w.listWALFiles() {
		reader, err := NewReader(file)
		if err != nil {
			t.Fatalf("Failed to open reader: %v", err)
		}
		for {
			entry, err := reader.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("Failed to read entry: %v", err)
			}
			if seen[entry.Sequence] {
				t.Errorf("Duplicate sequence %d across files", entry.Sequence)
			}
			seen[entry.Sequence] = true
			count++
		}
		_ = reader.Close()
	}

	if count != 20 {
		t.Errorf("Expected 20 entries across all files, got %d", count)
	}
}

func TestRotation_NotTriggeredUnderLimit(t *testing.T) {
	dir := t.TempDir()

	w, err := Open(dir, DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	for i := 0; i < 50; i++ {
		_ = w.Append(EntryObserved, "op-1", "web-0", nil)
	}

	files := w.listWALFiles()
	if len(files) != 1 {
		t.Errorf("Expected 1 file under the default size cap, got %d", len(files))
	}
}

func TestRotation_ReplaySpansFiles(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.MaxFileSize = 500

	w, err := Open(dir, config)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}

	for i := 0; i < 12; i++ {
		_ = w.Append(EntryExecuted, "op-1", "web-0", "some padding data")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close journal: %v", err)
	}

	count := 0
	err = Replay(dir, config, time.Time{}, func(e *Entry) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	if count != 12 {
		t.Errorf("Expected 12 entries replayed across rotated files, got %d", count)
	}
}
