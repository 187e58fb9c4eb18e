package wal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCleanup_NoFiles(t *testing.T) {
	dir := t.TempDir()

	err := Cleanup(dir, DefaultConfig())
	if err != nil {
		t.Errorf("Cleanup failed on empty directory: %v", err)
	}
}

func TestCleanup_AllFilesNew(t *testing.T) {
	dir := t.TempDir()

	w, _ := Open(dir, DefaultConfig())
	_ = w.Append(EntryObserved, "op-1", "web-0", nil)
	_ = w.Close()

	config := DefaultConfig()
	config.RetentionDays = 30

	err := Cleanup(dir, config)
	if err != nil {
		t.Errorf("Cleanup failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "skiff-*.wal"))
	if len(files) != 1 {
		t.Errorf("Expected 1 file to remain, got %d", len(files))
	}
}

func TestCleanup_OldFilesRemoved(t *testing.T) {
	dir := t.TempDir()

	testFile := filepath.Join(dir, "skiff-20200101-120000.000000000.wal")
	f, _ := os.Create(testFile)
	_ = f.Close()

	// Age the file past retention
	oldTime := time.Now().AddDate(0, 0, -60)
	_ = os.Chtimes(testFile, oldTime, oldTime)

	config := DefaultConfig()
	config.RetentionDays = 30

	err := Cleanup(dir, config)
	if err != nil {
		t.Errorf("Cleanup failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "skiff-*.wal"))
	if len(files) != 0 {
		t.Errorf("Expected 0 files after cleanup, got %d", len(files))
	}
}

func TestCleanup_MixedAges(t *testing.T) {
	dir := t.TempDir()

	oldFile := filepath.Join(dir, "skiff-20200101-120000.000000000.wal")
	f1, _ := os.Create(oldFile)
	_ = f1.Close()
	oldTime := time.Now().AddDate(0, 0, -60)
	_ = os.Chtimes(oldFile, oldTime, oldTime)

	recentFile := filepath.Join(dir, "skiff-20240101-120000.000000000.wal")
	f2, _ := os.Create(recentFile)
	_ = f2.Close()
	recentTime := time.Now().AddDate(0, 0, -10)
	_ = os.Chtimes(recentFile, recentTime, recentTime)

	config := DefaultConfig()
	config.RetentionDays = 30

	err := Cleanup(dir, config)
	if err != nil {
		t.Errorf("Cleanup failed: %v", err)
	}

	if _, err := os.Stat(recentFile); os.IsNotExist(err) {
		t.Error("Recent file was incorrectly removed")
	}
	if _, err := os.Stat(oldFile); !os.IsNotExist(err) {
		t.Error("Old file was not removed")
	}
}

func TestCleanupWithStats_EmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	stats, err := CleanupWithStats(dir, DefaultConfig())
	if err != nil {
		t.Errorf("CleanupWithStats failed: %v", err)
	}

	if stats.FilesRemoved != 0 {
		t.Errorf("Expected 0 files removed, got %d", stats.FilesRemoved)
	}
	if stats.BytesFreed != 0 {
		t.Errorf("Expected 0 bytes freed, got %d", stats.BytesFreed)
	}
}

func TestCleanupWithStats_ReportsCorrectly(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 3; i++ {
		filename := filepath.Join(dir, "skiff-2020010"+string(rune('1'+i))+"-120000.000000000.wal")
		_ = os.WriteFile(filename, []byte("test data"), 0600)
		oldTime := time.Now().AddDate(0, 0, -60)
		_ = os.Chtimes(filename, oldTime, oldTime)
	}

	config := DefaultConfig()
	config.RetentionDays = 30

	stats, err := CleanupWithStats(dir, config)
	if err != nil {
		t.Errorf("CleanupWithStats failed: %v", err)
	}

	if stats.FilesRemoved != 3 {
		t.Errorf("Expected 3 files removed, got %d", stats.FilesRemoved)
	}
	if stats.BytesFreed == 0 {
		t.Error("Expected bytes freed > 0")
	}
	if stats.OldestRemoved.IsZero() {
		t.Error("Expected oldest removed time to be set")
	}
}

func TestCleanup_ActiveFileProtected(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.RetentionDays = 30

	w, err := Open(dir, config)
	if err != nil {
		t.Fatalf("Failed to open journal: %v", err)
	}
	defer func() { _ = w.Close() }()

	_ = w.Append(EntryObserved, "op-1", "web-0", nil)

	// Age the active file past retention
	current := w.file.Name()
	oldTime := time.Now().AddDate(0, 0, -60)
	_ = os.Chtimes(current, oldTime, oldTime)

	stats, err := w.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}

	if stats.FilesRemoved != 0 {
		t.Errorf("Expected active file to be skipped, removed %d", stats.FilesRemoved)
	}
	if _, err := os.Stat(current); os.IsNotExist(err) {
		t.Error("Active file was removed out from under the writer")
	}
}

func TestCleanup_ZeroRetentionDisabled(t *testing.T) {
	dir := t.TempDir()

	w, _ := Open(dir, DefaultConfig())
	_ = w.Append(EntryObserved, "op-1", "web-0", nil)
	_ = w.Close()

	// Zero retention means keep everything
	config := DefaultConfig()
	config.RetentionDays = 0

	err := Cleanup(dir, config)
	if err != nil {
		t.Errorf("Cleanup failed: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "skiff-*.wal"))
	if len(files) != 1 {
		t.Errorf("Expected files kept with zero retention, got %d", len(files))
	}
}

func TestIsOlderThan(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.wal")

	_ = os.WriteFile(file, []byte("test"), 0600)

	oldTime := time.Now().AddDate(0, 0, -10)
	_ = os.Chtimes(file, oldTime, oldTime)

	fiveDaysAgo := time.Now().AddDate(0, 0, -5)
	if !isOlderThan(file, fiveDaysAgo) {
		t.Error("File should be older than 5 days ago")
	}

	twentyDaysAgo := time.Now().AddDate(0, 0, -20)
	if isOlderThan(file, twentyDaysAgo) {
		t.Error("File should not be older than 20 days ago")
	}
}
