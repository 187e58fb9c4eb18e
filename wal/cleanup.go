package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Cleanup removes journal files older than the retention period
func Cleanup(dir string, config Config) error {
	_, err := CleanupWithStats(dir, config)
	return err
}

// CleanupStats tracks cleanup operation results
type CleanupStats struct {
	FilesRemoved  int
	BytesFreed    int64
	OldestRemoved time.Time
	NewestRemoved time.Time
}

// CleanupWithStats removes expired journal files and returns statistics
func CleanupWithStats(dir string, config Config) (CleanupStats, error) {
	return cleanupExcluding(dir, config, "")
}

// Cleanup removes expired journal files, skipping the file currently
// being written. A long-lived daemon can call this on a timer without
// pulling its own file out from under it.
func (w *WAL) Cleanup() (CleanupStats, error) {
	w.mu.Lock()
	current := w.file.Name()
	w.mu.Unlock()
	return cleanupExcluding(w.dir, w.config, current)
}

func cleanupExcluding(dir string, config Config, exclude string) (CleanupStats, error) {
	stats := CleanupStats{}
	if config.RetentionDays <= 0 {
		return stats, nil
	}

	cutoff := time.Now().AddDate(0, 0, -config.RetentionDays)
	files := expiredFiles(dir, config.FilePrefix, cutoff, exclude)
	if len(files) == 0 {
		return stats, nil
	}

	stats.FilesRemoved = len(files)
	stats.BytesFreed = totalSize(files)
	stats.OldestRemoved, stats.NewestRemoved = modTimeRange(files)

	err := removeFiles(files)
	return stats, err
}

// expiredFiles returns journal files older than cutoff
func expiredFiles(dir, prefix string, cutoff time.Time, exclude string) []string {
	pattern := filepath.Join(dir, prefix+"-*.wal")
	all, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}

	var expired []string
	for _, file := range all {
		if file == exclude {
			continue
		}
		if isOlderThan(file, cutoff) {
			expired = append(expired, file)
		}
	}
	return expired
}

// isOlderThan checks if file modification time is before cutoff
func isOlderThan(path string, cutoff time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

// removeFiles deletes all files in the list
func removeFiles(files []string) error {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			return fmt.Errorf("failed to remove %s: %w", file, err)
		}
	}
	return nil
}

// totalSize sums file sizes
func totalSize(files []string) int64 {
	var total int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err == nil {
			total += info.Size()
		}
	}
	return total
}

// modTimeRange returns oldest and newest file modification times
func modTimeRange(files []string) (oldest, newest time.Time) {
	for i, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		modTime := info.ModTime()
		if i == 0 {
			oldest = modTime
			newest = modTime
			continue
		}

		if modTime.Before(oldest) {
			oldest = modTime
		}
		if modTime.After(newest) {
			newest = modTime
		}
	}

	return oldest, newest
}
