package wal

import (
	"path/filepath"
	"time"
)

// Stats summarizes the journal on disk
type Stats struct {
	TotalFiles      int
	TotalSizeBytes  int64
	OldestFile      time.Time
	NewestFile      time.Time
	CurrentFileSize int64

	FirstSequence int64
	LastSequence  int64
	SequenceCount int64
}

// Stats returns current journal statistics
func (w *WAL) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := statsForFiles(w.listWALFiles())
	stats.LastSequence = w.sequence
	stats.CurrentFileSize = w.currentFileSize()
	if stats.LastSequence >= stats.FirstSequence && stats.FirstSequence > 0 {
		stats.SequenceCount = stats.LastSequence - stats.FirstSequence + 1
	}
	return stats
}

// StatsFromDir summarizes a journal directory without opening it for
// writing. Used for offline inspection.
func StatsFromDir(dir string, config Config) Stats {
	if config.FilePrefix == "" {
		config = DefaultConfig()
	}
	pattern := filepath.Join(dir, config.FilePrefix+"-*.wal")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return Stats{}
	}

	stats := statsForFiles(files)
	for _, file := range files {
		if seq := maxSequenceInFile(file); seq > stats.LastSequence {
			stats.LastSequence = seq
		}
	}
	if stats.LastSequence >= stats.FirstSequence && stats.FirstSequence > 0 {
		stats.SequenceCount = stats.LastSequence - stats.FirstSequence + 1
	}
	return stats
}

// statsForFiles gathers file-level statistics
func statsForFiles(files []string) Stats {
	stats := Stats{TotalFiles: len(files)}
	if len(files) == 0 {
		return stats
	}

	stats.TotalSizeBytes = totalSize(files)
	stats.OldestFile, stats.NewestFile = modTimeRange(files)
	stats.FirstSequence = firstSequenceInFiles(files)
	return stats
}

// currentFileSize returns size of the file being written
func (w *WAL) currentFileSize() int64 {
	info, err := w.file.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

// firstSequenceInFiles reads the first entry of the oldest file
func firstSequenceInFiles(files []string) int64 {
	if len(files) == 0 {
		return 0
	}

	reader, err := NewReader(files[0])
	if err != nil {
		return 0
	}
	defer func() { _ = reader.Close() }()

	entry, err := reader.Next()
	if err != nil {
		return 0
	}
	return entry.Sequence
}

// Health reports whether the journal needs operator attention
type Health struct {
	Healthy            bool
	CurrentFilePercent float64
	OldestFileAge      time.Duration
	NeedsRotation      bool
	NeedsCleanup       bool
	Issues             []string
}

// Health returns journal health status
func (w *WAL) Health() Health {
	w.mu.Lock()
	defer w.mu.Unlock()

	health := Health{
		Healthy: true,
		Issues:  []string{},
	}

	w.checkFileSize(&health)
	w.checkFileAge(&health)

	health.Healthy = len(health.Issues) == 0
	return health
}

// checkFileSize flags a current file close to its rotation cap
func (w *WAL) checkFileSize(health *Health) {
	if w.config.MaxFileSize <= 0 {
		return
	}
	size := w.currentFileSize()
	health.CurrentFilePercent = float64(size) / float64(w.config.MaxFileSize) * 100

	if health.CurrentFilePercent > 90 {
		health.NeedsRotation = true
		health.Issues = append(health.Issues, "current file >90% of max size")
	}
}

// checkFileAge flags files past the retention period
func (w *WAL) checkFileAge(health *Health) {
	files := w.listWALFiles()
	if len(files) == 0 || w.config.RetentionDays <= 0 {
		return
	}

	oldest, _ := modTimeRange(files)
	health.OldestFileAge = time.Since(oldest)

	retention := time.Duration(w.config.RetentionDays) * 24 * time.Hour
	if health.OldestFileAge > retention {
		health.NeedsCleanup = true
		health.Issues = append(health.Issues, "old files exceed retention period")
	}
}
