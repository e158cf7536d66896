package cron

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"dashplay/database"
)

// ExportCleanupCron removes stale encoder temp files and prunes old failed
// export records along with their output files.
type ExportCleanupCron struct {
	cron          *cron.Cron
	db            database.Database
	tempDir       string
	retentionDays int
}

// NewExportCleanupCron creates a new export cleanup cron job
func NewExportCleanupCron(db database.Database, tempDir string, retentionDays int) *ExportCleanupCron {
	if retentionDays < 1 {
		retentionDays = 7
	}

	// Create cron instance with second precision
	c := cron.New(cron.WithSeconds())

	return &ExportCleanupCron{
		cron:          c,
		db:            db,
		tempDir:       tempDir,
		retentionDays: retentionDays,
	}
}

// Start begins the export cleanup cron job (daily at 3 AM)
func (e *ExportCleanupCron) Start() error {
	log.Println("Starting export cleanup cron job (daily at 3 AM)")

	_, err := e.cron.AddFunc("0 0 3 * * *", func() {
		e.runCleanup()
	})
	if err != nil {
		return err
	}

	e.cron.Start()

	// Run initial cleanup shortly after startup
	go func() {
		time.Sleep(5 * time.Minute)
		e.runCleanup()
	}()

	return nil
}

// Stop stops the export cleanup cron job
func (e *ExportCleanupCron) Stop() {
	log.Println("Stopping export cleanup cron job")
	e.cron.Stop()
}

// runCleanup performs the daily cleanup pass
func (e *ExportCleanupCron) runCleanup() {
	log.Println("=== Starting export cleanup process ===")
	startTime := time.Now()

	tempRemoved := e.cleanupTempFiles()
	jobsRemoved := e.cleanupFailedJobs()

	duration := time.Since(startTime)
	log.Printf("=== Export cleanup completed in %v ===", duration)
	log.Printf("  Temp files removed: %d", tempRemoved)
	log.Printf("  Failed jobs pruned: %d", jobsRemoved)
}

// cleanupTempFiles removes concat list files older than an hour. A running
// encode keeps its lists for at most the encode itself, so anything older was
// left behind by a crash.
func (e *ExportCleanupCron) cleanupTempFiles() int {
	entries, err := os.ReadDir(e.tempDir)
	if err != nil {
		log.Printf("ERROR: Failed to read export temp directory %s: %v", e.tempDir, err)
		return 0
	}

	cutoff := time.Now().Add(-1 * time.Hour)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "concat_") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(e.tempDir, entry.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("WARNING: Failed to remove stale temp file %s: %v", path, err)
			continue
		}
		removed++
	}

	return removed
}

// cleanupFailedJobs deletes failed export records older than the retention
// window, plus any partial output files they left behind.
func (e *ExportCleanupCron) cleanupFailedJobs() int {
	jobs, err := e.db.GetExportsByStatus(database.StatusFailed, 10000, 0)
	if err != nil {
		log.Printf("ERROR: Failed to list failed exports: %v", err)
		return 0
	}

	cutoff := time.Now().AddDate(0, 0, -e.retentionDays)
	removed := 0
	for _, job := range jobs {
		if job.CreatedAt.After(cutoff) {
			continue
		}
		if job.OutputPath != "" {
			if err := os.Remove(job.OutputPath); err != nil && !os.IsNotExist(err) {
				log.Printf("WARNING: Failed to remove output for failed export %s: %v", job.ID, err)
			}
		}
		if err := e.db.DeleteExport(job.ID); err != nil {
			log.Printf("WARNING: Failed to delete export record %s: %v", job.ID, err)
			continue
		}
		removed++
	}

	return removed
}
