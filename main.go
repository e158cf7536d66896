package main

import (
	"log"
	"time"

	"dashplay/api"
	"dashplay/clips"
	"dashplay/config"
	"dashplay/cron"
	"dashplay/database"
	"dashplay/export"
	"dashplay/monitoring"
	"dashplay/playback"
	"dashplay/storage"

	"github.com/joho/godotenv"
)

func main() {

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load config
	cfg := config.LoadConfig()

	// Ensure all required directories exist
	config.EnsurePaths(cfg)

	// Initialize database
	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize SQLite database:", err)
	}
	defer db.Close()

	// Initialize R2 storage when configured
	var uploader export.Uploader
	if cfg.R2Enabled {
		r2Storage, err := storage.NewR2Storage(storage.R2Config{
			AccessKey: cfg.R2AccessKey,
			SecretKey: cfg.R2SecretKey,
			AccountID: cfg.R2AccountID,
			Bucket:    cfg.R2Bucket,
			Endpoint:  cfg.R2Endpoint,
			Region:    cfg.R2Region,
			BaseURL:   cfg.R2BaseURL,
		})
		if err != nil {
			log.Fatal("Failed to initialize R2 storage:", err)
		}
		uploader = r2Storage
	}

	// Clip duration probe shared by indexing and playback
	prober := clips.NewFFprobeProber()

	// Playback scheduler and its control loop
	scheduler := playback.NewScheduler(playback.NewClockPlayerFactory(prober), cfg.PlaybackRetryCap)
	go scheduler.Run()
	defer scheduler.Stop()

	// Export service
	exporter := export.NewService(db, uploader, cfg.ExportPath, cfg.ExportTempPath, cfg.ExportWorkerConcurrency)

	// Daily cleanup of stale temp files and aged failed jobs
	cleanup := cron.NewExportCleanupCron(db, cfg.ExportTempPath, cfg.ExportRetentionDays)
	if err := cleanup.Start(); err != nil {
		log.Printf("Failed to start export cleanup cron: %v", err)
	}
	defer cleanup.Stop()

	// Resource monitoring
	monitoring.StartMonitoring(time.Duration(cfg.MonitoringInterval)*time.Second, cfg.ExportPath)

	// Start web server
	server := api.NewServer(cfg, db, scheduler, exporter, prober)
	server.Start()
}
