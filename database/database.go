package database

import (
	"time"
)

// ExportStatus represents the current state of an export job
type ExportStatus string

const (
	StatusPending    ExportStatus = "pending"    // Export is queued
	StatusProcessing ExportStatus = "processing" // Export is being encoded
	StatusUploading  ExportStatus = "uploading"  // Export is being uploaded to cloud storage
	StatusReady      ExportStatus = "ready"      // Export file is ready
	StatusFailed     ExportStatus = "failed"     // Export failed
)

// ExportJob represents one export request and its lifecycle
type ExportJob struct {
	ID           string       `json:"id"`           // Unique identifier for the job
	CreatedAt    time.Time    `json:"createdAt"`    // When the job was submitted
	FinishedAt   *time.Time   `json:"finishedAt"`   // When the job finished (nil while running)
	Status       ExportStatus `json:"status"`       // Current status
	Date         string       `json:"date"`         // Recording day the export covers (YYYY-MM-DD)
	StartMS      int64        `json:"startMs"`      // Range start on the day timeline
	EndMS        int64        `json:"endMs"`        // Range end on the day timeline
	Cameras      string       `json:"cameras"`      // Comma-separated camera names included in the grid
	Mobile       bool         `json:"mobile"`       // Whether the mobile-sized variant was requested
	OutputPath   string       `json:"outputPath"`   // Path to the local output file
	Progress     float64      `json:"progress"`     // Encoding progress percentage
	DurationMS   int64        `json:"durationMs"`   // Duration of the exported range
	Size         int64        `json:"size"`         // Output size in bytes
	R2Path       string       `json:"r2Path"`       // R2 object key if uploaded
	R2URL        string       `json:"r2Url"`        // Public URL if uploaded
	ErrorMessage string       `json:"errorMessage"` // Error message if the job failed
}

// Database defines the interface for database operations
type Database interface {
	// Job operations
	CreateExport(job ExportJob) error
	GetExport(id string) (*ExportJob, error)
	UpdateExport(job ExportJob) error
	ListExports(limit, offset int) ([]ExportJob, error)
	DeleteExport(id string) error

	// Status operations
	GetExportsByStatus(status ExportStatus, limit, offset int) ([]ExportJob, error)
	UpdateExportStatus(id string, status ExportStatus, errorMsg string) error
	UpdateExportProgress(id string, progress float64) error

	// R2 storage operations
	UpdateExportR2(id, r2Path, r2URL string) error

	// Helper operations
	Close() error
}
