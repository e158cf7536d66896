package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB implements the Database interface using SQLite
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database instance
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %v", err)
	}

	// Create tables if they don't exist
	err = initTables(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

// initTables creates the necessary tables if they don't exist
func initTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS exports (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			status TEXT NOT NULL,
			date TEXT NOT NULL,
			start_ms INTEGER NOT NULL,
			end_ms INTEGER NOT NULL,
			cameras TEXT,
			mobile INTEGER DEFAULT 0,
			output_path TEXT,
			progress REAL DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			size INTEGER DEFAULT 0,
			r2_path TEXT,
			r2_url TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return err
	}

	// Check if r2_url column exists, if not add it (older databases predate uploads)
	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('exports') WHERE name='r2_url'`).Scan(&count)
	if err != nil {
		return err
	}

	if count == 0 {
		_, err = db.Exec(`ALTER TABLE exports ADD COLUMN r2_url TEXT`)
		if err != nil {
			return err
		}
		log.Println("Added r2_url column to exports table")
	}

	// Create index on status
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_exports_status ON exports (status)
	`)
	if err != nil {
		return err
	}

	return nil
}

// CreateExport inserts a new export job record into the database
func (s *SQLiteDB) CreateExport(job ExportJob) error {
	_, err := s.db.Exec(`
		INSERT INTO exports (
			id, created_at, finished_at, status, date, start_ms, end_ms,
			cameras, mobile, output_path, progress, duration_ms, size,
			r2_path, r2_url, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.CreatedAt,
		job.FinishedAt,
		job.Status,
		job.Date,
		job.StartMS,
		job.EndMS,
		job.Cameras,
		job.Mobile,
		job.OutputPath,
		job.Progress,
		job.DurationMS,
		job.Size,
		job.R2Path,
		job.R2URL,
		job.ErrorMessage,
	)

	if err != nil {
		return fmt.Errorf("failed to create export: %v", err)
	}

	return nil
}

const exportColumns = `
		id, created_at, finished_at, status, date, start_ms, end_ms,
		cameras, mobile, output_path, progress, duration_ms, size,
		r2_path, r2_url, error_message`

// scanExport reads one export row into an ExportJob, converting nullable columns
func scanExport(scan func(dest ...interface{}) error) (*ExportJob, error) {
	var job ExportJob
	var finishedAt sql.NullTime
	var cameras, outputPath, r2Path, r2URL, errorMessage sql.NullString

	err := scan(
		&job.ID,
		&job.CreatedAt,
		&finishedAt,
		&job.Status,
		&job.Date,
		&job.StartMS,
		&job.EndMS,
		&cameras,
		&job.Mobile,
		&outputPath,
		&job.Progress,
		&job.DurationMS,
		&job.Size,
		&r2Path,
		&r2URL,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		job.FinishedAt = &finishedAt.Time
	}
	if cameras.Valid {
		job.Cameras = cameras.String
	}
	if outputPath.Valid {
		job.OutputPath = outputPath.String
	}
	if r2Path.Valid {
		job.R2Path = r2Path.String
	}
	if r2URL.Valid {
		job.R2URL = r2URL.String
	}
	if errorMessage.Valid {
		job.ErrorMessage = errorMessage.String
	}

	return &job, nil
}

// GetExport retrieves an export job by its ID
func (s *SQLiteDB) GetExport(id string) (*ExportJob, error) {
	row := s.db.QueryRow(`SELECT `+exportColumns+` FROM exports WHERE id = ?`, id)

	job, err := scanExport(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get export: %v", err)
	}

	return job, nil
}

// UpdateExport updates an existing export job record
func (s *SQLiteDB) UpdateExport(job ExportJob) error {
	_, err := s.db.Exec(`
		UPDATE exports
		SET
			created_at = ?,
			finished_at = ?,
			status = ?,
			date = ?,
			start_ms = ?,
			end_ms = ?,
			cameras = ?,
			mobile = ?,
			output_path = ?,
			progress = ?,
			duration_ms = ?,
			size = ?,
			r2_path = ?,
			r2_url = ?,
			error_message = ?
		WHERE id = ?
	`,
		job.CreatedAt,
		job.FinishedAt,
		job.Status,
		job.Date,
		job.StartMS,
		job.EndMS,
		job.Cameras,
		job.Mobile,
		job.OutputPath,
		job.Progress,
		job.DurationMS,
		job.Size,
		job.R2Path,
		job.R2URL,
		job.ErrorMessage,
		job.ID,
	)

	if err != nil {
		return fmt.Errorf("failed to update export: %v", err)
	}

	return nil
}

// ListExports retrieves a list of export jobs with pagination
func (s *SQLiteDB) ListExports(limit, offset int) ([]ExportJob, error) {
	rows, err := s.db.Query(`
		SELECT `+exportColumns+`
		FROM exports
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %v", err)
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		job, err := scanExport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export row: %v", err)
		}
		jobs = append(jobs, *job)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %v", err)
	}

	return jobs, nil
}

// DeleteExport removes an export job record by its ID
func (s *SQLiteDB) DeleteExport(id string) error {
	_, err := s.db.Exec("DELETE FROM exports WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete export: %v", err)
	}

	return nil
}

// GetExportsByStatus retrieves export jobs with a specific status
func (s *SQLiteDB) GetExportsByStatus(status ExportStatus, limit, offset int) ([]ExportJob, error) {
	rows, err := s.db.Query(`
		SELECT `+exportColumns+`
		FROM exports
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, status, limit, offset)

	if err != nil {
		return nil, fmt.Errorf("failed to get exports by status: %v", err)
	}
	defer rows.Close()

	var jobs []ExportJob
	for rows.Next() {
		job, err := scanExport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan export row: %v", err)
		}
		jobs = append(jobs, *job)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %v", err)
	}

	return jobs, nil
}

// UpdateExportStatus updates the status and optional error message of an export job
func (s *SQLiteDB) UpdateExportStatus(id string, status ExportStatus, errorMsg string) error {
	var finishedAt *time.Time

	// If status is ready or failed, set finished_at to current time
	if status == StatusReady || status == StatusFailed {
		now := time.Now()
		finishedAt = &now
	}

	_, err := s.db.Exec(`
		UPDATE exports
		SET
			status = ?,
			error_message = ?,
			finished_at = ?
		WHERE id = ?
	`, status, errorMsg, finishedAt, id)

	if err != nil {
		return fmt.Errorf("failed to update export status: %v", err)
	}

	log.Printf("Updated export %s status to %s", id, status)
	return nil
}

// UpdateExportProgress updates the encoding progress of an export job
func (s *SQLiteDB) UpdateExportProgress(id string, progress float64) error {
	_, err := s.db.Exec(`
		UPDATE exports
		SET progress = ?
		WHERE id = ?
	`, progress, id)

	if err != nil {
		return fmt.Errorf("failed to update export progress: %v", err)
	}

	return nil
}

// UpdateExportR2 updates the R2 object key and public URL for an export job
func (s *SQLiteDB) UpdateExportR2(id, r2Path, r2URL string) error {
	_, err := s.db.Exec(`
		UPDATE exports
		SET
			r2_path = ?,
			r2_url = ?
		WHERE id = ?
	`, r2Path, r2URL, id)

	if err != nil {
		return fmt.Errorf("failed to update export R2 info: %v", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}
