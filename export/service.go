package export

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"dashplay/clips"
	"dashplay/database"
)

// Uploader pushes a finished export to cloud storage. Nil means exports stay
// local only.
type Uploader interface {
	UploadExport(localPath, jobID string) (r2Path, r2URL string, err error)
}

// SubmitRequest describes one export job as received from the API.
type SubmitRequest struct {
	Timeline *clips.Timeline
	StartMS  int64
	EndMS    int64
	Cameras  []clips.Camera
	Mobile   bool
}

// Service runs export jobs in the background, bounded by a worker semaphore,
// and records their lifecycle in the database.
type Service struct {
	db        database.Database
	uploader  Uploader
	outputDir string
	tempDir   string
	sem       *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService creates an export service with the given worker concurrency.
func NewService(db database.Database, uploader Uploader, outputDir, tempDir string, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{
		db:        db,
		uploader:  uploader,
		outputDir: outputDir,
		tempDir:   tempDir,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, builds the encoder command, records a pending
// job and starts encoding in the background. Build errors are returned
// directly so the caller sees a bad range or empty selection immediately.
func (s *Service) Submit(req SubmitRequest) (*database.ExportJob, error) {
	id := uuid.New().String()
	outputPath := filepath.Join(s.outputDir,
		fmt.Sprintf("export_%s_%s.mp4", req.Timeline.Date, id[:8]))

	cmd, err := BuildCommand(Request{
		Timeline:   req.Timeline,
		StartMS:    req.StartMS,
		EndMS:      req.EndMS,
		Cameras:    req.Cameras,
		Mobile:     req.Mobile,
		OutputPath: outputPath,
	}, s.tempDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(req.Cameras))
	for i, cam := range req.Cameras {
		names[i] = cam.String()
	}

	job := database.ExportJob{
		ID:         id,
		CreatedAt:  time.Now(),
		Status:     database.StatusPending,
		Date:       req.Timeline.Date,
		StartMS:    req.StartMS,
		EndMS:      req.EndMS,
		Cameras:    strings.Join(names, ","),
		Mobile:     req.Mobile,
		OutputPath: outputPath,
		DurationMS: cmd.DurationMS,
	}
	if err := s.db.CreateExport(job); err != nil {
		cleanupFiles(cmd.TempFiles)
		return nil, fmt.Errorf("failed to record export job: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[id] = cancel
	s.mu.Unlock()

	go s.process(ctx, job, cmd)

	log.Printf("export: job %s queued (%s, %dms)", id, job.Date, cmd.DurationMS)
	return &job, nil
}

// Cancel aborts a running or queued job.
func (s *Service) Cancel(id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("export %s is not running", id)
	}
	cancel()
	return nil
}

func (s *Service) process(ctx context.Context, job database.ExportJob, cmd *Command) {
	defer func() {
		s.mu.Lock()
		delete(s.cancels, job.ID)
		s.mu.Unlock()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		cleanupFiles(cmd.TempFiles)
		s.fail(job.ID, fmt.Sprintf("canceled while queued: %v", err))
		return
	}
	defer s.sem.Release(1)

	if err := s.db.UpdateExportStatus(job.ID, database.StatusProcessing, ""); err != nil {
		log.Printf("export: failed to mark job %s processing: %v", job.ID, err)
	}

	// Throttle progress writes to whole-percent steps.
	lastPct := -1.0
	err := Run(ctx, cmd, func(pct float64, message string) {
		if pct-lastPct < 1 && pct < 100 {
			return
		}
		lastPct = pct
		if err := s.db.UpdateExportProgress(job.ID, pct); err != nil {
			log.Printf("export: failed to update progress for %s: %v", job.ID, err)
		}
	})
	if err != nil {
		os.Remove(cmd.OutputPath)
		s.fail(job.ID, err.Error())
		return
	}

	if info, err := os.Stat(cmd.OutputPath); err == nil {
		job.Size = info.Size()
		job.Status = database.StatusProcessing
		job.Progress = 100
		if err := s.db.UpdateExport(job); err != nil {
			log.Printf("export: failed to record size for %s: %v", job.ID, err)
		}
	}

	if s.uploader != nil {
		if err := s.db.UpdateExportStatus(job.ID, database.StatusUploading, ""); err != nil {
			log.Printf("export: failed to mark job %s uploading: %v", job.ID, err)
		}
		r2Path, r2URL, err := s.uploader.UploadExport(cmd.OutputPath, job.ID)
		if err != nil {
			// The local file is still good; report ready with a note.
			log.Printf("export: upload failed for %s: %v", job.ID, err)
		} else if err := s.db.UpdateExportR2(job.ID, r2Path, r2URL); err != nil {
			log.Printf("export: failed to record R2 info for %s: %v", job.ID, err)
		}
	}

	if err := s.db.UpdateExportStatus(job.ID, database.StatusReady, ""); err != nil {
		log.Printf("export: failed to mark job %s ready: %v", job.ID, err)
	}
	log.Printf("export: job %s finished -> %s", job.ID, cmd.OutputPath)
}

func (s *Service) fail(id, msg string) {
	if err := s.db.UpdateExportStatus(id, database.StatusFailed, msg); err != nil {
		log.Printf("export: failed to mark job %s failed: %v", id, err)
	}
}
