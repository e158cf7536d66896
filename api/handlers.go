package api

import (
	"errors"
	"log"
	"net/http"
	"runtime"
	"time"

	"dashplay/clips"
	"dashplay/database"
	"dashplay/export"
	"dashplay/monitoring"

	"github.com/gin-gonic/gin"
)

// listDays returns the recording days available under the recordings root.
func (s *Server) listDays(c *gin.Context) {
	days, err := clips.ListDays(s.config.RecordingsPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

type loadDayRequest struct {
	Date string `json:"date" binding:"required"`
}

// loadDay indexes one recording day and hands the timeline to the scheduler.
func (s *Server) loadDay(c *gin.Context) {
	var req loadDayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tl, err := clips.BuildIndex(s.config.RecordingsPath, req.Date, s.prober)
	if err != nil {
		if errors.Is(err, clips.ErrNoRecordings) || errors.Is(err, clips.ErrNoValidFiles) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.timeline = tl
	s.marks.Reset()
	s.mu.Unlock()

	s.scheduler.UseTimeline(tl)

	log.Printf("api: loaded day %s (%d segments, %dms)",
		tl.Date, tl.SegmentCount(), tl.TotalDurationMS)

	c.JSON(http.StatusOK, gin.H{
		"date":            tl.Date,
		"totalDurationMs": tl.TotalDurationMS,
		"segments":        tl.SegmentCount(),
		"events":          tl.Events,
	})
}

type seekRequest struct {
	PositionMS *int64 `json:"positionMs" binding:"required"`
}

func (s *Server) seek(c *gin.Context) {
	if s.currentTimeline() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no day loaded"})
		return
	}

	var req seekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.scheduler.Seek(*req.PositionMS)
	c.JSON(http.StatusAccepted, gin.H{"positionMs": *req.PositionMS})
}

func (s *Server) play(c *gin.Context) {
	if s.currentTimeline() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no day loaded"})
		return
	}
	s.scheduler.Play()
	c.JSON(http.StatusOK, gin.H{"playing": true})
}

func (s *Server) pause(c *gin.Context) {
	if s.currentTimeline() == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no day loaded"})
		return
	}
	s.scheduler.Pause()
	c.JSON(http.StatusOK, gin.H{"playing": false})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.scheduler.Snapshot())
}

// listTimelineEvents returns the event markers of the loaded day.
func (s *Server) listTimelineEvents(c *gin.Context) {
	tl := s.currentTimeline()
	if tl == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no day loaded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": tl.Events})
}

type markRequest struct {
	PositionMS *int64 `json:"positionMs" binding:"required"`
}

func (s *Server) getMarkers(c *gin.Context) {
	s.mu.Lock()
	start, end, ok := s.marks.Bounds()
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"set": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"set": true, "startMs": start, "endMs": end})
}

func (s *Server) markStart(c *gin.Context) {
	s.applyMark(c, func(ms, total int64) { s.marks.MarkStart(ms, total) })
}

func (s *Server) markEnd(c *gin.Context) {
	s.applyMark(c, func(ms, total int64) { s.marks.MarkEnd(ms, total) })
}

func (s *Server) applyMark(c *gin.Context, mark func(ms, total int64)) {
	tl := s.currentTimeline()
	if tl == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no day loaded"})
		return
	}

	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.mu.Lock()
	mark(*req.PositionMS, tl.TotalDurationMS)
	start, end, ok := s.marks.Bounds()
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusOK, gin.H{"set": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"set": true, "startMs": start, "endMs": end})
}

func (s *Server) resetMarkers(c *gin.Context) {
	s.mu.Lock()
	s.marks.Reset()
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"set": false})
}

type createExportRequest struct {
	StartMS *int64   `json:"startMs"`
	EndMS   *int64   `json:"endMs"`
	Cameras []string `json:"cameras" binding:"required"`
	Mobile  bool     `json:"mobile"`
}

// createExport submits an export job. The range defaults to the current
// markers when the request omits it.
func (s *Server) createExport(c *gin.Context) {
	tl := s.currentTimeline()
	if tl == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no day loaded"})
		return
	}

	var req createExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var startMS, endMS int64
	if req.StartMS != nil && req.EndMS != nil {
		startMS, endMS = *req.StartMS, *req.EndMS
	} else {
		s.mu.Lock()
		var ok bool
		startMS, endMS, ok = s.marks.Bounds()
		s.mu.Unlock()
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no range given and no markers set"})
			return
		}
	}

	cameras := make([]clips.Camera, 0, len(req.Cameras))
	for _, name := range req.Cameras {
		cam, ok := clips.ParseCamera(name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown camera: " + name})
			return
		}
		cameras = append(cameras, cam)
	}
	if len(cameras) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no cameras selected"})
		return
	}

	job, err := s.exporter.Submit(export.SubmitRequest{
		Timeline: tl,
		StartMS:  startMS,
		EndMS:    endMS,
		Cameras:  cameras,
		Mobile:   req.Mobile,
	})
	if err != nil {
		if errors.Is(err, export.ErrNoClipsInRange) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, job)
}

func (s *Server) listExports(c *gin.Context) {
	jobs, err := s.db.ListExports(100, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if jobs == nil {
		jobs = []database.ExportJob{}
	}
	c.JSON(http.StatusOK, gin.H{"exports": jobs})
}

func (s *Server) getExport(c *gin.Context) {
	job, err := s.db.GetExport(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "export not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelExport(c *gin.Context) {
	id := c.Param("id")
	if err := s.exporter.Cancel(id); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canceled": id})
}

// getSystemHealth provides service health for dashboards.
func (s *Server) getSystemHealth(c *gin.Context) {
	startTime := time.Now()

	healthResponse := gin.H{
		"status":    "healthy",
		"timestamp": startTime.UTC().Format(time.RFC3339),
	}

	// Check database connectivity with a cheap query
	if _, err := s.db.ListExports(1, 0); err != nil {
		healthResponse["status"] = "unhealthy"
		healthResponse["database"] = gin.H{"status": "failed", "error": err.Error()}
		c.JSON(http.StatusServiceUnavailable, healthResponse)
		return
	}
	healthResponse["database"] = gin.H{"status": "connected"}

	if tl := s.currentTimeline(); tl != nil {
		healthResponse["loadedDay"] = tl.Date
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	healthResponse["system"] = gin.H{
		"memory_mb":  memStats.Alloc / 1024 / 1024,
		"goroutines": runtime.NumGoroutine(),
		"go_version": runtime.Version(),
	}

	if freeGB, err := monitoring.ExportDiskFreeGB(s.config.ExportPath); err == nil {
		healthResponse["storage"] = gin.H{
			"path":    s.config.ExportPath,
			"free_gb": freeGB,
		}
	}

	healthResponse["response_time_ms"] = time.Since(startTime).Milliseconds()
	c.JSON(http.StatusOK, healthResponse)
}
