package api

import (
	"fmt"
	"sync"

	"dashplay/clips"
	"dashplay/config"
	"dashplay/database"
	"dashplay/export"
	"dashplay/playback"

	"github.com/gin-gonic/gin"
)

type Server struct {
	config    config.Config
	db        database.Database
	scheduler *playback.Scheduler
	exporter  *export.Service
	prober    clips.DurationProber

	mu       sync.Mutex
	timeline *clips.Timeline
	marks    export.Range
}

func NewServer(cfg config.Config, db database.Database, scheduler *playback.Scheduler, exporter *export.Service, prober clips.DurationProber) *Server {
	return &Server{
		config:    cfg,
		db:        db,
		scheduler: scheduler,
		exporter:  exporter,
		prober:    prober,
	}
}

func (s *Server) Start() {
	r := gin.Default()
	s.setupCORS(r)
	s.setupRoutes(r)
	portAddr := ":" + s.config.ServerPort
	fmt.Printf("Starting API server on %s\n", portAddr)
	r.Run(portAddr)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Finished export files are served directly
	r.Static("/exports", s.config.ExportPath)

	api := r.Group("/api")
	{
		api.GET("/days", s.listDays)

		api.POST("/playback/load", s.loadDay)
		api.POST("/playback/seek", s.seek)
		api.POST("/playback/play", s.play)
		api.POST("/playback/pause", s.pause)
		api.GET("/playback/status", s.getStatus)

		api.GET("/timeline/events", s.listTimelineEvents)

		api.GET("/markers", s.getMarkers)
		api.POST("/markers/start", s.markStart)
		api.POST("/markers/end", s.markEnd)
		api.POST("/markers/reset", s.resetMarkers)

		api.POST("/exports", s.createExport)
		api.GET("/exports", s.listExports)
		api.GET("/exports/:id", s.getExport)
		api.POST("/exports/:id/cancel", s.cancelExport)

		api.GET("/system_health", s.getSystemHealth)
	}
}

// currentTimeline returns the loaded day under the lock.
func (s *Server) currentTimeline() *clips.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}
