package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"image-platform/internal/blob"
	"image-platform/internal/ingest"
	"image-platform/internal/models"
)

const (
	serviceName = "image-platform-backend"
	version     = "1.0.0"

	// matches JavaScript's Date.toISOString
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

type Ingester interface {
	Ingest(ctx context.Context, data []byte, contentType string) (ingest.Result, error)
}

type Lister interface {
	List(ctx context.Context) ([]models.ImageRecord, error)
}

type Options struct {
	Addr           string
	FrontendURL    string
	MaxUploadBytes int64
	// FilesRoot is served under /files when blobs live on local disk.
	FilesRoot string
	Gatherer  prometheus.Gatherer
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	ingester   Ingester
	lister     Lister
	log        *zap.Logger
	maxBytes   int64
}

func NewServer(ingester Ingester, lister Lister, log *zap.Logger, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	s := &Server{
		router:   r,
		ingester: ingester,
		lister:   lister,
		log:      log,
		maxBytes: opts.MaxUploadBytes,
	}
	if s.maxBytes <= 0 {
		s.maxBytes = models.MaxUploadBytes
	}

	r.Use(recovery(log))
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	r.Use(requestLogger(log))
	if opts.FrontendURL != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{opts.FrontendURL},
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/upload", s.handleUpload)
		api.GET("/images", s.handleListImages)
	}

	if opts.FilesRoot != "" {
		r.Static(blob.FilesRoute, opts.FilesRoot)
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// NewMetricsServer serves only /metrics and /health, for processes that run
// without the API.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	s := &Server{router: r, log: log}

	r.Use(recovery(log))
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start blocks until the server stops. A clean Shutdown returns nil.
func (s *Server) Start() error {
	const op = "server.Start"

	s.log.Info("http server running", zap.String("address", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
