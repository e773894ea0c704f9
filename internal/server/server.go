// Package server exposes the dashboard over HTTP. Every request belongs to a
// session identified by the X-Session-ID header.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/forest-guardian/ecosystem-dashboard/internal/analysis"
	"github.com/forest-guardian/ecosystem-dashboard/internal/chat"
	"github.com/forest-guardian/ecosystem-dashboard/internal/metrics"
	"github.com/forest-guardian/ecosystem-dashboard/internal/properties"
	"github.com/forest-guardian/ecosystem-dashboard/internal/vector"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	EndPointHealth       = "/health"
	EndPointMetrics      = "/metrics"
	EndPointLayers       = "/api/v1/layers"
	EndPointLayerSummary = "/api/v1/layers/:id/summary"
	EndPointPolygon      = "/api/v1/polygon"
	EndPointUpload       = "/api/v1/polygon/upload"
	EndPointDiagnostic   = "/api/v1/diagnostic"
	EndPointContext      = "/api/v1/context"
	EndPointChat         = "/api/v1/chat"
	EndPointReport       = "/api/v1/report"

	sessionKey      = "session"
	sessionMaxIdle  = 2 * time.Hour
	sweepInterval   = 10 * time.Minute
	maxUploadBytes  = 32 << 20
	shutdownTimeout = 10 * time.Second
)

type Config struct {
	Runner       *analysis.Runner
	VectorSource vector.Source
	VectorMode   vector.Mode
	Layers       []properties.Layer
	Completer    chat.Completer
	Now          func() time.Time
}

type Server struct {
	config   Config
	sessions *SessionStore
	router   *gin.Engine
}

func New(config Config) *Server {
	if config.Layers == nil {
		config.Layers = properties.DefaultLayers
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	s := &Server{config: config, sessions: NewSessionStore(config.Completer)}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxUploadBytes
	router.Use(gin.Recovery(), requestLogger())

	router.GET(EndPointHealth, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "ecosystem-dashboard",
		})
	})
	router.GET(EndPointMetrics, gin.WrapH(metrics.Handler()))

	api := router.Group("/")
	api.Use(s.sessionMiddleware())
	{
		api.GET(EndPointLayers, s.listLayers)
		api.GET(EndPointLayerSummary, s.layerSummary)
		api.PUT(EndPointPolygon, s.setPolygon)
		api.POST(EndPointUpload, s.uploadPolygon)
		api.GET(EndPointPolygon, s.getPolygon)
		api.DELETE(EndPointPolygon, s.clearPolygon)
		api.POST(EndPointDiagnostic, s.runDiagnostic)
		api.GET(EndPointContext, s.getContext)
		api.GET(EndPointChat, s.getTranscript)
		api.POST(EndPointChat, s.ask)
		api.DELETE(EndPointChat, s.resetChat)
		api.GET(EndPointReport, s.downloadReport)
	}
	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}

func (s *Server) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := s.sessions.Get(c.GetHeader(SessionHeader))
		c.Header(SessionHeader, session.ID)
		c.Set(sessionKey, session)
		c.Next()
	}
}

func sessionFrom(c *gin.Context) *Session {
	return c.MustGet(sessionKey).(*Session)
}

// Run serves HTTP on httpPort and the gRPC health service on grpcPort until
// ctx is cancelled.
func (s *Server) Run(ctx context.Context, httpPort, grpcPort int) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return fmt.Errorf("failed to listen on grpc port %d: %w", grpcPort, err)
	}
	grpcServer, healthServer := newHealthServer()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("http server listening on port %d", httpPort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Infof("grpc health server listening on port %d", grpcPort)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if removed := s.sessions.Sweep(sessionMaxIdle); removed > 0 {
					log.WithField("removed", removed).Info("idle sessions dropped")
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})
	return g.Wait()
}

func newHealthServer() (*grpc.Server, *health.Server) {
	gs := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return gs, hs
}
