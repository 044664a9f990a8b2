package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Domenick1991/courierbooking/api"
	"github.com/Domenick1991/courierbooking/config"
	"github.com/Domenick1991/courierbooking/internal/auth"
	"github.com/Domenick1991/courierbooking/internal/realtime"
	"github.com/Domenick1991/courierbooking/internal/service/booking"
	"github.com/Domenick1991/courierbooking/internal/service/pilots"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const readinessInterval = 10 * time.Second

type Deps struct {
	Bookings booking.BookingUseCase
	Pilots   pilots.PilotUseCase
	Hub      *realtime.Hub
	Auth     *auth.Issuer
	// Ready reports whether the backing stores answer; it drives the gRPC
	// health status.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
}

// Run starts the gRPC health server and the HTTP API and blocks until ctx is
// canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, deps Deps) error {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := newServers(cfg, deps)

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()
	go func() { errCh <- s.httpServer.ListenAndServe() }()
	go s.watchReadiness(ctx, deps)

	deps.Logger.Info("servers started", "http", cfg.HTTP.Address, "grpc", cfg.GRPC.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, deps Deps) *Servers {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           NewRouter(cfg, deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		health: healthSrv,
	}
}

func (s *Servers) watchReadiness(ctx context.Context, deps Deps) {
	check := func() {
		status := healthpb.HealthCheckResponse_SERVING
		if deps.Ready != nil {
			checkCtx, cancel := context.WithTimeout(ctx, readinessInterval/2)
			err := deps.Ready(checkCtx)
			cancel()
			if err != nil {
				deps.Logger.Warn("readiness check failed", "err", err)
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
		}
		s.health.SetServingStatus("", status)
	}

	check()
	ticker := time.NewTicker(readinessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

// NewRouter builds the HTTP surface: the admin API under /v1, the socket
// endpoint, and the API docs when a swagger directory is configured.
func NewRouter(cfg *config.Config, deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Ready != nil {
			if err := deps.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1", auth.RequireAdmin(deps.Auth))
	api.NewBookingHandler(deps.Bookings).Register(v1.Group("/bookings"))
	api.NewPilotHandler(deps.Pilots).Register(v1.Group("/pilots"))
	if deps.Hub != nil {
		v1.GET("/ws", deps.Hub.ServeWS)
	}

	if cfg.HTTP.SwaggerDir != "" {
		doc := filepath.Join(cfg.HTTP.SwaggerDir, "courierbooking.swagger.json")
		r.GET("/docs/openapi.json", func(c *gin.Context) {
			c.File(doc)
		})
		r.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/docs/openapi.json"))))
	}

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"operator", auth.Subject(c),
		)
	}
}
