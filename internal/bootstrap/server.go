package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/airways/api"
	"github.com/Domenick1991/airways/config"
	bookingsapi "github.com/Domenick1991/airways/internal/api/bookings_service_api"
	"github.com/Domenick1991/airways/internal/api/codec"
	flightsapi "github.com/Domenick1991/airways/internal/api/flights_service_api"
	"github.com/Domenick1991/airways/internal/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
}

// Run starts the gRPC and HTTP servers and blocks until ctx is canceled or a
// server fails.
func Run(ctx context.Context, cfg *config.Config, svc *Services, log logger.Logger) error {
	s := newServers(cfg, svc, log)

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()
	log.Info("grpc server listening", logger.F("address", cfg.GRPC.Address))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("http server listening", logger.F("address", cfg.HTTP.Address))

	select {
	case err := <-errCh:
		s.grpcServer.Stop()
		_ = s.httpServer.Close()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, svc *Services, log logger.Logger) *Servers {
	grpcSrv := grpc.NewServer(grpc.ForceServerCodec(codec.JSON{}))
	flightsapi.RegisterFlightsServiceServer(grpcSrv, flightsapi.NewServer(svc.Inventory, svc.Cancellation))
	bookingsapi.RegisterBookingsServiceServer(grpcSrv, bookingsapi.NewServer(svc.Bookings, svc.Cancellation))

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           NewRouter(cfg, svc, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter builds the public HTTP surface.
func NewRouter(cfg *config.Config, svc *Services, log logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Telemetry.ServiceName))
	router.Use(requestLogger(log))
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.HTTP.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders:  []string{"Origin", "Content-Type", api.UserIDHeader},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	api.NewFlightHandler(svc.Inventory).Register(v1.Group("/flights"))
	api.NewBookingHandler(svc.Bookings, svc.Cancellation, svc.Payments).Register(v1.Group("/bookings"))
	api.NewPaymentHandler(svc.Payments).Register(v1.Group("/payments"))
	api.NewAdminHandler(svc.Cancellation).Register(v1.Group("/admin"))
	return router
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.F("method", c.Request.Method),
			logger.F("path", c.FullPath()),
			logger.F("status", c.Writer.Status()),
			logger.F("latency_ms", time.Since(start).Milliseconds()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.F("errors", c.Errors.String()))
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("http request", fields...)
		default:
			log.Debug("http request", fields...)
		}
	}
}
