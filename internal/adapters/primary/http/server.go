package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/kpizzy812/TMAMARKET/internal/adapters/primary/http/middlewares"
)

type Config struct {
	Host              string        `envconfig:"HOST"`
	Port              string        `envconfig:"PORT" default:"8080"`
	WriteTimeout      time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	ReadTimeout       time.Duration `envconfig:"READ_TIMEOUT" default:"5s"`
	ReadHeaderTimeout time.Duration `envconfig:"READ_HEADER_TIMEOUT" default:"3s"`
	IdleTimeout       time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout   time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	AccessLog         bool          `envconfig:"ACCESS_LOG" default:"true"`
}

type Controller interface {
	RegisterRoutes(router *gin.Engine)
}

// пробы оркестратора в access log не пишутся
var probePaths = []string{"/health", "/ready"}

// Server HTTP API и колбэки шлюза
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	log             *slog.Logger
}

func New(cfg *Config, log *slog.Logger, controllers ...Controller) *Server {
	return &Server{
		srv: &http.Server{
			Handler:           NewRouter(cfg, log, controllers...),
			Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             log,
	}
}

func NewRouter(cfg *Config, log *slog.Logger, controllers ...Controller) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middlewares.RequestID(), middlewares.Recovery(log))
	if cfg.AccessLog {
		router.Use(middlewares.AccessLog(log, probePaths...))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	for _, controller := range controllers {
		controller.RegisterRoutes(router)
	}
	return router
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run слушает до отмены ctx, затем дожидается активных запросов не дольше ShutdownTimeout
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.log.Info("http server stopped")
	return nil
}
