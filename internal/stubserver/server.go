package stubserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/idsync/internal/logging"
	"github.com/dmitrijs2005/idsync/internal/validate"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// Server is the stub identity service.
type Server struct {
	cfg *Config
	log logging.Logger
	dir *Directory
	e   *echo.Echo
}

func New(cfg *Config, l logging.Logger) *Server {
	if l == nil {
		l = logging.Discard()
	}
	s := &Server{
		cfg: cfg,
		log: l.With("module", "identity_stub"),
		dir: NewDirectory(cfg.FirstMPID),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.log.Info(c.Request().Context(), "request completed",
				"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/v1", apiKeyAuth(cfg.APIKey))
	v1.POST("/identify", s.identity(validate.OpIdentify))
	v1.POST("/login", s.identity(validate.OpLogin))
	v1.POST("/logout", s.identity(validate.OpLogout))
	v1.POST("/:mpid/modify", s.modify)

	s.e = e
	return s
}

// Handler exposes the routes, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Directory returns the identity directory backing the server.
func (s *Server) Directory() *Directory {
	return s.dir
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "Starting stub identity service", "address", s.cfg.ListenAddr)
		if err := s.e.Start(s.cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info(ctx, "Stopping stub identity service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
