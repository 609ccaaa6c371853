package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fairclaim/protest-engine/internal/config"
	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/logging"
)

// Server wraps the standard http.Server around the gin route tree with the
// configured timeouts and a graceful shutdown path.
type Server struct {
	srv    *http.Server
	logger logging.Logger
	port   int
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	return &Server{
		logger: logger.Named("http.server"),
		port:   cfg.Port,
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start blocks serving requests until Stop is called or the listener fails.
func (s *Server) Start() error {
	s.logger.Info("listening", logging.Int("port", s.port))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.srv.Shutdown(ctx)
}
