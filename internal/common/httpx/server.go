package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 5 * time.Second

// Server runs an HTTP listener whose lifetime is bound to a context.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
}

func New(addr string, h http.Handler) *Server {
	return &Server{
		srv:             &http.Server{Addr: addr, Handler: h},
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// WithShutdownTimeout bounds how long in-flight requests get to finish
// once the context is canceled.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	if d > 0 {
		s.shutdownTimeout = d
	}
	return s
}

// Run serves until ctx is canceled, then drains in-flight requests within
// the shutdown timeout. Requests still running after that are cut off.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return s.srv.Close()
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
