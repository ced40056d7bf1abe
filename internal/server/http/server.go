package httpserver

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/PortoLucas1/zerobus-station/internal/schema"
	"github.com/PortoLucas1/zerobus-station/internal/server/http/controllers"
	streamsvc "github.com/PortoLucas1/zerobus-station/internal/services/streams"
	logpkg "github.com/PortoLucas1/zerobus-station/pkg/log"
)

type Server struct {
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

func New(mgr *streamsvc.Manager, reg *schema.Registry) *Server {
	return NewWithLogger(mgr, reg, nil)
}

func NewWithLogger(mgr *streamsvc.Manager, reg *schema.Registry, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	mux := http.NewServeMux()
	controllers.NewRegistry(mgr, reg, logger).RegisterAllRoutes(mux)
	return &Server{
		srv:    &http.Server{Handler: cors(mux)},
		logger: logger.WithComponent("http"),
	}
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
