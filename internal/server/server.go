// Package server exposes the confidence engine over HTTP: intel
// submission, zone confidence reads, and zone management.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/unmappedos-sys/unmappedos/internal/intel"
	"github.com/unmappedos-sys/unmappedos/internal/store"
)

// Server is the HTTP front end. It owns no domain logic; every handler
// delegates to the intel service or the store.
type Server struct {
	router chi.Router
	intel  *intel.Service
	store  store.Store
	addr   string
}

// New builds a Server with its routes and middleware mounted.
func New(addr string, svc *intel.Service, st store.Store) *Server {
	s := &Server{
		intel: svc,
		store: st,
		addr:  addr,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/intel", s.handleSubmitIntel)
	r.Route("/zones", func(r chi.Router) {
		r.Get("/", s.handleListZones)
		r.Post("/", s.handleCreateZone)
		r.Route("/{zoneID}", func(r chi.Router) {
			r.Get("/confidence", s.handleGetConfidence)
			r.Post("/score", s.handleScoreZone)
		})
	})

	s.router = r
	return s
}

// Handler returns the mounted router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server: shutdown")
		}
		return nil
	case err := <-errCh:
		if err != nil && !eris.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server: listen")
		}
		return nil
	}
}

// requestLogger logs one line per request through the global zap
// logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
