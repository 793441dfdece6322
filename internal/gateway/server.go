// Package gateway is the HTTP surface: the conversational /nlp endpoint, the
// direct data endpoints, and the transfer workflow endpoints.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"solgate/internal/config"
	"solgate/internal/data"
	"solgate/internal/engine"
	"solgate/internal/metrics"
	"solgate/internal/transfer"
)

// Server hosts the gateway routes over a chi router.
type Server struct {
	cfg     config.ServerConfig
	engine  *engine.Engine
	dataSvc *data.Service
	machine *transfer.Machine
	logger  *slog.Logger
	http    *http.Server
}

func NewServer(cfg config.ServerConfig, eng *engine.Engine, dataSvc *data.Service, machine *transfer.Machine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		engine:  eng,
		dataSvc: dataSvc,
		machine: machine,
		logger:  logger,
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(s.cors)

	r.Post("/nlp", s.handleNLP)
	r.Get("/balance", s.handleBalance)
	r.Get("/transaction", s.handleTransaction)
	r.Get("/pnl", s.handlePnL)
	r.Get("/pnl-distribution", s.handlePnLDistribution)

	r.Route("/transfer", func(r chi.Router) {
		r.Post("/parse-intent", s.handleParseIntent)
		r.Post("/prepare", s.handlePrepare)
		r.Post("/send", s.handleSend)
	})

	r.Get("/status", s.handleStatus)
	r.Get("/metrics", metrics.Collector.Handler())

	return r
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("gateway shutting down")
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	origin := s.cfg.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
