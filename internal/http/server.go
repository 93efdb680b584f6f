// Package http exposes the JSON API: financial summaries, transactions,
// report history and per-user report settings. Authentication happens
// upstream; handlers trust the X-User-ID header.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finbrief/internal/core"
	applog "finbrief/internal/log"
)

// Store is the persistence surface the API handlers need.
type Store interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
	CreateTransaction(ctx context.Context, t core.Transaction) (int64, error)
	ListTransactions(ctx context.Context, userID int64, from, to time.Time, limit int) ([]core.Transaction, error)
	ListReportRecords(ctx context.Context, userID int64, limit, offset int) ([]core.ReportRecord, error)
	SubscriptionByUser(ctx context.Context, userID int64) (core.ReportSubscription, error)
	UpsertSubscription(ctx context.Context, sub core.ReportSubscription) error
}

// SummaryGenerator produces a report artifact for an arbitrary window.
type SummaryGenerator interface {
	Generate(ctx context.Context, userID int64, from, to time.Time) (*core.ReportArtifact, error)
}

type Server struct {
	http.Server
	store       Store
	generator   SummaryGenerator
	logger      *applog.Logger
	rateLimiter *rateLimiter

	summaryCache *lruCache[summaryResponse]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store Store, generator SummaryGenerator, logger *applog.Logger) *Server {
	mux := http.NewServeMux()

	httpLogger := logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           applog.Middleware(httpLogger)(mux),
			ReadHeaderTimeout: 5 * time.Second,
		},
		store:            store,
		generator:        generator,
		logger:           httpLogger,
		rateLimiter:      newRateLimiter(),
		summaryCache:     newLRUCache[summaryResponse](500, 2*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/api/summary", s.withMiddleware(s.handleSummary))
	mux.HandleFunc("/api/transactions", s.withMiddleware(s.handleTransactions))
	mux.HandleFunc("/api/reports", s.withMiddleware(s.handleReports))
	mux.HandleFunc("/api/report-setting", s.withMiddleware(s.handleReportSetting))

	return s
}

// startCacheCleanup periodically evicts expired summary cache entries.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.summaryCache.CleanExpired(); cleaned > 0 {
				s.logger.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the background cleanup routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withMiddleware adds rate limiting, security headers and access logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := extractClientIP(r)
		if !s.rateLimiter.allow(clientIP) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		s.logger.InfoContext(r.Context(), "Request completed",
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, rec.status,
			applog.FieldDuration, time.Since(start).Milliseconds(),
			applog.FieldClientIP, clientIP)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// The store is wired at construction; a probe read would need a known
	// user, so readiness only asserts the process is serving.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
