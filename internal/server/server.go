// Package server exposes the admin HTTP surface: batch triggers, recent runs,
// health and Prometheus metrics.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/ingest"
	"github.com/rejintech/procsync/internal/normalize"
	"github.com/rejintech/procsync/internal/procurement"
)

const defaultRunsLimit = 20

// Runner executes batches.
type Runner interface {
	Sync(ctx context.Context, w procurement.Window) *ingest.Result
	Normalize(ctx context.Context) *normalize.Result
}

// RunLister reads the batch ledger.
type RunLister interface {
	GetBatchLogs(batchName string, limit int) ([]database.BatchLog, error)
}

// Server is the admin HTTP server.
type Server struct {
	runner     Runner
	runs       RunLister
	gatherer   prometheus.Gatherer
	adminToken string
	logger     *zap.Logger
	now        func() time.Time

	// One batch at a time per process.
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// mu orders wg.Add in trigger against wg.Wait in Close.
	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	router chi.Router
}

// New creates a Server. Batches started by the server run under a context
// that Close cancels.
func New(runner Runner, runs RunLister, gatherer prometheus.Gatherer, adminToken string, logger *zap.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		runner:     runner,
		runs:       runs,
		gatherer:   gatherer,
		adminToken: adminToken,
		logger:     logger,
		now:        time.Now,
		sem:        semaphore.NewWeighted(1),
		ctx:        ctx,
		cancel:     cancel,
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close cancels running batches and waits for them to finish. Triggers
// after Close answer 503.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every triggered batch has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/batch", func(b chi.Router) {
		b.Use(requireAdminToken(s.adminToken, s.logger))
		b.Post("/sync", s.handleSync)
		b.Post("/normalize", s.handleNormalize)
		b.Get("/runs", s.handleRuns)
	})
	s.router = r
}

// requireAdminToken rejects requests whose X-Admin-Token header does not
// match. An empty expected token rejects everything.
func requireAdminToken(expected string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				logger.Warn("admin token mismatch",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("path", r.URL.Path))
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "admin token required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	daysBack := 1
	if v := r.URL.Query().Get("days_back"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "days_back must be an integer"})
			return
		}
		daysBack = n
	}
	win, err := procurement.NewWindow(r.URL.Query().Get("end_date"), daysBack, s.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.trigger(w, "sync", func(ctx context.Context) {
		res := s.runner.Sync(ctx, win)
		s.logger.Info("triggered sync finished",
			zap.Int64("batch_log_id", res.BatchLogID),
			zap.String("status", string(res.Status)))
	}, map[string]string{"start_date": win.StartParam(), "end_date": win.EndParam()})
}

func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	s.trigger(w, "normalize", func(ctx context.Context) {
		res := s.runner.Normalize(ctx)
		s.logger.Info("triggered normalization finished",
			zap.Int64("batch_log_id", res.BatchLogID),
			zap.String("status", string(res.Status)))
	}, nil)
}

// trigger starts fn in the background, or answers 409 when another batch
// holds the semaphore. The outcome goes to the ledger only.
func (s *Server) trigger(w http.ResponseWriter, batch string, fn func(context.Context), extra map[string]string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server is shutting down"})
		return
	}
	if !s.sem.TryAcquire(1) {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a batch is already running"})
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.sem.Release(1)
		fn(s.ctx)
	}()

	body := map[string]string{"status": "accepted", "batch": batch}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, http.StatusAccepted, body)
}

type runView struct {
	ID           int64                  `json:"id"`
	BatchName    string                 `json:"batch_name"`
	Status       database.BatchStatus   `json:"status"`
	StartTime    string                 `json:"start_time"`
	EndTime      *string                `json:"end_time,omitempty"`
	Counters     database.BatchCounters `json:"counters"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	Details      json.RawMessage        `json:"details,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	logs, err := s.runs.GetBatchLogs(r.URL.Query().Get("batch"), limit)
	if err != nil {
		s.logger.Error("listing batch runs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	views := make([]runView, 0, len(logs))
	for _, l := range logs {
		v := runView{
			ID:           l.ID,
			BatchName:    l.BatchName,
			Status:       l.Status,
			StartTime:    l.StartTime,
			EndTime:      l.EndTime,
			Counters:     l.Counters,
			ErrorMessage: l.ErrorMessage,
		}
		if l.Details != nil && json.Valid([]byte(*l.Details)) {
			v.Details = json.RawMessage(*l.Details)
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
