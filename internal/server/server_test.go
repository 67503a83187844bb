package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/ingest"
	"github.com/rejintech/procsync/internal/metrics"
	"github.com/rejintech/procsync/internal/normalize"
	"github.com/rejintech/procsync/internal/procurement"
)

const token = "secret"

// fakeRunner blocks each batch until release is closed.
type fakeRunner struct {
	mu         sync.Mutex
	windows    []procurement.Window
	normalized int
	started    chan struct{}
	release    chan struct{}
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 4), release: make(chan struct{})}
}

func (f *fakeRunner) Sync(ctx context.Context, w procurement.Window) *ingest.Result {
	f.mu.Lock()
	f.windows = append(f.windows, w)
	f.mu.Unlock()
	f.started <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return &ingest.Result{Status: database.BatchSuccess}
}

func (f *fakeRunner) Normalize(ctx context.Context) *normalize.Result {
	f.mu.Lock()
	f.normalized++
	f.mu.Unlock()
	f.started <- struct{}{}
	select {
	case <-f.release:
	case <-ctx.Done():
	}
	return &normalize.Result{Status: database.BatchSuccess}
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, runner Runner, db *database.DB) *Server {
	t.Helper()
	s := New(runner, db, prometheus.NewRegistry(), token, zaptest.NewLogger(t))
	t.Cleanup(s.Close)
	return s
}

func do(s *Server, method, target, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if tok != "" {
		req.Header.Set("X-Admin-Token", tok)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, newFakeRunner(), openTestDB(t))
	rec := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.AddRecords("inserted", 3)
	s := New(newFakeRunner(), openTestDB(t), reg, token, zaptest.NewLogger(t))
	t.Cleanup(s.Close)

	rec := do(s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `procsync_sync_records_total{outcome="inserted"} 3`)
}

func TestBatchRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, newFakeRunner(), openTestDB(t))

	for _, tok := range []string{"", "wrong"} {
		rec := do(s, http.MethodPost, "/batch/sync", tok)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/batch/runs", "").Code)
}

func TestEmptyTokenRejectsEverything(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := New(newFakeRunner(), openTestDB(t), reg, "", zaptest.NewLogger(t))
	t.Cleanup(s.Close)

	rec := do(s, http.MethodPost, "/batch/normalize", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncTriggerAcceptsAndConflicts(t *testing.T) {
	runner := newFakeRunner()
	s := newTestServer(t, runner, openTestDB(t))

	rec := do(s, http.MethodPost, "/batch/sync?end_date=20250115&days_back=3", token)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "20250112", body["start_date"])
	assert.Equal(t, "20250115", body["end_date"])

	<-runner.started
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/batch/normalize", token).Code)
	assert.Equal(t, http.StatusConflict, do(s, http.MethodPost, "/batch/sync", token).Code)

	close(runner.release)
	s.Wait()

	assert.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/batch/normalize", token).Code)
	<-runner.started
	s.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.windows, 1)
	assert.Equal(t, "20250112", runner.windows[0].StartParam())
	assert.Equal(t, 1, runner.normalized)
}

func TestSyncTriggerRejectsBadParams(t *testing.T) {
	s := newTestServer(t, newFakeRunner(), openTestDB(t))

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/batch/sync?end_date=2025-01-15", token).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/batch/sync?days_back=x", token).Code)
	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodPost, "/batch/sync?days_back=-1", token).Code)
}

func TestCloseCancelsRunningBatch(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, openTestDB(t), prometheus.NewRegistry(), token, zaptest.NewLogger(t))

	require.Equal(t, http.StatusAccepted, do(s, http.MethodPost, "/batch/sync", token).Code)
	<-runner.started
	s.Close()
}

func TestTriggerAfterCloseIsRejected(t *testing.T) {
	runner := newFakeRunner()
	s := New(runner, openTestDB(t), prometheus.NewRegistry(), token, zaptest.NewLogger(t))
	s.Close()

	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodPost, "/batch/sync", token).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(s, http.MethodPost, "/batch/normalize", token).Code)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.windows)
	assert.Zero(t, runner.normalized)
}

func TestConcurrentTriggersAndClose(t *testing.T) {
	runner := newFakeRunner()
	close(runner.release)
	runner.started = make(chan struct{}, 64)
	s := New(runner, openTestDB(t), prometheus.NewRegistry(), token, zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code := do(s, http.MethodPost, "/batch/normalize", token).Code
			assert.Contains(t, []int{http.StatusAccepted, http.StatusConflict, http.StatusServiceUnavailable}, code)
		}()
	}
	s.Close()
	wg.Wait()
	s.Wait()
}

func TestRunsListsLedger(t *testing.T) {
	db := openTestDB(t)
	id, err := db.StartBatchLog("procurement_delivery_sync")
	require.NoError(t, err)
	details := `{"pages":2}`
	require.NoError(t, db.CompleteBatchLog(id, database.BatchSuccess,
		database.BatchCounters{Total: 140, Success: 140, APICalls: 2}, nil, &details))
	_, err = db.StartBatchLog("data_normalization")
	require.NoError(t, err)

	s := newTestServer(t, newFakeRunner(), db)

	rec := do(s, http.MethodGet, "/batch/runs", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []struct {
		ID        int64                  `json:"id"`
		BatchName string                 `json:"batch_name"`
		Status    string                 `json:"status"`
		Counters  database.BatchCounters `json:"counters"`
		Details   map[string]int         `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, "data_normalization", runs[0].BatchName)
	assert.Equal(t, "RUNNING", runs[0].Status)
	assert.Equal(t, 140, runs[1].Counters.Success)
	assert.Equal(t, 2, runs[1].Details["pages"])

	rec = do(s, http.MethodGet, "/batch/runs?batch=data_normalization&limit=5", token)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/batch/runs?limit=0", token).Code)
}
