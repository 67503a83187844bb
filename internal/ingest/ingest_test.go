package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/filter"
	"github.com/rejintech/procsync/internal/ledger"
	"github.com/rejintech/procsync/internal/procurement"
)

const allowedBizno = "1234567890"

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// items renders n upstream items for page, each with a distinct request number.
func items(page, n int, bizno string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(
			`{"dlvrReqNo":"R%02d%03d","prdctSno":"1","cntrctCorpBizno":%q,"dlvrReqQty":"1","dlvrReqAmt":"1,000","dlvrReqRcptDate":"20250115"}`,
			page, i, bizno,
		)
	}
	return out
}

func body(list []string) string {
	return `{"response":{"header":{"resultCode":"00"},"body":{"totalCount":140,"items":[` + strings.Join(list, ",") + `]}}}`
}

// upstream serves pages from the map; pages not present return 500.
type upstream struct {
	pages map[int]string
	calls int32
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&u.calls, 1)
	page, _ := strconv.Atoi(r.URL.Query().Get("pageNo"))
	b, ok := u.pages[page]
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(b))
}

type fixture struct {
	db     *database.DB
	syncer *Syncer
	up     *upstream
}

func newFixture(t *testing.T, up *upstream, filtering bool, serviceKey string) *fixture {
	t.Helper()
	db := openTestDB(t)
	_, err := db.AddFilteringCompany(allowedBizno, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	client := procurement.NewClient(procurement.Config{
		BaseURL:    srv.URL,
		Operation:  "getDlvrReqDtlInfoList",
		ServiceKey: serviceKey,
		RetryCount: 1,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Second,
	}, logger)

	syncer := NewSyncer(Config{
		BatchName:                  "procurement_delivery_sync",
		NumOfRows:                  100,
		MaxConsecutivePageFailures: 3,
	}, client, filter.NewGate(db, filtering, logger), db, ledger.New(db, logger, nil), logger, nil)
	return &fixture{db: db, syncer: syncer, up: up}
}

func testWindow(t *testing.T) procurement.Window {
	w, err := procurement.NewWindow("20250115", 1, time.Now())
	require.NoError(t, err)
	return w
}

func TestSyncTwoPages(t *testing.T) {
	up := &upstream{pages: map[int]string{
		1: body(items(1, 100, allowedBizno)),
		2: body(items(2, 40, allowedBizno)),
	}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	require.NoError(t, r.Err)
	assert.Equal(t, database.BatchSuccess, r.Status)
	assert.EqualValues(t, 2, atomic.LoadInt32(&up.calls))
	assert.Equal(t, 2, r.APICalls)
	assert.Equal(t, 140, r.Total)
	assert.Equal(t, 140, r.Inserted)
	assert.Equal(t, 140, r.TotalCount)

	n, _ := f.db.CountDeliveryDetails()
	assert.Equal(t, 140, n)

	b, err := f.db.GetBatchLog(r.BatchLogID)
	require.NoError(t, err)
	assert.Equal(t, database.BatchSuccess, b.Status)
	assert.Equal(t, database.BatchCounters{Total: 140, Success: 140, APICalls: 2}, b.Counters)
	assert.Nil(t, b.ErrorMessage)

	calls, err := f.db.GetAPICalls(r.BatchLogID)
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, 200, calls[0].ResponseCode)
	assert.NotContains(t, calls[0].APIURL, "serviceKey=key")
	require.NotNil(t, calls[1].RequestParams)
	assert.Contains(t, *calls[1].RequestParams, `"pageNo":"2"`)
}

func TestSyncFirstPageFailureClosesFailed(t *testing.T) {
	up := &upstream{pages: map[int]string{}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchFailed, r.Status)
	require.Error(t, r.Err)
	assert.Equal(t, 1, r.APICalls)
	assert.EqualValues(t, 2, atomic.LoadInt32(&up.calls), "one attempt plus one retry")

	n, _ := f.db.CountDeliveryDetails()
	assert.Zero(t, n)

	b, _ := f.db.GetBatchLog(r.BatchLogID)
	assert.Equal(t, database.BatchFailed, b.Status)
	require.NotNil(t, b.ErrorMessage)
	assert.Contains(t, *b.ErrorMessage, "HTTP error: 500")

	calls, _ := f.db.GetAPICalls(r.BatchLogID)
	require.Len(t, calls, 1)
	assert.Equal(t, "FAILED", calls[0].Status)
	assert.Equal(t, 2, calls[0].Attempts)
}

func TestSyncMissingServiceKey(t *testing.T) {
	up := &upstream{pages: map[int]string{1: body(items(1, 1, allowedBizno))}}
	f := newFixture(t, up, true, "")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchFailed, r.Status)
	assert.Zero(t, atomic.LoadInt32(&up.calls))
}

func TestSyncIsIdempotent(t *testing.T) {
	up := &upstream{pages: map[int]string{1: body(items(1, 30, allowedBizno))}}
	f := newFixture(t, up, true, "key")

	first := f.syncer.Sync(context.Background(), testWindow(t))
	second := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, 30, first.Inserted)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 30, second.Updated)
	assert.Equal(t, 30, second.Success())

	n, _ := f.db.CountDeliveryDetails()
	assert.Equal(t, 30, n)
}

func TestSyncFiltersUnlistedCompanies(t *testing.T) {
	list := append(items(1, 3, allowedBizno), items(2, 2, "9999999999")...)
	list = append(list, items(3, 1, "")...)
	up := &upstream{pages: map[int]string{1: body(list)}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, 6, r.Total)
	assert.Equal(t, 3, r.Inserted)
	assert.Equal(t, 3, r.Filtered)
	assert.Zero(t, r.Errors)

	b, _ := f.db.GetBatchLog(r.BatchLogID)
	assert.Equal(t, 3, b.Counters.Filtered)
}

func TestSyncWithoutFilteringStoresEverything(t *testing.T) {
	list := append(items(1, 3, allowedBizno), items(2, 2, "9999999999")...)
	up := &upstream{pages: map[int]string{1: body(list)}}
	f := newFixture(t, up, false, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, 5, r.Inserted)
	assert.Zero(t, r.Filtered)
}

func TestSyncCountsInvalidRecords(t *testing.T) {
	list := append(items(1, 2, allowedBizno),
		`{"dlvrReqNo":"","prdctSno":"1","cntrctCorpBizno":"1234567890"}`,
		`{"dlvrReqNo":"X1","prdctSno":"abc","cntrctCorpBizno":"1234567890"}`,
	)
	up := &upstream{pages: map[int]string{1: body(list)}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchSuccess, r.Status)
	assert.Equal(t, 2, r.Total, "invalid records are errors, not processed records")
	assert.Equal(t, 2, r.Inserted)
	assert.Equal(t, 2, r.Errors)

	b, err := f.db.GetBatchLog(r.BatchLogID)
	require.NoError(t, err)
	assert.Equal(t, database.BatchCounters{Total: 2, Success: 2, Error: 2, APICalls: 1}, b.Counters)
}

func TestSyncSkipsFailedMiddlePage(t *testing.T) {
	up := &upstream{pages: map[int]string{
		1: body(items(1, 100, allowedBizno)),
		// page 2 missing: 500
		3: body(items(3, 10, allowedBizno)),
	}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchSuccess, r.Status)
	assert.Equal(t, 3, r.APICalls)
	assert.Equal(t, 1, r.FailedPages)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 110, r.Inserted)
	assert.False(t, r.StoppedEarly)
}

func TestSyncStopsAfterConsecutiveFailures(t *testing.T) {
	up := &upstream{pages: map[int]string{1: body(items(1, 100, allowedBizno))}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchSuccess, r.Status)
	assert.True(t, r.StoppedEarly)
	assert.Equal(t, 4, r.APICalls)
	assert.Equal(t, 3, r.FailedPages)
	assert.Equal(t, 100, r.Inserted)

	b, _ := f.db.GetBatchLog(r.BatchLogID)
	require.NotNil(t, b.ErrorMessage)
	assert.Contains(t, *b.ErrorMessage, "3 consecutive failed pages")
}

func TestSyncStopsOnMalformedEnvelope(t *testing.T) {
	up := &upstream{pages: map[int]string{
		1: body(items(1, 100, allowedBizno)),
		2: `<OpenAPI_ServiceResponse/>`,
		3: body(items(3, 10, allowedBizno)),
	}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchSuccess, r.Status)
	assert.Equal(t, 2, r.APICalls)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 100, r.Inserted)
	assert.Contains(t, r.Message, "malformed response envelope")
}

func TestSyncEmptyFirstPage(t *testing.T) {
	up := &upstream{pages: map[int]string{1: `{"response":{"body":{"totalCount":0,"items":""}}}`}}
	f := newFixture(t, up, true, "key")

	r := f.syncer.Sync(context.Background(), testWindow(t))
	assert.Equal(t, database.BatchSuccess, r.Status)
	assert.Equal(t, 1, r.APICalls)
	assert.Zero(t, r.Total)
}

func TestSyncCancelledBetweenPages(t *testing.T) {
	up := &upstream{pages: map[int]string{
		1: body(items(1, 100, allowedBizno)),
		2: body(items(2, 10, allowedBizno)),
	}}
	f := newFixture(t, up, true, "key")
	f.syncer.cfg.PageDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	r := f.syncer.Sync(ctx, testWindow(t))
	assert.Equal(t, database.BatchFailed, r.Status)
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Equal(t, 100, r.Inserted)
}
