package procurement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	return NewClient(Config{
		BaseURL:    url,
		Operation:  "getDlvrReqDtlInfoList",
		ServiceKey: "secret+key",
		RetryCount: retries,
		RetryDelay: time.Millisecond,
		Timeout:    5 * time.Second,
		UserAgent:  "procsync-test",
	}, zaptest.NewLogger(t))
}

func testWindow() Window {
	w, _ := NewWindow("20250115", 1, time.Now())
	return w
}

func TestFetchSendsParameters(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Write([]byte(pageJSON(1, 1, 1)))
	}))
	defer srv.Close()

	res := testClient(t, srv.URL, 0).Fetch(context.Background(), PageRequest{PageNo: 2, NumOfRows: 500, Window: testWindow()})
	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Equal(t, 1, res.Attempts)
	assert.NotEmpty(t, res.Body)

	require.NotNil(t, got)
	assert.Equal(t, "/getDlvrReqDtlInfoList", got.URL.Path)
	q := got.URL.Query()
	assert.Equal(t, "secret+key", q.Get("serviceKey"))
	assert.Equal(t, "json", q.Get("type"))
	assert.Equal(t, "1", q.Get("inqryDiv"))
	assert.Equal(t, "2", q.Get("pageNo"))
	assert.Equal(t, "100", q.Get("numOfRows"), "page size is clamped")
	assert.Equal(t, "20250114", q.Get("startDate"))
	assert.Equal(t, "20250115", q.Get("endDate"))
	assert.Equal(t, "procsync-test", got.Header.Get("User-Agent"))

	assert.NotContains(t, res.URL, "secret")
	assert.Equal(t, redacted, res.Params.Get("serviceKey"))
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(pageJSON(0, 1, 0)))
	}))
	defer srv.Close()

	res := testClient(t, srv.URL, 3).Fetch(context.Background(), PageRequest{PageNo: 1, NumOfRows: 10, Window: testWindow()})
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestFetchExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := testClient(t, srv.URL, 2).Fetch(context.Background(), PageRequest{PageNo: 1, NumOfRows: 10, Window: testWindow()})
	assert.False(t, res.Success)
	assert.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "HTTP error: 500")
	assert.Contains(t, res.Err.Error(), "max retries: 2")
}

func TestFetchTransportErrorIsRedacted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := testClient(t, url, 0).Fetch(context.Background(), PageRequest{PageNo: 1, NumOfRows: 10, Window: testWindow()})
	assert.False(t, res.Success)
	require.Error(t, res.Err)
	assert.NotContains(t, res.Err.Error(), "secret")
}

func TestFetchCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := testClient(t, srv.URL, 5).Fetch(ctx, PageRequest{PageNo: 1, NumOfRows: 10, Window: testWindow()})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.LessOrEqual(t, res.Attempts, 1)
}

func TestFetchWithoutServiceKey(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://example.invalid", Operation: "op"}, zaptest.NewLogger(t))
	assert.False(t, c.IsConfigured())
	res := c.Fetch(context.Background(), PageRequest{PageNo: 1, NumOfRows: 10, Window: testWindow()})
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.Attempts)
	assert.Error(t, res.Err)
}
