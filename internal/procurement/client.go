// Package procurement talks to the Public Procurement Service delivery-request
// detail API and maps its items to raw records.
package procurement

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"
	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/metrics"
)

// MaxRowsPerPage is the largest page size the upstream service accepts.
const MaxRowsPerPage = 100

const redacted = "REDACTED"

// Config holds the upstream connection settings.
type Config struct {
	BaseURL      string
	Operation    string
	ServiceKey   string
	ResponseType string
	InquiryDiv   int
	Timeout      time.Duration
	RetryCount   int
	RetryDelay   time.Duration
	UserAgent    string
}

// PageRequest identifies one page of the delivery-request listing.
type PageRequest struct {
	PageNo    int
	NumOfRows int
	Window    Window
}

// FetchResult is the outcome of one page fetch, including retries.
type FetchResult struct {
	Success    bool
	HTTPStatus int
	Elapsed    time.Duration
	Attempts   int
	// URL and Params have the service key redacted.
	URL    string
	Params url.Values
	Body   []byte
	Err    error
}

// Client fetches pages from the upstream API.
type Client struct {
	cfg     Config
	http    *http.Client
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock sets the clock used for retry delays and timing.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithMetrics records call counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates an upstream client.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if cfg.ResponseType == "" {
		cfg.ResponseType = "json"
	}
	if cfg.InquiryDiv == 0 {
		cfg.InquiryDiv = 1
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		clock:  clock.WallClock,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Operation returns the upstream operation name.
func (c *Client) Operation() string { return c.cfg.Operation }

// IsConfigured reports whether a service key is available.
func (c *Client) IsConfigured() bool { return c.cfg.ServiceKey != "" }

// Fetch requests one page, retrying transport errors and non-2xx responses
// up to RetryCount extra times. It never returns nil and never panics; the
// outcome, including failure, is carried on the result.
func (c *Client) Fetch(ctx context.Context, req PageRequest) *FetchResult {
	params := c.params(req)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/" + c.cfg.Operation

	shown := cloneValues(params)
	shown.Set("serviceKey", redacted)
	res := &FetchResult{
		URL:    endpoint + "?" + shown.Encode(),
		Params: shown,
	}
	if !c.IsConfigured() {
		res.Err = errors.New("service key is not configured")
		return res
	}

	fullURL := endpoint + "?" + params.Encode()
	delay := c.cfg.RetryDelay
	if delay <= 0 {
		delay = time.Millisecond
	}

	start := c.clock.Now()
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			res.Attempts++
			status, body, err := c.get(ctx, fullURL)
			res.HTTPStatus = status
			if err != nil {
				return err
			}
			res.Body = body
			return nil
		},
		IsFatalError: func(error) bool {
			return ctx.Err() != nil
		},
		NotifyFunc: func(err error, attempt int) {
			c.logger.Warn("upstream call failed",
				zap.String("operation", c.cfg.Operation),
				zap.Int("page", req.PageNo),
				zap.Int("attempt", attempt),
				zap.Int("status", res.HTTPStatus),
				zap.Error(err))
		},
		Attempts: c.cfg.RetryCount + 1,
		Delay:    delay,
		Clock:    c.clock,
		Stop:     ctx.Done(),
	})
	res.Elapsed = c.clock.Now().Sub(start)

	switch {
	case err == nil:
		res.Success = true
	case ctx.Err() != nil:
		res.Err = errors.Annotatef(ctx.Err(), "fetching page %d cancelled", req.PageNo)
	case retry.IsAttemptsExceeded(err):
		res.Err = errors.Annotatef(retry.LastError(err), "fetching page %d (max retries: %d)", req.PageNo, c.cfg.RetryCount)
	default:
		res.Err = errors.Annotatef(err, "fetching page %d", req.PageNo)
	}
	c.metrics.ObserveAPICall(c.cfg.Operation, res.Success, res.Elapsed)
	return res
}

func (c *Client) params(req PageRequest) url.Values {
	rows := req.NumOfRows
	if rows < 1 {
		rows = 1
	}
	if rows > MaxRowsPerPage {
		rows = MaxRowsPerPage
	}
	page := req.PageNo
	if page < 1 {
		page = 1
	}

	v := url.Values{}
	v.Set("serviceKey", c.cfg.ServiceKey)
	v.Set("type", c.cfg.ResponseType)
	v.Set("inqryDiv", strconv.Itoa(c.cfg.InquiryDiv))
	v.Set("pageNo", strconv.Itoa(page))
	v.Set("numOfRows", strconv.Itoa(rows))
	v.Set("startDate", req.Window.StartParam())
	v.Set("endDate", req.Window.EndParam())
	return v
}

func (c *Client) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, errors.Annotate(err, "building request")
	}
	req.Header.Set("Accept", "*/*")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// net/http embeds the full URL in transport errors.
		msg := strings.NewReplacer(
			url.QueryEscape(c.cfg.ServiceKey), redacted,
			c.cfg.ServiceKey, redacted,
		).Replace(err.Error())
		return 0, nil, errors.New(msg)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, errors.Annotate(err, "reading response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, nil, fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}
	return resp.StatusCode, body, nil
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
