// Package ingest pages through the upstream delivery-request listing and
// stores allow-listed records.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/filter"
	"github.com/rejintech/procsync/internal/ledger"
	"github.com/rejintech/procsync/internal/metrics"
	"github.com/rejintech/procsync/internal/procurement"
)

// Fetcher retrieves one upstream page.
type Fetcher interface {
	Fetch(ctx context.Context, req procurement.PageRequest) *procurement.FetchResult
	Operation() string
}

// Store persists raw records and the call history.
type Store interface {
	UpsertDeliveryDetail(d *database.DeliveryDetail) (int64, bool, error)
	InsertAPICall(c *database.APICall) (int64, error)
}

// Config controls paging.
type Config struct {
	BatchName                  string
	NumOfRows                  int
	PageDelay                  time.Duration
	MaxConsecutivePageFailures int
}

// Result holds the outcome of one sync run.
type Result struct {
	BatchLogID   int64
	Status       database.BatchStatus
	Window       procurement.Window
	TotalCount   int // as reported by upstream on page 1
	Pages        int
	FailedPages  int
	APICalls     int
	Total        int // stored plus filtered; errors are counted separately
	Inserted     int
	Updated      int
	Filtered     int
	Errors       int
	StoppedEarly bool
	// Message is the ledger error message, if any. For SUCCESS runs it
	// describes a non-fatal problem.
	Message string
	Err     error
}

// Success is the number of records stored.
func (r *Result) Success() int { return r.Inserted + r.Updated }

// Counters returns the ledger counters for this run.
func (r *Result) Counters() database.BatchCounters {
	return database.BatchCounters{
		Total:    r.Total,
		Success:  r.Success(),
		Filtered: r.Filtered,
		Error:    r.Errors,
		APICalls: r.APICalls,
	}
}

func (r *Result) details() map[string]any {
	return map[string]any{
		"start_date":    r.Window.StartParam(),
		"end_date":      r.Window.EndParam(),
		"total_count":   r.TotalCount,
		"pages":         r.Pages,
		"failed_pages":  r.FailedPages,
		"inserted":      r.Inserted,
		"updated":       r.Updated,
		"stopped_early": r.StoppedEarly,
	}
}

// Syncer runs the page loop: fetch, transform, filter, upsert.
type Syncer struct {
	cfg     Config
	client  Fetcher
	gate    *filter.Gate
	store   Store
	ledger  *ledger.Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   clock.Clock
}

// NewSyncer creates a syncer. m may be nil.
func NewSyncer(cfg Config, client Fetcher, gate *filter.Gate, store Store, l *ledger.Ledger, logger *zap.Logger, m *metrics.Metrics) *Syncer {
	if cfg.NumOfRows < 1 || cfg.NumOfRows > procurement.MaxRowsPerPage {
		cfg.NumOfRows = procurement.MaxRowsPerPage
	}
	if cfg.MaxConsecutivePageFailures < 1 {
		cfg.MaxConsecutivePageFailures = 3
	}
	return &Syncer{
		cfg:     cfg,
		client:  client,
		gate:    gate,
		store:   store,
		ledger:  l,
		logger:  logger,
		metrics: m,
		clock:   clock.WallClock,
	}
}

// Sync ingests every page for the window. The returned result is never nil.
// A failure to fetch the first page closes the run FAILED; later page
// failures are skipped until MaxConsecutivePageFailures in a row.
func (s *Syncer) Sync(ctx context.Context, w procurement.Window) *Result {
	r := &Result{Window: w}

	run, err := s.ledger.Start(s.cfg.BatchName)
	if err != nil {
		r.Status = database.BatchFailed
		r.Err = err
		return r
	}
	r.BatchLogID = run.ID
	log := s.logger.With(zap.Int64("batch_log_id", run.ID), zap.Stringer("window", w))
	log.Info("sync started", zap.Bool("filtering", s.gate.Enabled()))

	consecutiveFailures := 0
	for page := 1; ; page++ {
		if page > 1 {
			if err := s.wait(ctx); err != nil {
				return s.fail(run, r, fmt.Errorf("sync cancelled before page %d: %w", page, err))
			}
		}

		res := s.client.Fetch(ctx, procurement.PageRequest{PageNo: page, NumOfRows: s.cfg.NumOfRows, Window: w})
		r.APICalls++
		s.recordCall(run.ID, res, log)

		if !res.Success {
			if page == 1 || ctx.Err() != nil {
				return s.fail(run, r, res.Err)
			}
			r.Errors++
			r.FailedPages++
			consecutiveFailures++
			log.Warn("skipping failed page",
				zap.Int("page", page),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Error(res.Err))
			if consecutiveFailures >= s.cfg.MaxConsecutivePageFailures {
				r.StoppedEarly = true
				r.Message = fmt.Sprintf("stopped after %d consecutive failed pages (last page %d): %v",
					consecutiveFailures, page, res.Err)
				break
			}
			continue
		}
		consecutiveFailures = 0

		p, err := procurement.ParsePage(res.Body)
		if err != nil {
			r.Errors++
			r.Message = fmt.Sprintf("page %d: %v", page, err)
			log.Error("unusable response envelope", zap.Int("page", page), zap.Error(err))
			break
		}
		r.Pages++
		if page == 1 {
			r.TotalCount = p.TotalCount
		}

		s.processPage(p.Items, r, log)
		log.Info("page processed",
			zap.Int("page", page),
			zap.Int("items", len(p.Items)),
			zap.Int("total_count", r.TotalCount))

		if len(p.Items) < s.cfg.NumOfRows {
			break
		}
	}

	r.Status = database.BatchSuccess
	if err := run.Succeed(r.Counters(), r.Message, r.details()); err != nil {
		log.Error("closing batch run", zap.Error(err))
		r.Err = err
	}
	return r
}

func (s *Syncer) fail(run *ledger.Run, r *Result, cause error) *Result {
	if cause == nil {
		cause = errors.New("unknown fetch failure")
	}
	r.Status = database.BatchFailed
	r.Err = cause
	r.Message = cause.Error()
	if err := run.Fail(r.Counters(), cause, r.details()); err != nil {
		s.logger.Error("closing batch run", zap.Int64("batch_log_id", run.ID), zap.Error(err))
	}
	return r
}

func (s *Syncer) processPage(items []procurement.Item, r *Result, log *zap.Logger) {
	var stored, filtered, failed int
	for _, it := range items {
		d := procurement.Transform(it)
		if !d.Valid() {
			failed++
			log.Warn("record without natural key",
				zap.String("dlvr_req_no", d.RequestNo),
				zap.Int("dlvr_req_dtl_seq", d.LineSeq))
			continue
		}

		var bizno string
		if d.BusinessNo != nil {
			bizno = *d.BusinessNo
		}
		ok, err := s.gate.IsAllowed(bizno)
		if err != nil {
			failed++
			log.Error("allow-list lookup failed", zap.String("dlvr_req_no", d.RequestNo), zap.Error(err))
			continue
		}
		if !ok {
			filtered++
			r.Total++
			continue
		}

		_, created, err := s.store.UpsertDeliveryDetail(&d)
		if err != nil {
			failed++
			log.Error("storing record",
				zap.String("dlvr_req_no", d.RequestNo),
				zap.Int("dlvr_req_dtl_seq", d.LineSeq),
				zap.Error(err))
			continue
		}
		stored++
		r.Total++
		if created {
			r.Inserted++
		} else {
			r.Updated++
		}
	}
	r.Filtered += filtered
	r.Errors += failed
	s.metrics.AddRecords("stored", stored)
	s.metrics.AddRecords("filtered", filtered)
	s.metrics.AddRecords("error", failed)
}

func (s *Syncer) recordCall(batchID int64, res *procurement.FetchResult, log *zap.Logger) {
	call := &database.APICall{
		BatchLogID:   &batchID,
		APIName:      s.client.Operation(),
		APIURL:       res.URL,
		ResponseCode: res.HTTPStatus,
		ResponseTime: res.Elapsed.Milliseconds(),
		Attempts:     res.Attempts,
		Status:       "SUCCESS",
	}
	if len(res.Params) > 0 {
		flat := make(map[string]string, len(res.Params))
		for k := range res.Params {
			flat[k] = res.Params.Get(k)
		}
		if data, err := json.Marshal(flat); err == nil {
			params := string(data)
			call.RequestParams = &params
		}
	}
	if !res.Success {
		call.Status = "FAILED"
		if res.Err != nil {
			msg := res.Err.Error()
			call.ErrorMessage = &msg
		}
	}
	if _, err := s.store.InsertAPICall(call); err != nil {
		log.Warn("recording api call", zap.Error(err))
	}
}

func (s *Syncer) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.cfg.PageDelay <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.cfg.PageDelay):
		return nil
	}
}
