// Package ledger records batch runs in batch_logs. Each run is opened once
// and closed exactly once.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/metrics"
)

// ErrClosed is returned when closing a run that is already closed.
var ErrClosed = errors.New("batch run already closed")

// Store persists ledger rows.
type Store interface {
	StartBatchLog(batchName string) (int64, error)
	CompleteBatchLog(id int64, status database.BatchStatus, c database.BatchCounters, errMsg, details *string) error
}

// Ledger opens batch runs.
type Ledger struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a ledger over store. m may be nil.
func New(store Store, logger *zap.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{store: store, logger: logger, metrics: m, now: time.Now}
}

// Run is one open batch run.
type Run struct {
	ID      int64
	Name    string
	started time.Time
	ledger  *Ledger

	mu     sync.Mutex
	closed bool
	status database.BatchStatus
}

// Start opens a RUNNING entry for batchName.
func (l *Ledger) Start(batchName string) (*Run, error) {
	id, err := l.store.StartBatchLog(batchName)
	if err != nil {
		return nil, fmt.Errorf("opening batch run %q: %w", batchName, err)
	}
	l.logger.Info("batch started", zap.String("batch", batchName), zap.Int64("batch_log_id", id))
	return &Run{ID: id, Name: batchName, started: l.now(), ledger: l}, nil
}

// Succeed closes the run as SUCCESS. errMsg records a non-fatal problem such
// as an early stop; details is marshalled to JSON when non-nil.
func (r *Run) Succeed(c database.BatchCounters, errMsg string, details any) error {
	return r.close(database.BatchSuccess, c, errMsg, details)
}

// Fail closes the run as FAILED with the causing error.
func (r *Run) Fail(c database.BatchCounters, cause error, details any) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return r.close(database.BatchFailed, c, msg, details)
}

// Closed reports whether the run has been closed, and with which status.
func (r *Run) Closed() (bool, database.BatchStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed, r.status
}

func (r *Run) close(status database.BatchStatus, c database.BatchCounters, errMsg string, details any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	var msgPtr, detailsPtr *string
	if errMsg != "" {
		msgPtr = &errMsg
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encoding batch details: %w", err)
		}
		s := string(data)
		detailsPtr = &s
	}

	if err := r.ledger.store.CompleteBatchLog(r.ID, status, c, msgPtr, detailsPtr); err != nil {
		return err
	}
	r.closed = true
	r.status = status

	elapsed := r.ledger.now().Sub(r.started)
	r.ledger.metrics.ObserveBatch(r.Name, string(status), elapsed)

	fields := []zap.Field{
		zap.String("batch", r.Name),
		zap.Int64("batch_log_id", r.ID),
		zap.String("status", string(status)),
		zap.Int("total", c.Total),
		zap.Int("success", c.Success),
		zap.Int("filtered", c.Filtered),
		zap.Int("error", c.Error),
		zap.Int("api_calls", c.APICalls),
		zap.Duration("elapsed", elapsed),
	}
	if errMsg != "" {
		fields = append(fields, zap.String("error_message", errMsg))
	}
	if status == database.BatchFailed {
		r.ledger.logger.Error("batch failed", fields...)
	} else {
		r.ledger.logger.Info("batch finished", fields...)
	}
	return nil
}
