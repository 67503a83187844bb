// Package normalize rebuilds the relational delivery request model from the
// raw delivery_request_details rows.
package normalize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/ledger"
	"github.com/rejintech/procsync/internal/metrics"
)

// DefaultBatchSize is the number of request numbers loaded per batch.
const DefaultBatchSize = 1000

const defaultChangeOrder = "00"

// Config controls batching.
type Config struct {
	BatchName string
	BatchSize int
}

// Counts tallies rows created by a run.
type Counts struct {
	Institutions         int `json:"institutions_created"`
	Companies            int `json:"companies_created"`
	Contracts            int `json:"contracts_created"`
	Categories           int `json:"categories_created"`
	Products             int `json:"products_created"`
	DeliveryRequests     int `json:"delivery_requests_created"`
	DeliveryRequestItems int `json:"delivery_request_items_created"`
}

func (c *Counts) add(o Counts) {
	c.Institutions += o.Institutions
	c.Companies += o.Companies
	c.Contracts += o.Contracts
	c.Categories += o.Categories
	c.Products += o.Products
	c.DeliveryRequests += o.DeliveryRequests
	c.DeliveryRequestItems += o.DeliveryRequestItems
}

// Result holds the outcome of one normalization run.
type Result struct {
	BatchLogID   int64
	Status       database.BatchStatus
	Batches      int
	Records      int
	Groups       int
	FailedGroups int
	Created      Counts
	Err          error
}

// Counters returns the ledger counters for this run.
func (r *Result) Counters() database.BatchCounters {
	return database.BatchCounters{
		Total:   r.Groups,
		Success: r.Created.DeliveryRequests,
		Error:   r.FailedGroups,
	}
}

type details struct {
	Counts
	Records int `json:"records_processed"`
	Batches int `json:"batches"`
}

// Engine groups raw rows by request number and writes one delivery request
// per group, plus its items and any new reference rows.
type Engine struct {
	cfg     Config
	db      *database.DB
	ledger  *ledger.Ledger
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates a normalization engine. m may be nil.
func NewEngine(cfg Config, db *database.DB, l *ledger.Ledger, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Engine{cfg: cfg, db: db, ledger: l, logger: logger, metrics: m}
}

// Run truncates the normalized tables and rebuilds them. A group that fails
// is rolled back and counted; the run continues with the next group.
func (e *Engine) Run(ctx context.Context) *Result {
	r := &Result{}

	run, err := e.ledger.Start(e.cfg.BatchName)
	if err != nil {
		r.Status = database.BatchFailed
		r.Err = err
		return r
	}
	r.BatchLogID = run.ID
	log := e.logger.With(zap.Int64("batch_log_id", run.ID))

	if err := e.db.TruncateNormalized(); err != nil {
		return e.fail(run, r, err)
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return e.fail(run, r, fmt.Errorf("normalization cancelled: %w", err))
		}

		numbers, err := e.db.NextRequestNumbers(after, e.cfg.BatchSize)
		if err != nil {
			return e.fail(run, r, fmt.Errorf("listing request numbers after %q: %w", after, err))
		}
		if len(numbers) == 0 {
			break
		}
		first, last := numbers[0], numbers[len(numbers)-1]

		rows, err := e.db.GetDetailsInRequestRange(first, last)
		if err != nil {
			return e.fail(run, r, fmt.Errorf("loading rows %s..%s: %w", first, last, err))
		}
		r.Batches++
		r.Records += len(rows)

		for _, group := range groupByRequest(rows) {
			r.Groups++
			counts, err := e.processGroup(group)
			if err != nil {
				r.FailedGroups++
				log.Error("normalizing delivery request",
					zap.String("dlvr_req_no", group[0].RequestNo),
					zap.Int("rows", len(group)),
					zap.Error(err))
				continue
			}
			r.Created.add(counts)
		}

		log.Debug("batch normalized",
			zap.Int("batch", r.Batches),
			zap.String("from", first),
			zap.String("to", last),
			zap.Int("rows", len(rows)))
		after = last
	}

	e.observe(r.Created)
	r.Status = database.BatchSuccess
	if err := run.Succeed(r.Counters(), "", r.details()); err != nil {
		log.Error("closing batch run", zap.Error(err))
		r.Err = err
	}
	return r
}

func (r *Result) details() details {
	return details{Counts: r.Created, Records: r.Records, Batches: r.Batches}
}

func (e *Engine) fail(run *ledger.Run, r *Result, cause error) *Result {
	e.observe(r.Created)
	r.Status = database.BatchFailed
	r.Err = cause
	if err := run.Fail(r.Counters(), cause, r.details()); err != nil {
		e.logger.Error("closing batch run", zap.Int64("batch_log_id", run.ID), zap.Error(err))
	}
	return r
}

func (e *Engine) observe(c Counts) {
	e.metrics.AddEntities("institution", c.Institutions)
	e.metrics.AddEntities("company", c.Companies)
	e.metrics.AddEntities("contract", c.Contracts)
	e.metrics.AddEntities("category", c.Categories)
	e.metrics.AddEntities("product", c.Products)
	e.metrics.AddEntities("delivery_request", c.DeliveryRequests)
	e.metrics.AddEntities("delivery_request_item", c.DeliveryRequestItems)
}

// groupByRequest splits rows, already ordered by request number, into runs
// sharing the same number.
func groupByRequest(rows []database.DeliveryDetail) [][]database.DeliveryDetail {
	var groups [][]database.DeliveryDetail
	start := 0
	for i := 1; i <= len(rows); i++ {
		if i == len(rows) || rows[i].RequestNo != rows[start].RequestNo {
			groups = append(groups, rows[start:i])
			start = i
		}
	}
	return groups
}

// processGroup writes one delivery request in a single transaction. Counts
// are only returned once the transaction has committed.
func (e *Engine) processGroup(group []database.DeliveryDetail) (Counts, error) {
	var c Counts

	tx, err := e.db.Begin()
	if err != nil {
		return Counts{}, err
	}
	defer tx.Rollback()

	head := &group[0]

	instID, err := resolveInstitution(tx, head, &c)
	if err != nil {
		return Counts{}, err
	}
	companyID, err := resolveCompany(tx, head, &c)
	if err != nil {
		return Counts{}, err
	}
	contractID, err := resolveContract(tx, head, &c)
	if err != nil {
		return Counts{}, err
	}

	req := &database.DeliveryRequest{
		Number:           head.RequestNo,
		ChangeOrder:      orDefault(head.ChangeOrder, defaultChangeOrder),
		Name:             orDefault(head.RequestName, ""),
		RequestDate:      cleanDate(head.RequestDate),
		ReceiptDate:      cleanDate(head.ReceiptDate),
		DeadlineDate:     cleanDate(head.DeadlineDate),
		IntlDeliveryDate: cleanDate(head.IntlDeliveryDate),
		InstitutionID:    instID,
		CompanyID:        companyID,
		ContractID:       contractID,
		IsExcellent:      isYes(head.ExcellentFlag),
		IsFinalDelivery:  isYes(head.FinalDeliveryFlag),
		IsSMEProduct:     isYes(head.SMEFlag),
		DataSyncDate:     head.DataSyncedAt,
	}
	for i := range group {
		req.TotalQuantity += value(group[i].RequestQty)
		req.TotalAmount += value(group[i].RequestAmt)
	}

	reqID, err := tx.InsertDeliveryRequest(req)
	if err != nil {
		return Counts{}, err
	}
	c.DeliveryRequests++

	for i := range group {
		row := &group[i]
		productID, err := resolveProduct(tx, row, &c)
		if err != nil {
			return Counts{}, err
		}
		_, err = tx.InsertDeliveryRequestItem(&database.DeliveryRequestItem{
			DeliveryRequestID: reqID,
			SequenceNumber:    row.LineSeq,
			ProductID:         productID,
			UnitPrice:         value(row.UnitPrice),
			RequestQuantity:   value(row.ProductQty),
			DeliveryQuantity:  value(row.RequestQty),
			IncDecQuantity:    value(row.IncDecQty),
			IncDecAmount:      value(row.IncDecAmt),
			TotalAmount:       value(row.ProductAmt),
			ExpectedDate:      cleanDate(row.DeadlineDate),
		})
		if err != nil {
			return Counts{}, err
		}
		c.DeliveryRequestItems++
	}

	if err := tx.Commit(); err != nil {
		return Counts{}, fmt.Errorf("commit: %w", err)
	}
	return c, nil
}
