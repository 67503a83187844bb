// Package pipeline wires the configured client, filtering gate and ledger into
// the sync and normalization batches.
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rejintech/procsync/internal/config"
	"github.com/rejintech/procsync/internal/database"
	"github.com/rejintech/procsync/internal/filter"
	"github.com/rejintech/procsync/internal/ingest"
	"github.com/rejintech/procsync/internal/ledger"
	"github.com/rejintech/procsync/internal/metrics"
	"github.com/rejintech/procsync/internal/normalize"
	"github.com/rejintech/procsync/internal/procurement"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Status  database.BatchStatus
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	Window procurement.Window
	Steps  []StepResult
}

// Failed reports whether any step closed FAILED.
func (r *Result) Failed() bool {
	for _, s := range r.Steps {
		if s.Status == database.BatchFailed {
			return true
		}
	}
	return false
}

// Pipeline runs the sync and normalization batches against one database.
type Pipeline struct {
	cfg    *config.Config
	db     *database.DB
	client *procurement.Client
	syncer *ingest.Syncer
	engine *normalize.Engine
	logger *zap.Logger
}

// New creates a pipeline from cfg. m may be nil.
func New(cfg *config.Config, db *database.DB, logger *zap.Logger, m *metrics.Metrics, opts ...procurement.Option) *Pipeline {
	p := cfg.Procurement
	client := procurement.NewClient(procurement.Config{
		BaseURL:      p.BaseURL,
		Operation:    p.Operation,
		ServiceKey:   cfg.ServiceKey(),
		ResponseType: p.ResponseType,
		InquiryDiv:   p.InquiryDiv,
		Timeout:      p.Timeout,
		RetryCount:   p.RetryCount,
		RetryDelay:   p.RetryDelay,
		UserAgent:    p.UserAgent,
	}, logger, append([]procurement.Option{procurement.WithMetrics(m)}, opts...)...)

	l := ledger.New(db, logger, m)
	gate := filter.NewGate(db, cfg.Sync.Filtering, logger)

	syncer := ingest.NewSyncer(ingest.Config{
		BatchName:                  cfg.Sync.BatchName,
		NumOfRows:                  p.NumOfRows,
		PageDelay:                  p.PageDelay,
		MaxConsecutivePageFailures: p.MaxConsecutivePageFailures,
	}, client, gate, db, l, logger, m)

	engine := normalize.NewEngine(normalize.Config{
		BatchName: cfg.Normalization.BatchName,
		BatchSize: cfg.Normalization.BatchSize,
	}, db, l, logger, m)

	return &Pipeline{
		cfg:    cfg,
		db:     db,
		client: client,
		syncer: syncer,
		engine: engine,
		logger: logger,
	}
}

// Client returns the configured upstream client.
func (p *Pipeline) Client() *procurement.Client {
	return p.client
}

// Sync runs one ingestion batch over w.
func (p *Pipeline) Sync(ctx context.Context, w procurement.Window) *ingest.Result {
	return p.syncer.Sync(ctx, w)
}

// Normalize runs one normalization batch.
func (p *Pipeline) Normalize(ctx context.Context) *normalize.Result {
	return p.engine.Run(ctx)
}

// Run executes sync then normalize. Normalization is skipped when the sync
// closed FAILED.
func (p *Pipeline) Run(ctx context.Context, w procurement.Window) *Result {
	r := &Result{Window: w}

	p.logger.Info("step 1/2: syncing delivery request details", zap.Stringer("window", w))
	step := syncStep(p.Sync(ctx, w))
	r.Steps = append(r.Steps, step)
	if step.Status == database.BatchFailed {
		return r
	}

	p.logger.Info("step 2/2: normalizing delivery requests")
	r.Steps = append(r.Steps, normalizeStep(p.Normalize(ctx)))
	return r
}

// DryRun shows what would be done without executing.
func (p *Pipeline) DryRun(w procurement.Window) *Result {
	r := &Result{Window: w}

	sync := StepResult{Name: "Sync"}
	switch {
	case !p.client.IsConfigured():
		sync.Summary = fmt.Sprintf("[dry-run] service key not set (%s); sync would fail", p.cfg.Procurement.ServiceKeyEnv)
	case !p.cfg.Sync.Filtering:
		sync.Summary = fmt.Sprintf("[dry-run] would fetch %s %s, filtering disabled", p.client.Operation(), w)
	default:
		active, err := p.db.GetActiveBusinessNumbers()
		if err != nil {
			sync.Err = err
			break
		}
		sync.Summary = fmt.Sprintf("[dry-run] would fetch %s %s, keeping %d allow-listed companies",
			p.client.Operation(), w, len(active))
	}
	r.Steps = append(r.Steps, sync)

	norm := StepResult{Name: "Normalize"}
	raw, err := p.db.CountDeliveryDetails()
	if err != nil {
		norm.Err = err
	} else if groups, err := p.db.CountDeliveryRequestNumbers(); err != nil {
		norm.Err = err
	} else {
		norm.Summary = fmt.Sprintf("[dry-run] would rebuild %d delivery requests from %d raw rows (batch size %d)",
			groups, raw, p.cfg.Normalization.BatchSize)
	}
	r.Steps = append(r.Steps, norm)

	return r
}

func syncStep(res *ingest.Result) StepResult {
	s := StepResult{Name: "Sync", Status: res.Status, Err: res.Err}
	s.Summary = fmt.Sprintf("%d processed, %d inserted, %d updated, %d filtered, %d errors over %d API calls",
		res.Total, res.Inserted, res.Updated, res.Filtered, res.Errors, res.APICalls)
	if res.Message != "" {
		s.Summary += " (" + res.Message + ")"
	}
	return s
}

func normalizeStep(res *normalize.Result) StepResult {
	c := res.Created
	return StepResult{
		Name:   "Normalize",
		Status: res.Status,
		Err:    res.Err,
		Summary: fmt.Sprintf("%d requests, %d items from %d raw rows; new: %d institutions, %d companies, %d contracts, %d categories, %d products; %d groups failed",
			c.DeliveryRequests, c.DeliveryRequestItems, res.Records,
			c.Institutions, c.Companies, c.Contracts, c.Categories, c.Products, res.FailedGroups),
	}
}
