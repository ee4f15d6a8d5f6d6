package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opendatafab/sirene-lake/bronze"
	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/gold"
	"github.com/opendatafab/sirene-lake/metrics"
	"github.com/opendatafab/sirene-lake/quality"
	"github.com/opendatafab/sirene-lake/silver"
	"github.com/opendatafab/sirene-lake/store"
	"github.com/opendatafab/sirene-lake/table"
)

// State is the orchestrator's run state.
type State string

const (
	StateIngested   State = "INGESTED"
	StateValidated  State = "VALIDATED"
	StateEnriched   State = "ENRICHED"
	StateAggregated State = "AGGREGATED"
	StatePersisted  State = "PERSISTED"
	StateFailed     State = "FAILED"
)

// Storage is the full storage adapter contract the orchestrator consumes.
// *store.Store implements it; tests substitute an in-memory fake.
type Storage interface {
	ReadPartition(ctx context.Context, layer store.Layer, key string, limit int) (*table.Table, error)
	WritePartition(ctx context.Context, layer store.Layer, key string, t *table.Table) error
	PartitionPath(layer store.Layer, key string) string
	HasPartition(layer store.Layer, key string) bool
	CopyQuery(ctx context.Context, query string, layer store.Layer, key string) error
	RowCount(ctx context.Context, layer store.Layer, key string) (int64, error)
}

// Options holds the resolved run configuration. It is constructed once at
// process start from the environment's config and passed in; no component
// reads ambient state.
type Options struct {
	// RunID identifies the run in the summary and the run lock. Empty
	// generates a fresh one.
	RunID string

	Datasets []bronze.Dataset

	// WithIngest runs bronze ingestion before the silver stage. When
	// false, the latest bronze snapshots are consumed as-is.
	WithIngest bool

	// SampleLimit truncates each bronze batch before validation.
	// 0 = full volume. Sampling changes input volume only, never logic.
	SampleLimit int

	// RejectionThreshold is the batch quality gate (0..1). A batch whose
	// rejection rate exceeds it fails the run before any silver write.
	RejectionThreshold float64

	Enrich silver.EnrichConfig

	KPIs           []gold.KPI
	ReferencePaths map[string]string

	Pool PoolConfig
}

// DatasetSummary reports per-dataset row counts for one run.
type DatasetSummary struct {
	BronzeRows int64 `json:"bronze_rows"`
	Ingested   int   `json:"ingested"`
	Rejected   int   `json:"rejected"`
	Filtered   int   `json:"filtered"`
	Accepted   int   `json:"accepted"`
}

// Summary is the machine-readable run report, emitted on success and failure
// alike so a failed run stays diagnosable.
type Summary struct {
	RunID      string                     `json:"run_id"`
	State      State                      `json:"state"`
	Error      string                     `json:"error,omitempty"`
	Datasets   map[string]*DatasetSummary `json:"datasets"`
	MasterRows int64                      `json:"master_rows,omitempty"`
	KPIRows    map[string]int64           `json:"kpi_rows,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
}

// Runner sequences the bronze→silver→gold run.
type Runner struct {
	storage  Storage
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
	ingester *bronze.Ingester
	engine   *gold.Engine
}

// NewRunner creates a pipeline runner.
func NewRunner(storage Storage, opts Options, m *metrics.Metrics, logger *zap.Logger) *Runner {
	return &Runner{
		storage:  storage,
		opts:     opts,
		metrics:  m,
		logger:   logger,
		ingester: bronze.NewIngester(storage, logger),
		engine:   gold.NewEngine(storage, opts.ReferencePaths, logger),
	}
}

// datasetOutput is one dataset's fully computed silver result, held in
// memory until every dataset has succeeded so no partial silver is written.
type datasetOutput struct {
	dataset    string
	input      int
	silver     *table.Table
	rejections []silver.Rejection
}

// Run executes the full pipeline. The returned summary is always populated;
// its State is StatePersisted on success and StateFailed otherwise.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runID := r.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := &Summary{
		RunID:     runID,
		Datasets:  make(map[string]*DatasetSummary, len(r.opts.Datasets)),
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.With(zap.String("run_id", summary.RunID))

	err := r.run(ctx, summary, logger)
	summary.FinishedAt = time.Now().UTC()
	if err != nil {
		summary.State = StateFailed
		summary.Error = err.Error()
		r.metrics.SetRunFailed(true)
		logger.Error("run failed", zap.String("state", string(StateFailed)), zap.Error(err))
		return summary, err
	}
	summary.State = StatePersisted
	r.metrics.SetRunFailed(false)
	logger.Info("run finished", zap.String("state", string(StatePersisted)))
	return summary, nil
}

func (r *Runner) run(ctx context.Context, summary *Summary, logger *zap.Logger) error {
	// INGESTED: bring bronze up to date, then load the batches.
	start := time.Now()
	batches := make(map[string]*table.Table, len(r.opts.Datasets))
	for _, ds := range r.opts.Datasets {
		summary.Datasets[ds.Name] = &DatasetSummary{}

		if r.opts.WithIngest {
			rows, err := r.ingester.Run(ctx, ds, r.opts.SampleLimit, summary.StartedAt)
			if err != nil {
				r.metrics.RecordError("ingestion")
				return err
			}
			summary.Datasets[ds.Name].BronzeRows = rows
		} else if n, err := r.storage.RowCount(ctx, store.LayerBronze, ds.Name); err != nil {
			logger.Warn("failed to count bronze rows",
				zap.String("dataset", ds.Name), zap.Error(err))
		} else {
			summary.Datasets[ds.Name].BronzeRows = n
		}

		batch, err := r.storage.ReadPartition(ctx, store.LayerBronze, ds.Name, r.opts.SampleLimit)
		if err != nil {
			r.metrics.RecordError("storage")
			return fmt.Errorf("failed to read bronze batch for %s: %w", ds.Name, err)
		}
		batches[ds.Name] = batch
		summary.Datasets[ds.Name].Ingested = batch.Len()
		r.metrics.RecordRowsIngested(ds.Name, batch.Len())
	}
	r.metrics.RecordLayerDuration("bronze", time.Since(start))
	logger.Info("bronze batches loaded", zap.String("state", string(StateIngested)))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before validation: %w", err)
	}

	// VALIDATED: per-row contract checks on the worker pool, uniqueness on
	// the reassembled result. Nothing is persisted until every dataset
	// passes its quality gate.
	start = time.Now()
	outputs := make([]datasetOutput, 0, len(r.opts.Datasets))
	for _, ds := range r.opts.Datasets {
		out, err := r.validateDataset(ctx, ds.Name, batches[ds.Name])
		if err != nil {
			r.metrics.RecordError("validation")
			return err
		}
		outputs = append(outputs, out)
	}
	logger.Info("batches validated", zap.String("state", string(StateValidated)))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before enrichment: %w", err)
	}

	// ENRICHED: derived columns, geographic scope, then the quality gate
	// over the combined rejection count (enrichment domain failures count
	// like any schema violation).
	for i := range outputs {
		if err := r.enrichDataset(&outputs[i], summary.Datasets[outputs[i].dataset]); err != nil {
			r.metrics.RecordError("validation")
			return err
		}
	}
	r.metrics.RecordLayerDuration("silver", time.Since(start))
	logger.Info("batches enriched", zap.String("state", string(StateEnriched)))

	// Post-transform quality checks. A failure here is a pipeline bug and
	// must keep the bad output off disk.
	maxAge := r.opts.Enrich.MaxAgeYears
	if maxAge <= 0 {
		maxAge = silver.DefaultMaxAgeYears
	}
	var checks []quality.Check
	for _, out := range outputs {
		c, _ := contract.ByName(out.dataset)
		ds := summary.Datasets[out.dataset]
		checks = append(checks,
			quality.NewKeyUniquenessCheck(out.silver, c),
			quality.NewPostalFormatCheck(out.silver, out.dataset),
			quality.NewAgeBoundsCheck(out.silver, out.dataset, maxAge),
			quality.NewRowReconciliationCheck(out.silver, out.dataset, ds.Accepted),
		)
	}
	if _, err := quality.RunAll(checks); err != nil {
		r.metrics.RecordError("validation")
		return err
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before silver write: %w", err)
	}

	// Persist silver: full-partition overwrite, rejection report alongside.
	for _, out := range outputs {
		if err := r.storage.WritePartition(ctx, store.LayerSilver, out.dataset, out.silver); err != nil {
			r.metrics.RecordError("storage")
			return err
		}
		report := silver.RejectionTable(out.rejections)
		if err := r.storage.WritePartition(ctx, store.LayerSilver, out.dataset+"_rejections", report); err != nil {
			r.metrics.RecordError("storage")
			return err
		}
	}
	logger.Info("silver partitions persisted")

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before aggregation: %w", err)
	}

	// AGGREGATED: master join + KPI tables.
	start = time.Now()
	res, err := r.engine.Run(ctx, r.opts.KPIs)
	if err != nil {
		r.metrics.RecordError("aggregation")
		return err
	}
	r.metrics.RecordLayerDuration("gold", time.Since(start))
	summary.MasterRows = res.MasterRows
	summary.KPIRows = res.KPIRows
	for name, rows := range res.KPIRows {
		r.metrics.RecordKPIRows(name, rows)
	}
	logger.Info("gold layer materialized", zap.String("state", string(StateAggregated)))

	return nil
}

// validateDataset runs per-row contract checks for one bronze batch on the
// worker pool, then enforces uniqueness on the reassembled result so the
// outcome is independent of scheduling.
func (r *Runner) validateDataset(ctx context.Context, name string, batch *table.Table) (datasetOutput, error) {
	c, ok := contract.ByName(name)
	if !ok {
		return datasetOutput{}, fmt.Errorf("no contract defined for dataset %s", name)
	}

	workFunc := func(ctx context.Context, b *Batch) (*BatchResult, error) {
		res := &BatchResult{Batch: b}
		for i, raw := range b.Rows {
			outcome := silver.ValidateRow(silver.RowRef(c, raw, b.Offset+i), raw, c)
			if outcome.Rejection != nil {
				res.Rejections = append(res.Rejections, *outcome.Rejection)
				continue
			}
			res.Accepted = append(res.Accepted, outcome.Row)
		}
		return res, nil
	}

	results, err := RunBatches(ctx, r.opts.Pool, SplitRows(batch.Rows, 0), workFunc, r.metrics, r.logger)
	if err != nil {
		return datasetOutput{}, fmt.Errorf("validation of %s: %w", name, err)
	}

	accepted := table.New(c.ColumnNames()...)
	var rejections []silver.Rejection
	for _, res := range results {
		accepted.Rows = append(accepted.Rows, res.Accepted...)
		rejections = append(rejections, res.Rejections...)
	}
	rejections = append(rejections, silver.Dedupe(accepted, c)...)

	return datasetOutput{dataset: name, input: batch.Len(), silver: accepted, rejections: rejections}, nil
}

// enrichDataset derives the engineered columns, applies the geographic scope,
// and enforces the quality gate and the final contract conformance check.
func (r *Runner) enrichDataset(out *datasetOutput, ds *DatasetSummary) error {
	c, _ := contract.ByName(out.dataset)

	enriched := silver.Enrich(out.silver, c, r.opts.Enrich)
	out.silver = enriched.Table
	out.rejections = append(out.rejections, enriched.Rejections...)

	valRes := silver.Result{Accepted: out.silver, Rejections: out.rejections, Input: out.input}
	if err := silver.CheckQualityGate(out.dataset, valRes, r.opts.RejectionThreshold); err != nil {
		return err
	}

	if err := silver.CheckConformance(out.silver, c); err != nil {
		return fmt.Errorf("conformance check for %s: %w", out.dataset, err)
	}

	// Stable output order for byte-reproducible snapshots.
	out.silver.SortBy(c.PrimaryKey)

	ds.Rejected = len(out.rejections)
	ds.Filtered = enriched.FilteredOut
	ds.Accepted = out.silver.Len()
	r.metrics.RecordRowsAccepted(out.dataset, ds.Accepted)
	r.metrics.RecordRowsFiltered(out.dataset, ds.Filtered)
	for _, rej := range out.rejections {
		r.metrics.RecordRejection(out.dataset, rej.Rule)
	}
	return nil
}
