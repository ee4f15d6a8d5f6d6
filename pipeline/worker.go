package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opendatafab/sirene-lake/metrics"
)

// WorkerFunc is the function signature for processing a batch. Work functions
// must be pure: validation outcomes may not depend on other chunks or on
// shared mutable state.
type WorkerFunc func(ctx context.Context, batch *Batch) (*BatchResult, error)

// Worker processes batches in parallel.
type Worker struct {
	id       int
	workFunc WorkerFunc
	input    <-chan *Batch
	output   chan<- *BatchResult
	metrics  *metrics.Metrics
	logger   *zap.Logger
	wg       *sync.WaitGroup
}

// NewWorker creates a new worker.
func NewWorker(id int, workFunc WorkerFunc, input <-chan *Batch, output chan<- *BatchResult, m *metrics.Metrics, logger *zap.Logger, wg *sync.WaitGroup) *Worker {
	return &Worker{
		id:       id,
		workFunc: workFunc,
		input:    input,
		output:   output,
		metrics:  m,
		logger:   logger,
		wg:       wg,
	}
}

// Run starts the worker processing loop.
func (w *Worker) Run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("worker shutting down", zap.Int("worker", w.id), zap.Error(ctx.Err()))
			return

		case batch, ok := <-w.input:
			if !ok {
				return
			}

			start := time.Now()
			result, err := w.workFunc(ctx, batch)

			if err != nil {
				w.logger.Error("batch processing failed",
					zap.Int("worker", w.id),
					zap.Int("batch", batch.Index),
					zap.Error(err))

				// The caller accounts for the failure once the error
				// surfaces from RunBatches.
				result = &BatchResult{
					Batch:          batch,
					Error:          err,
					ProcessingTime: time.Since(start),
				}
			} else {
				result.ProcessingTime = time.Since(start)
			}

			if w.metrics != nil {
				w.metrics.RecordBatchDuration(result.ProcessingTime)
			}

			select {
			case w.output <- result:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Pool manages a pool of workers.
type Pool struct {
	workers    int
	input      chan *Batch
	output     chan *BatchResult
	metrics    *metrics.Metrics
	logger     *zap.Logger
	wg         sync.WaitGroup
	workerList []*Worker
}

// PoolConfig holds configuration for the worker pool.
type PoolConfig struct {
	Workers   int `yaml:"workers"`    // Number of parallel workers (default: 4)
	QueueSize int `yaml:"queue_size"` // Size of input queue (default: workers * 2)
}

// ApplyDefaults sets default values for pool config.
func (c *PoolConfig) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = c.Workers * 2
	}
}

// NewPool creates a new worker pool.
func NewPool(cfg PoolConfig, workFunc WorkerFunc, m *metrics.Metrics, logger *zap.Logger) *Pool {
	cfg.ApplyDefaults()

	p := &Pool{
		workers: cfg.Workers,
		input:   make(chan *Batch, cfg.QueueSize),
		output:  make(chan *BatchResult, cfg.QueueSize),
		metrics: m,
		logger:  logger,
	}

	for i := 0; i < cfg.Workers; i++ {
		worker := NewWorker(i, workFunc, p.input, p.output, m, logger, &p.wg)
		p.workerList = append(p.workerList, worker)
	}

	return p
}

// Start launches all workers.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(len(p.workerList))

	for _, worker := range p.workerList {
		go worker.Run(ctx)
	}

	p.logger.Debug("worker pool started", zap.Int("workers", len(p.workerList)))

	if p.metrics != nil {
		p.metrics.SetActiveWorkers(p.workers)
	}
}

// Submit sends a batch to the pool for processing. Blocks if the queue is
// full.
func (p *Pool) Submit(ctx context.Context, batch *Batch) error {
	select {
	case p.input <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting batches and waits for in-flight work to finish.
func (p *Pool) Shutdown() {
	close(p.input)
	p.wg.Wait()
	close(p.output)

	if p.metrics != nil {
		p.metrics.SetActiveWorkers(0)
	}
}

// Results returns the channel of batch results.
func (p *Pool) Results() <-chan *BatchResult {
	return p.output
}

// WorkerCount returns the number of workers in the pool.
func (p *Pool) WorkerCount() int {
	return p.workers
}

// RunBatches pushes every batch through the pool and returns the results
// sorted back into batch order. Reassembly never depends on completion order.
func RunBatches(ctx context.Context, cfg PoolConfig, batches []*Batch, workFunc WorkerFunc, m *metrics.Metrics, logger *zap.Logger) ([]*BatchResult, error) {
	pool := NewPool(cfg, workFunc, m, logger)
	pool.Start(ctx)

	submitErr := make(chan error, 1)
	go func() {
		defer pool.Shutdown()
		for _, b := range batches {
			if err := pool.Submit(ctx, b); err != nil {
				submitErr <- err
				return
			}
		}
		submitErr <- nil
	}()

	results := make([]*BatchResult, len(batches))
	for res := range pool.Results() {
		if res.Error != nil {
			// Drain remaining results so Shutdown can complete.
			for range pool.Results() {
			}
			<-submitErr
			return nil, res.Error
		}
		results[res.Batch.Index] = res
	}
	if err := <-submitErr; err != nil {
		return nil, err
	}
	// Cancellation makes workers exit without emitting results for batches
	// already submitted; a nil slot means the set is incomplete.
	for _, res := range results {
		if res == nil {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("validation aborted: %w", err)
			}
			return nil, fmt.Errorf("validation aborted: incomplete batch results")
		}
	}
	return results, nil
}
