// Package pipeline orchestrates the bronze→silver→gold run and provides the
// parallel validation infrastructure.
package pipeline

import (
	"time"

	"github.com/opendatafab/sirene-lake/silver"
	"github.com/opendatafab/sirene-lake/table"
)

// Batch is one chunk of bronze rows handed to a validation worker.
type Batch struct {
	// Index is the chunk's position within the source batch; results are
	// reassembled in Index order so output never depends on worker timing.
	Index int

	// Offset is the row offset of the chunk's first row in the source batch.
	Offset int

	// Rows are the raw bronze rows.
	Rows []table.Row
}

// Size returns the number of rows in the batch.
func (b *Batch) Size() int {
	return len(b.Rows)
}

// BatchResult holds the validated outcome of one chunk.
type BatchResult struct {
	// Batch is the original chunk that was processed.
	Batch *Batch

	// Accepted holds rows that passed every contract check, in input order.
	Accepted []table.Row

	// Rejections describe the rows routed to the rejection report.
	Rejections []silver.Rejection

	// ProcessingTime is how long validation took.
	ProcessingTime time.Duration

	// Error holds any non-data failure; per-row quality issues are
	// rejections, never errors.
	Error error
}

// IsSuccess returns true if processing succeeded.
func (r *BatchResult) IsSuccess() bool {
	return r.Error == nil
}

// SplitRows partitions rows into chunks of at most chunkSize.
func SplitRows(rows []table.Row, chunkSize int) []*Batch {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	var batches []*Batch
	for offset := 0; offset < len(rows); offset += chunkSize {
		end := offset + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		batches = append(batches, &Batch{
			Index:  len(batches),
			Offset: offset,
			Rows:   rows[offset:end],
		})
	}
	return batches
}
