// Package silver implements the bronze-to-silver transformation: contract
// validation with safe coercion, rejection routing, the batch quality gate,
// and enrichment of derived columns.
//
// Per-row data-quality failures are values, not errors: each row ends up
// either accepted or described by a Rejection. Only batch-level failures
// (quality gate breach) surface as errors.
package silver

import (
	"fmt"
	"strings"

	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/table"
)

// Rejection rules recorded in the rejection report.
const (
	RulePresence    = "presence"
	RuleType        = "type"
	RuleNullability = "nullability"
	RuleLength      = "length"
	RulePattern     = "pattern"
	RuleEnum        = "enum"
	RuleUnique      = "unique"
	RuleAgeBounds   = "age_bounds"
)

// Rejection describes why a raw record was excluded from the silver table.
// One rejection per record; Reason lists every violated rule when a record
// fails more than one.
type Rejection struct {
	SourceRowRef string
	Column       string
	Rule         string
	RawValue     string
	Reason       string
}

// violation is a single failed check on one column, accumulated into a
// Rejection once the row is known to be rejected.
type violation struct {
	column   string
	rule     string
	rawValue string
	detail   string
}

func newRejection(ref string, vs []violation) Rejection {
	first := vs[0]
	details := make([]string, len(vs))
	for i, v := range vs {
		details[i] = fmt.Sprintf("%s: %s (%s)", v.column, v.rule, v.detail)
	}
	return Rejection{
		SourceRowRef: ref,
		Column:       first.column,
		Rule:         first.rule,
		RawValue:     first.rawValue,
		Reason:       strings.Join(details, "; "),
	}
}

// RowOutcome is the tagged result of validating one row: exactly one of Row
// and Rejection is set.
type RowOutcome struct {
	Row       table.Row
	Rejection *Rejection
}

// ValidateRow checks a single raw row against the contract's input columns.
// It is pure and safe to call concurrently. A row is accepted only if every
// check passes; otherwise all violations are folded into one Rejection.
func ValidateRow(ref string, raw table.Row, c contract.Contract) RowOutcome {
	out := make(table.Row, len(c.Columns))
	var violations []violation

	for _, col := range c.Columns {
		if col.Derived {
			continue
		}
		rawVal, present := raw[col.Name]
		if !present && col.Required {
			violations = append(violations, violation{
				column: col.Name, rule: RulePresence, detail: "column missing from batch",
			})
			continue
		}

		val, err := coerce(col, rawVal)
		if err != nil {
			violations = append(violations, violation{
				column: col.Name, rule: RuleType,
				rawValue: fmt.Sprintf("%v", rawVal), detail: err.Error(),
			})
			continue
		}

		if val == nil && col.Default != "" {
			val = col.Default
		}
		if val == nil {
			if !col.Nullable {
				rule := RuleNullability
				if col.Required {
					rule = RulePresence
				}
				violations = append(violations, violation{
					column: col.Name, rule: rule, detail: "value is null",
				})
			} else {
				out[col.Name] = nil
			}
			continue
		}

		if s, ok := val.(string); ok {
			if col.Length > 0 && len(s) != col.Length {
				violations = append(violations, violation{
					column: col.Name, rule: RuleLength, rawValue: s,
					detail: fmt.Sprintf("length %d, want %d", len(s), col.Length),
				})
				continue
			}
			if col.Pattern != nil && !col.Pattern.MatchString(s) {
				violations = append(violations, violation{
					column: col.Name, rule: RulePattern, rawValue: s,
					detail: fmt.Sprintf("does not match %s", col.Pattern.String()),
				})
				continue
			}
			if !col.InEnum(s) {
				violations = append(violations, violation{
					column: col.Name, rule: RuleEnum, rawValue: s,
					detail: fmt.Sprintf("not in %v", col.Enum),
				})
				continue
			}
		}

		out[col.Name] = val
	}

	if len(violations) > 0 {
		rej := newRejection(ref, violations)
		return RowOutcome{Rejection: &rej}
	}
	return RowOutcome{Row: out}
}

// Dedupe enforces unique-column constraints across accepted rows, in input
// order: the first occurrence of a key wins, later duplicates are rejected.
// Running after the per-row pass keeps the result independent of how rows
// were partitioned across workers.
func Dedupe(t *table.Table, c contract.Contract) []Rejection {
	var uniqueCols []string
	for _, col := range c.Columns {
		if col.Unique {
			uniqueCols = append(uniqueCols, col.Name)
		}
	}
	if len(uniqueCols) == 0 {
		return nil
	}

	seen := make(map[string]map[string]bool, len(uniqueCols))
	for _, name := range uniqueCols {
		seen[name] = make(map[string]bool, t.Len())
	}

	var rejections []Rejection
	kept := t.Rows[:0]
	for _, row := range t.Rows {
		dup := false
		for _, name := range uniqueCols {
			key := row.String(name)
			if seen[name][key] {
				rejections = append(rejections, Rejection{
					SourceRowRef: fmt.Sprintf("%s:%s", c.Name, key),
					Column:       name,
					Rule:         RuleUnique,
					RawValue:     key,
					Reason:       fmt.Sprintf("%s: duplicate value %q", name, key),
				})
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		for _, name := range uniqueCols {
			seen[name][row.String(name)] = true
		}
		kept = append(kept, row)
	}
	t.Rows = kept
	return rejections
}

// Result is the outcome of validating a full batch.
type Result struct {
	Accepted   *table.Table
	Rejections []Rejection
	Input      int
}

// RejectionRate returns the fraction of input rows rejected, 0 for an empty
// batch.
func (r Result) RejectionRate() float64 {
	if r.Input == 0 {
		return 0
	}
	return float64(len(r.Rejections)) / float64(r.Input)
}

// Validate runs the per-row pass sequentially over a batch and then enforces
// uniqueness. The orchestrator uses the same building blocks with a worker
// pool; this entry point exists for callers that do not need parallelism.
func Validate(batch *table.Table, c contract.Contract) Result {
	accepted := table.New(c.ColumnNames()...)
	res := Result{Input: batch.Len()}

	for i, raw := range batch.Rows {
		ref := RowRef(c, raw, i)
		outcome := ValidateRow(ref, raw, c)
		if outcome.Rejection != nil {
			res.Rejections = append(res.Rejections, *outcome.Rejection)
			continue
		}
		accepted.Append(outcome.Row)
	}

	res.Rejections = append(res.Rejections, Dedupe(accepted, c)...)
	res.Accepted = accepted
	return res
}

// RowRef builds a stable reference to a source row: the primary key value
// when readable, otherwise the row's position in the batch.
func RowRef(c contract.Contract, raw table.Row, idx int) string {
	if pk := strings.TrimSpace(raw.String(c.PrimaryKey)); pk != "" {
		return fmt.Sprintf("%s:%s", c.Name, pk)
	}
	return fmt.Sprintf("%s:row-%d", c.Name, idx)
}

// BatchQualityError signals that a batch's rejection rate exceeded the
// configured gate. The run must fail before any silver write.
type BatchQualityError struct {
	Dataset   string
	Rate      float64
	Threshold float64
	Rejected  int
	Input     int
}

func (e *BatchQualityError) Error() string {
	return fmt.Sprintf("batch quality gate: %s rejected %d/%d rows (%.2f%% > %.2f%%)",
		e.Dataset, e.Rejected, e.Input, e.Rate*100, e.Threshold*100)
}

// CheckQualityGate returns a BatchQualityError if the rejection rate exceeds
// the threshold. A threshold of 1 disables the gate.
func CheckQualityGate(dataset string, res Result, threshold float64) error {
	rate := res.RejectionRate()
	if rate > threshold {
		return &BatchQualityError{
			Dataset:   dataset,
			Rate:      rate,
			Threshold: threshold,
			Rejected:  len(res.Rejections),
			Input:     res.Input,
		}
	}
	return nil
}

// RejectionTable converts rejections to the persisted report shape, sorted by
// source row reference for reproducible output.
func RejectionTable(rejections []Rejection) *table.Table {
	t := table.New("source_row_ref", "column", "rule", "raw_value", "reason")
	for _, r := range rejections {
		t.Append(table.Row{
			"source_row_ref": r.SourceRowRef,
			"column":         r.Column,
			"rule":           r.Rule,
			"raw_value":      r.RawValue,
			"reason":         r.Reason,
		})
	}
	t.SortBy("source_row_ref", "column", "rule")
	return t
}
