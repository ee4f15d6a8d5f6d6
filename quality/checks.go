// Package quality provides post-write data quality checks over the silver
// output. Each check validates one aspect of integrity; a failure here means
// a pipeline bug, not a data-quality event, since rejection routing happens
// upstream.
package quality

import (
	"fmt"
	"regexp"
	"time"

	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/table"
)

// Check defines the interface for all data quality checks.
type Check interface {
	// Name returns the unique identifier for this check
	Name() string

	// Type returns the category of check (consistency, validity, ...)
	Type() string

	// Run executes the check and returns a result
	Run() Result
}

// Result holds the outcome of a quality check.
type Result struct {
	CheckName string    // Name of the check that was run
	CheckType string    // Type/category of check
	Passed    bool      // Whether the check passed
	Details   string    // Human-readable details about the result
	RowCount  int       // Number of rows examined
	Dataset   string    // Dataset name
	CreatedAt time.Time // When the check was performed
}

// KeyUniquenessCheck verifies that the contract's unique columns carry no
// duplicate values in the persisted silver table.
type KeyUniquenessCheck struct {
	t        *table.Table
	contract contract.Contract
}

func NewKeyUniquenessCheck(t *table.Table, c contract.Contract) *KeyUniquenessCheck {
	return &KeyUniquenessCheck{t: t, contract: c}
}

func (c *KeyUniquenessCheck) Name() string { return "key_uniqueness" }
func (c *KeyUniquenessCheck) Type() string { return "consistency" }

func (c *KeyUniquenessCheck) Run() Result {
	result := Result{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Dataset:   c.contract.Name,
		CreatedAt: time.Now(),
		RowCount:  c.t.Len(),
	}

	duplicates := 0
	for _, col := range c.contract.Columns {
		if !col.Unique {
			continue
		}
		seen := make(map[string]bool, c.t.Len())
		for _, row := range c.t.Rows {
			key := row.String(col.Name)
			if seen[key] {
				duplicates++
			}
			seen[key] = true
		}
	}

	if duplicates > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d duplicate key values", duplicates)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d rows carry unique keys", c.t.Len())
	}
	return result
}

// PostalFormatCheck validates that postal codes are 5-digit strings.
type PostalFormatCheck struct {
	t       *table.Table
	dataset string
}

func NewPostalFormatCheck(t *table.Table, dataset string) *PostalFormatCheck {
	return &PostalFormatCheck{t: t, dataset: dataset}
}

func (c *PostalFormatCheck) Name() string { return "postal_code_format" }
func (c *PostalFormatCheck) Type() string { return "validity" }

var postalPattern = regexp.MustCompile(`^\d{5}$`)

func (c *PostalFormatCheck) Run() Result {
	result := Result{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Dataset:   c.dataset,
		CreatedAt: time.Now(),
		RowCount:  c.t.Len(),
	}

	if !c.t.HasColumn("codePostalEtablissement") {
		result.Passed = true
		result.Details = "No postal code column in this dataset"
		return result
	}

	invalid := 0
	for _, row := range c.t.Rows {
		if !postalPattern.MatchString(row.String("codePostalEtablissement")) {
			invalid++
		}
	}

	if invalid > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d malformed postal codes", invalid)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d postal codes are well-formed", c.t.Len())
	}
	return result
}

// AgeBoundsCheck verifies that every non-null computed age sits inside the
// plausible range.
type AgeBoundsCheck struct {
	t       *table.Table
	dataset string
	maxAge  float64
}

func NewAgeBoundsCheck(t *table.Table, dataset string, maxAge int) *AgeBoundsCheck {
	return &AgeBoundsCheck{t: t, dataset: dataset, maxAge: float64(maxAge)}
}

func (c *AgeBoundsCheck) Name() string { return "age_bounds" }
func (c *AgeBoundsCheck) Type() string { return "validity" }

func (c *AgeBoundsCheck) Run() Result {
	result := Result{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Dataset:   c.dataset,
		CreatedAt: time.Now(),
		RowCount:  c.t.Len(),
	}

	outOfBounds := 0
	for _, row := range c.t.Rows {
		age, ok := row.Float("age_entreprise")
		if !ok {
			continue
		}
		if age < 0 || age > c.maxAge {
			outOfBounds++
		}
	}

	if outOfBounds > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d ages outside [0, %.0f]", outOfBounds, c.maxAge)
	} else {
		result.Passed = true
		result.Details = "All computed ages are plausible"
	}
	return result
}

// RowReconciliationCheck verifies that the persisted row count matches the
// count the run summary reports, so the summary can be trusted downstream.
type RowReconciliationCheck struct {
	t        *table.Table
	dataset  string
	expected int
}

func NewRowReconciliationCheck(t *table.Table, dataset string, expected int) *RowReconciliationCheck {
	return &RowReconciliationCheck{t: t, dataset: dataset, expected: expected}
}

func (c *RowReconciliationCheck) Name() string { return "row_reconciliation" }
func (c *RowReconciliationCheck) Type() string { return "completeness" }

func (c *RowReconciliationCheck) Run() Result {
	result := Result{
		CheckName: c.Name(),
		CheckType: c.Type(),
		Dataset:   c.dataset,
		CreatedAt: time.Now(),
		RowCount:  c.t.Len(),
	}

	if c.t.Len() != c.expected {
		result.Passed = false
		result.Details = fmt.Sprintf("Table has %d rows, summary reports %d", c.t.Len(), c.expected)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("Row count matches summary (%d)", c.expected)
	}
	return result
}

// RunAll executes every check and returns the results plus an error naming
// the failed checks, if any.
func RunAll(checks []Check) ([]Result, error) {
	results := make([]Result, 0, len(checks))
	var failed []string
	for _, check := range checks {
		res := check.Run()
		results = append(results, res)
		if !res.Passed {
			failed = append(failed, fmt.Sprintf("%s[%s]: %s", res.CheckName, res.Dataset, res.Details))
		}
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("quality checks failed: %v", failed)
	}
	return results, nil
}
