package silver

import (
	"fmt"
	"time"

	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/table"
)

// EnrichConfig holds the parameters for the enrichment pass.
type EnrichConfig struct {
	// ReferenceDate is the as-of date used for age computation.
	ReferenceDate time.Time

	// MaxAgeYears is the sanity bound on computed company age. Ages below
	// zero or above this bound are routed to rejection.
	MaxAgeYears int

	// Departments is the geographic scope predicate. Rows outside it are
	// filtered (counted, not rejected). Empty keeps everything.
	Departments []string
}

// DefaultMaxAgeYears bounds plausible company ages. Creation dates are
// already floored at 1678 by coercion, so 300 covers every real registration.
const DefaultMaxAgeYears = 300

// EnrichResult is the outcome of enriching an accepted batch.
type EnrichResult struct {
	Table *table.Table

	// FilteredOut counts rows excluded by the geographic predicate. These
	// are a business scope decision, never quality failures, and must stay
	// out of the rejection report.
	FilteredOut int

	// Rejections holds enrichment domain failures (implausible ages),
	// routed to the rejection report like any schema violation.
	Rejections []Rejection
}

// dataset-dependent source columns for derived attributes
func activityColumn(c contract.Contract) string {
	if _, ok := c.Column("activitePrincipaleEtablissement"); ok {
		return "activitePrincipaleEtablissement"
	}
	return "activitePrincipaleUniteLegale"
}

func creationDateColumn(c contract.Contract) string {
	if _, ok := c.Column("dateCreationEtablissement"); ok {
		return "dateCreationEtablissement"
	}
	return "dateCreationUniteLegale"
}

// Enrich derives the engineered columns and applies the geographic filter.
// It never mutates its input; rows are cloned into a new table. Every
// derivation depends only on the row's own values, so the result is
// independent of row order and batch composition.
func Enrich(t *table.Table, c contract.Contract, cfg EnrichConfig) EnrichResult {
	if cfg.MaxAgeYears <= 0 {
		cfg.MaxAgeYears = DefaultMaxAgeYears
	}

	out := table.New(c.ColumnNames()...)
	res := EnrichResult{}

	_, hasDept := c.Column("departement")
	_, hasSector := c.Column("secteur_activite")
	_, hasAge := c.Column("age_entreprise")
	actCol := activityColumn(c)
	dateCol := creationDateColumn(c)

	scope := make(map[string]bool, len(cfg.Departments))
	for _, d := range cfg.Departments {
		scope[d] = true
	}

	for _, in := range t.Rows {
		row := in.Clone()

		if hasDept {
			// Postal code format is contract-enforced upstream.
			row["departement"] = in.String("codePostalEtablissement")[:2]
		}

		if hasSector {
			if code := in.String(actCol); code != "" {
				row["secteur_activite"] = SectorForCode(code)
			} else {
				row["secteur_activite"] = SectorUnclassified
			}
		}

		if hasAge {
			created, ok := in.Time(dateCol)
			if !ok {
				row["age_entreprise"] = nil
			} else {
				age := float64(cfg.ReferenceDate.Year() - created.Year())
				if age < 0 || age > float64(cfg.MaxAgeYears) {
					res.Rejections = append(res.Rejections, Rejection{
						SourceRowRef: fmt.Sprintf("%s:%s", c.Name, in.String(c.PrimaryKey)),
						Column:       dateCol,
						Rule:         RuleAgeBounds,
						RawValue:     created.Format("2006-01-02"),
						Reason:       fmt.Sprintf("%s: computed age %.0f outside [0, %d]", dateCol, age, cfg.MaxAgeYears),
					})
					continue
				}
				row["age_entreprise"] = age
			}
		}

		if hasDept && len(scope) > 0 && !scope[row.String("departement")] {
			res.FilteredOut++
			continue
		}

		out.Append(row)
	}

	res.Table = out
	return res
}

// CheckConformance verifies that every enriched row satisfies the full
// contract, derived columns included. It is the last line of defense before
// a silver write; a failure here is a bug, not a data-quality event.
func CheckConformance(t *table.Table, c contract.Contract) error {
	for i, row := range t.Rows {
		for _, col := range c.Columns {
			v, ok := row[col.Name]
			if !ok || v == nil {
				if !col.Nullable {
					return fmt.Errorf("row %d: column %s is null", i, col.Name)
				}
				continue
			}
			if s, isStr := v.(string); isStr {
				if col.Length > 0 && len(s) != col.Length {
					return fmt.Errorf("row %d: column %s: bad length %q", i, col.Name, s)
				}
				if col.Pattern != nil && !col.Pattern.MatchString(s) {
					return fmt.Errorf("row %d: column %s: %q does not match %s", i, col.Name, s, col.Pattern)
				}
			}
		}
	}
	return nil
}
