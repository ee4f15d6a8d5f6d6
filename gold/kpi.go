// Package gold is the aggregation engine: it builds the denormalized master
// table from the silver datasets and materializes the KPI tables. Each KPI is
// declarative data that generates one SQL statement executed through the
// storage adapter; aggregation itself happens inside DuckDB, so results never
// depend on the physical ordering of input rows, and every KPI declares an
// explicit total output order for reproducible snapshots.
package gold

import (
	"fmt"
	"strings"
)

// Paths resolves the table names a KPI may reference to Parquet files.
type Paths struct {
	// Master is the path of the denormalized master snapshot.
	Master string

	// Reference maps reference table names to Parquet files (e.g.
	// department population for normalized rates).
	Reference map[string]string
}

func (p Paths) reference(name string) (string, error) {
	path, ok := p.Reference[name]
	if !ok || path == "" {
		return "", &ReferenceDataMissingError{Name: name}
	}
	return path, nil
}

// KPI is one aggregated output table definition.
type KPI interface {
	// Name is the KPI identifier, also the gold partition key.
	Name() string

	// GenerateSQL returns the SELECT statement producing the KPI rows.
	GenerateSQL(p Paths) (string, error)
}

// GroupCount counts master rows per grouping key.
type GroupCount struct {
	KPIName string
	GroupBy []string
	Measure string // alias of the count column
	Where   string // optional filter on master rows
	OrderBy []string
}

func (k GroupCount) Name() string { return k.KPIName }

func (k GroupCount) GenerateSQL(p Paths) (string, error) {
	if len(k.GroupBy) == 0 {
		return "", fmt.Errorf("kpi %s: no grouping key", k.KPIName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, count(*) AS %s\n", strings.Join(k.GroupBy, ", "), k.Measure)
	fmt.Fprintf(&b, "FROM read_parquet(%s)\n", sqlString(p.Master))
	if k.Where != "" {
		fmt.Fprintf(&b, "WHERE %s\n", k.Where)
	}
	fmt.Fprintf(&b, "GROUP BY %s\n", strings.Join(k.GroupBy, ", "))
	fmt.Fprintf(&b, "ORDER BY %s", strings.Join(k.OrderBy, ", "))
	return b.String(), nil
}

// DominantCategory selects, per partition key, the category with the most
// rows. Ties break on the category value ascending so output is stable.
type DominantCategory struct {
	KPIName   string
	Partition string // grouping key, e.g. departement
	Category  string // ranked dimension, e.g. secteur_activite
	Measure   string // alias of the count column
}

func (k DominantCategory) Name() string { return k.KPIName }

func (k DominantCategory) GenerateSQL(p Paths) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "WITH counts AS (\n")
	fmt.Fprintf(&b, "    SELECT %s, %s, count(*) AS %s\n", k.Partition, k.Category, k.Measure)
	fmt.Fprintf(&b, "    FROM read_parquet(%s)\n", sqlString(p.Master))
	fmt.Fprintf(&b, "    GROUP BY %s, %s\n", k.Partition, k.Category)
	fmt.Fprintf(&b, ")\n")
	fmt.Fprintf(&b, "SELECT %s, %s, %s\nFROM counts\n", k.Partition, k.Category, k.Measure)
	fmt.Fprintf(&b, "QUALIFY row_number() OVER (PARTITION BY %s ORDER BY %s DESC, %s ASC) = 1\n",
		k.Partition, k.Measure, k.Category)
	fmt.Fprintf(&b, "ORDER BY %s ASC", k.Partition)
	return b.String(), nil
}

// RateByReference joins per-group counts against a reference table and
// derives a normalized rate. The reference table is the group spine: every
// key in the reference domain appears in the output, with a zero count and a
// NULL rate when no master rows contribute (a zero rate would masquerade as a
// measured value). A missing reference file is fatal.
type RateByReference struct {
	KPIName    string
	Reference  string // reference table name resolved through Paths
	JoinKey    string // column shared by master and reference
	Population string // reference column holding the denominator
	PerUnits   int    // rate is count * PerUnits / population
	RateAlias  string
	CountAlias string
}

func (k RateByReference) Name() string { return k.KPIName }

func (k RateByReference) GenerateSQL(p Paths) (string, error) {
	refPath, err := p.reference(k.Reference)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT r.%s,\n", k.JoinKey)
	fmt.Fprintf(&b, "    coalesce(m.total, 0) AS %s,\n", k.CountAlias)
	fmt.Fprintf(&b, "    r.%s,\n", k.Population)
	fmt.Fprintf(&b, "    CASE WHEN m.total IS NULL THEN NULL\n")
	fmt.Fprintf(&b, "         ELSE round(m.total * %d.0 / r.%s, 2) END AS %s\n", k.PerUnits, k.Population, k.RateAlias)
	fmt.Fprintf(&b, "FROM read_parquet(%s) AS r\n", sqlString(refPath))
	fmt.Fprintf(&b, "LEFT JOIN (\n")
	fmt.Fprintf(&b, "    SELECT %s, count(*) AS total\n", k.JoinKey)
	fmt.Fprintf(&b, "    FROM read_parquet(%s)\n", sqlString(p.Master))
	fmt.Fprintf(&b, "    GROUP BY %s\n", k.JoinKey)
	fmt.Fprintf(&b, ") AS m ON m.%s = r.%s\n", k.JoinKey, k.JoinKey)
	fmt.Fprintf(&b, "ORDER BY r.%s ASC", k.JoinKey)
	return b.String(), nil
}

// DefaultKPIs returns the fixed KPI set computed on every run.
func DefaultKPIs() []KPI {
	return []KPI{
		GroupCount{
			KPIName: "etablissements_par_departement",
			GroupBy: []string{"departement"},
			Measure: "total_etablissements",
			OrderBy: []string{"total_etablissements DESC", "departement ASC"},
		},
		DominantCategory{
			KPIName:   "secteur_dominant_par_departement",
			Partition: "departement",
			Category:  "secteur_activite",
			Measure:   "total",
		},
		GroupCount{
			KPIName: "repartition_categorie_entreprise",
			GroupBy: []string{"categorieEntreprise"},
			Measure: "total",
			Where:   "categorieEntreprise IS NOT NULL",
			OrderBy: []string{"total DESC", "categorieEntreprise ASC"},
		},
		RateByReference{
			KPIName:    "densite_etablissements_par_departement",
			Reference:  "population_departements",
			JoinKey:    "departement",
			Population: "population",
			PerUnits:   10000,
			RateAlias:  "etablissements_pour_10k_habitants",
			CountAlias: "total_etablissements",
		},
	}
}

// ReferenceDataMissingError signals an absent KPI join target. The run halts
// before any gold write.
type ReferenceDataMissingError struct {
	Name string
	Path string
}

func (e *ReferenceDataMissingError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("reference data missing: %s (%s)", e.Name, e.Path)
	}
	return fmt.Sprintf("reference data missing: %s", e.Name)
}

func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
