package gold

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/opendatafab/sirene-lake/store"
)

// Storage is the slice of the storage adapter the engine needs.
type Storage interface {
	PartitionPath(layer store.Layer, key string) string
	HasPartition(layer store.Layer, key string) bool
	CopyQuery(ctx context.Context, query string, layer store.Layer, key string) error
	RowCount(ctx context.Context, layer store.Layer, key string) (int64, error)
}

// Engine executes the master join and the KPI set over the silver layer.
type Engine struct {
	storage Storage
	logger  *zap.Logger

	// ReferencePaths maps reference table names to Parquet files.
	ReferencePaths map[string]string
}

// NewEngine creates an aggregation engine.
func NewEngine(storage Storage, referencePaths map[string]string, logger *zap.Logger) *Engine {
	return &Engine{
		storage:        storage,
		logger:         logger,
		ReferencePaths: referencePaths,
	}
}

// MasterKey is the gold partition key of the denormalized master table.
const MasterKey = "etablissements_master"

// masterUnitColumns are the legal-unit attributes denormalized onto each
// establishment row.
var masterUnitColumns = []string{
	"denominationUniteLegale",
	"nomUniteLegale",
	"prenom1UniteLegale",
	"categorieEntreprise",
	"categorieJuridiqueUniteLegale",
	"economieSocialeSolidaireUniteLegale",
}

// GenerateMasterSQL returns the statement building the master table: every
// silver establishment left-joined to its legal unit, ordered by siret so the
// snapshot is byte-reproducible.
func GenerateMasterSQL(etabPath, unitPath string) string {
	var b strings.Builder
	b.WriteString("SELECT e.*")
	for _, col := range masterUnitColumns {
		fmt.Fprintf(&b, ",\n    ul.%s", col)
	}
	fmt.Fprintf(&b, "\nFROM read_parquet(%s) AS e\n", sqlString(etabPath))
	fmt.Fprintf(&b, "LEFT JOIN read_parquet(%s) AS ul ON e.siren = ul.siren\n", sqlString(unitPath))
	b.WriteString("ORDER BY e.siret ASC")
	return b.String()
}

// Result reports the gold row counts per output table.
type Result struct {
	MasterRows int64
	KPIRows    map[string]int64
}

// Run builds the master table and materializes every KPI. Reference files
// are checked up front so a missing join target halts the run before any
// gold write.
func (e *Engine) Run(ctx context.Context, kpis []KPI) (*Result, error) {
	for _, required := range []string{"etablissements", "unites_legales"} {
		if !e.storage.HasPartition(store.LayerSilver, required) {
			return nil, fmt.Errorf("silver partition %s missing: run the silver stage first", required)
		}
	}
	for name, path := range e.ReferencePaths {
		if _, err := os.Stat(path); err != nil {
			return nil, &ReferenceDataMissingError{Name: name, Path: path}
		}
	}

	paths := Paths{
		Master:    e.storage.PartitionPath(store.LayerGold, MasterKey),
		Reference: e.ReferencePaths,
	}

	// Generate all KPI SQL before writing anything: a malformed definition
	// or missing reference must not leave a partial gold layer behind.
	statements := make([]string, len(kpis))
	for i, kpi := range kpis {
		sql, err := kpi.GenerateSQL(paths)
		if err != nil {
			return nil, fmt.Errorf("kpi %s: %w", kpi.Name(), err)
		}
		statements[i] = sql
	}

	masterSQL := GenerateMasterSQL(
		e.storage.PartitionPath(store.LayerSilver, "etablissements"),
		e.storage.PartitionPath(store.LayerSilver, "unites_legales"),
	)
	if err := e.storage.CopyQuery(ctx, masterSQL, store.LayerGold, MasterKey); err != nil {
		return nil, fmt.Errorf("failed to build master table: %w", err)
	}
	masterRows, err := e.storage.RowCount(ctx, store.LayerGold, MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to count master rows: %w", err)
	}
	e.logger.Info("master table built",
		zap.String("key", MasterKey),
		zap.Int64("rows", masterRows))

	res := &Result{MasterRows: masterRows, KPIRows: make(map[string]int64, len(kpis))}
	for i, kpi := range kpis {
		if err := e.storage.CopyQuery(ctx, statements[i], store.LayerGold, kpi.Name()); err != nil {
			return nil, fmt.Errorf("kpi %s: %w", kpi.Name(), err)
		}
		rows, err := e.storage.RowCount(ctx, store.LayerGold, kpi.Name())
		if err != nil {
			return nil, fmt.Errorf("kpi %s: %w", kpi.Name(), err)
		}
		res.KPIRows[kpi.Name()] = rows
		e.logger.Info("kpi materialized",
			zap.String("kpi", kpi.Name()),
			zap.Int64("rows", rows))
	}
	return res, nil
}
