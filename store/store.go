// Package store is the storage adapter: Parquet snapshot files partitioned
// by layer, read and written through an embedded DuckDB connection. Writes
// are atomic — COPY to a temporary file, then rename over the target — which
// is the only concurrency-control mechanism the pipeline needs.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
	"go.uber.org/zap"

	"github.com/opendatafab/sirene-lake/table"
)

// Layer identifies one medallion layer directory.
type Layer string

const (
	LayerBronze Layer = "bronze"
	LayerSilver Layer = "silver"
	LayerGold   Layer = "gold"
)

// ErrPartitionNotFound is returned when a requested partition has no
// snapshot file.
var ErrPartitionNotFound = errors.New("partition not found")

// Store reads and writes partitioned Parquet snapshots under a root
// directory: <root>/<layer>/<key>.parquet.
type Store struct {
	db     *sql.DB
	root   string
	logger *zap.Logger
}

// Open creates the layer directories and an in-process DuckDB connection.
func Open(root string, logger *zap.Logger) (*Store, error) {
	for _, layer := range []Layer{LayerBronze, LayerSilver, LayerGold} {
		if err := os.MkdirAll(filepath.Join(root, string(layer)), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", layer, err)
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	return &Store{db: db, root: root, logger: logger}, nil
}

// Close releases the DuckDB connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Root returns the storage root directory.
func (s *Store) Root() string {
	return s.root
}

// PartitionPath returns the snapshot file path for a layer and key.
func (s *Store) PartitionPath(layer Layer, key string) string {
	return filepath.Join(s.root, string(layer), key+".parquet")
}

// ListPartitions returns the keys of all snapshots in a layer, sorted.
func (s *Store) ListPartitions(layer Layer) ([]string, error) {
	pattern := filepath.Join(s.root, string(layer), "*.parquet")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s partitions: %w", layer, err)
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), ".parquet"))
	}
	sort.Strings(keys)
	return keys, nil
}

// HasPartition reports whether a snapshot exists for the layer and key.
func (s *Store) HasPartition(layer Layer, key string) bool {
	_, err := os.Stat(s.PartitionPath(layer, key))
	return err == nil
}

// ReadPartition loads a full partition snapshot. A limit > 0 truncates the
// read to the first limit rows in on-disk order (sampling mode).
func (s *Store) ReadPartition(ctx context.Context, layer Layer, key string, limit int) (*table.Table, error) {
	path := s.PartitionPath(layer, key)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s/%s: %w", layer, key, ErrPartitionNotFound)
	}

	query := fmt.Sprintf("SELECT * FROM read_parquet(%s)", sqlString(path))
	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}
	return s.Query(ctx, query)
}

// Query executes a SQL query and materializes the result.
func (s *Store) Query(ctx context.Context, query string) (*table.Table, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	t := table.New(cols...)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(values[i])
		}
		t.Append(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("result iteration failed: %w", err)
	}
	return t, nil
}

// Exec runs a statement without materializing results.
func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("exec failed: %w", err)
	}
	return nil
}

// QueryValue runs a query expected to return a single scalar.
func (s *Store) QueryValue(ctx context.Context, query string) (any, error) {
	var v any
	if err := s.db.QueryRowContext(ctx, query).Scan(&v); err != nil {
		return nil, fmt.Errorf("scalar query failed: %w", err)
	}
	return normalizeValue(v), nil
}

// WritePartition persists a table as the partition's snapshot, replacing any
// previous snapshot atomically. The table is staged into a transient DuckDB
// table, copied to a temporary Parquet file, then renamed into place.
func (s *Store) WritePartition(ctx context.Context, layer Layer, key string, t *table.Table) error {
	staging := "staging_" + strings.ReplaceAll(uuid.NewString(), "-", "")

	colTypes := inferColumnTypes(t)
	defs := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(col), colTypes[i])
	}
	create := fmt.Sprintf("CREATE TEMP TABLE %s (%s)", staging, strings.Join(defs, ", "))
	if err := s.Exec(ctx, create); err != nil {
		return fmt.Errorf("failed to create staging table: %w", err)
	}
	defer s.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", staging))

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.Columns)), ",")
	insert := fmt.Sprintf("INSERT INTO %s VALUES (%s)", staging, placeholders)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin staging transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare staging insert: %w", err)
	}
	for _, row := range t.Rows {
		args := make([]any, len(t.Columns))
		for i, col := range t.Columns {
			args[i] = row[col]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("failed to stage row: %w", err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit staging rows: %w", err)
	}

	return s.copyToPartition(ctx, fmt.Sprintf("SELECT * FROM %s", staging), layer, key)
}

// CopyQuery materializes a query result directly into a partition snapshot
// with the same atomic-replace discipline. Used by the aggregation engine.
func (s *Store) CopyQuery(ctx context.Context, query string, layer Layer, key string) error {
	return s.copyToPartition(ctx, query, layer, key)
}

func (s *Store) copyToPartition(ctx context.Context, query string, layer Layer, key string) error {
	final := s.PartitionPath(layer, key)
	tmp := final + ".tmp-" + uuid.NewString()

	copySQL := fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET, COMPRESSION SNAPPY)", query, sqlString(tmp))
	if err := s.Exec(ctx, copySQL); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s/%s: %w", layer, key, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to promote %s/%s: %w", layer, key, err)
	}
	s.logger.Info("partition written",
		zap.String("layer", string(layer)),
		zap.String("key", key))
	return nil
}

// RowCount returns the number of rows in a partition snapshot.
func (s *Store) RowCount(ctx context.Context, layer Layer, key string) (int64, error) {
	if !s.HasPartition(layer, key) {
		return 0, fmt.Errorf("%s/%s: %w", layer, key, ErrPartitionNotFound)
	}
	v, err := s.QueryValue(ctx, fmt.Sprintf("SELECT count(*) FROM read_parquet(%s)", sqlString(s.PartitionPath(layer, key))))
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("unexpected count type %T", v)
}

// Watermark returns the maximum value of a timestamp column in a partition,
// or the zero time when the partition does not exist yet.
func (s *Store) Watermark(ctx context.Context, layer Layer, key, column string) (time.Time, error) {
	if !s.HasPartition(layer, key) {
		return time.Time{}, nil
	}
	query := fmt.Sprintf("SELECT max(%s) FROM read_parquet(%s)",
		quoteIdent(column), sqlString(s.PartitionPath(layer, key)))
	v, err := s.QueryValue(ctx, query)
	if err != nil {
		return time.Time{}, err
	}
	if v == nil {
		return time.Time{}, nil
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("watermark column %s is not a timestamp", column)
	}
	return t, nil
}

func inferColumnTypes(t *table.Table) []string {
	types := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		types[i] = "VARCHAR"
		for _, row := range t.Rows {
			switch row[col].(type) {
			case nil:
				continue
			case float64:
				types[i] = "DOUBLE"
			case bool:
				types[i] = "BOOLEAN"
			case time.Time:
				types[i] = "TIMESTAMP"
			case int64:
				types[i] = "BIGINT"
			}
			break
		}
	}
	return types
}

func normalizeValue(v any) any {
	switch tv := v.(type) {
	case []byte:
		return string(tv)
	case int32:
		return int64(tv)
	case float32:
		return float64(tv)
	default:
		return v
	}
}

// sqlString quotes a string literal for embedding in SQL.
func sqlString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteIdent quotes an identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
