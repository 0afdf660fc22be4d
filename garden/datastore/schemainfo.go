package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/realsystem/gardening-service-sub002/garden/datastore/metrics"
)

// Column describes a single table column as reported by the information
// schema.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  sql.NullString
}

// SchemaInfoReader is the interface that defines read operations for a
// schema information store.
type SchemaInfoReader interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
	Columns(ctx context.Context, table string) ([]Column, error)
	TypeExists(ctx context.Context, name string) (bool, error)
	EnumLabels(ctx context.Context, name string) ([]string, error)
}

// schemaInfoStore is a concrete implementation of a schema information store.
// It reads the catalog of the connected database and never modifies it.
type schemaInfoStore struct {
	// db can be either a *sql.DB or *sql.Tx
	db Queryer
}

// NewSchemaInfoStore builds a new schema information store.
func NewSchemaInfoStore(db Queryer) *schemaInfoStore {
	return &schemaInfoStore{db: db}
}

func (s *schemaInfoStore) TableExists(ctx context.Context, table string) (bool, error) {
	defer metrics.InstrumentQuery("schema_info_table_exists")()
	// Query returns "t" or "f", the subquery is only evaluated based on whether a
	// row is returned or not.
	q := `SELECT
    EXISTS (
        SELECT
            1
        FROM
            information_schema.tables
        WHERE
            table_schema = current_schema()
            AND table_name = $1)`

	var exists string

	if err := s.db.QueryRowContext(ctx, q, table).Scan(&exists); err != nil {
		return false, fmt.Errorf("scanning table row: %w", err)
	}

	return strconv.ParseBool(exists)
}

func (s *schemaInfoStore) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	defer metrics.InstrumentQuery("schema_info_column_exists")()
	q := `SELECT
    EXISTS (
        SELECT
            1
        FROM
            information_schema.columns
        WHERE
            table_schema = current_schema()
            AND table_name = $1
            AND column_name = $2)`

	var exists string

	if err := s.db.QueryRowContext(ctx, q, table, column).Scan(&exists); err != nil {
		return false, fmt.Errorf("scanning column row: %w", err)
	}

	return strconv.ParseBool(exists)
}

func (s *schemaInfoStore) Columns(ctx context.Context, table string) ([]Column, error) {
	defer metrics.InstrumentQuery("schema_info_columns")()
	q := `SELECT
			column_name,
			data_type,
			is_nullable,
			column_default
		FROM
			information_schema.columns
		WHERE
			table_schema = current_schema()
			AND table_name = $1
		ORDER BY
			ordinal_position`

	rows, err := s.db.QueryContext(ctx, q, table)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable string

		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &c.Default); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		c.Nullable = nullable == "YES"

		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	return cols, nil
}

func (s *schemaInfoStore) TypeExists(ctx context.Context, name string) (bool, error) {
	defer metrics.InstrumentQuery("schema_info_type_exists")()
	q := `SELECT
    EXISTS (
        SELECT
            1
        FROM
            pg_type AS t
            JOIN pg_namespace AS n ON n.oid = t.typnamespace
        WHERE
            t.typname = $1
            AND n.nspname = current_schema())`

	var exists string

	if err := s.db.QueryRowContext(ctx, q, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("scanning type row: %w", err)
	}

	return strconv.ParseBool(exists)
}

func (s *schemaInfoStore) EnumLabels(ctx context.Context, name string) ([]string, error) {
	defer metrics.InstrumentQuery("schema_info_enum_labels")()
	q := `SELECT
			e.enumlabel
		FROM
			pg_enum AS e
			JOIN pg_type AS t ON t.oid = e.enumtypid
			JOIN pg_namespace AS n ON n.oid = t.typnamespace
		WHERE
			t.typname = $1
			AND n.nspname = current_schema()
		ORDER BY
			e.enumsortorder`

	rows, err := s.db.QueryContext(ctx, q, name)
	if err != nil {
		return nil, fmt.Errorf("querying enum labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scanning enum label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading enum labels: %w", err)
	}

	return labels, nil
}
