// Package sqlite implements persistence.DatabaseInteractor on SQLite. The
// QueryDSL is rendered to parameterised SQL by SqliteQuery; schemas are
// mapped to tables and indexes, with structured fields stored as JSON text.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

// SQLiteInteractor runs storefront queries against a SQLite database.
type SQLiteInteractor struct {
	db      *sql.DB
	logger  *zap.Logger
	options *persistence.InteractorOptions
	now     func() time.Time
}

// Ensure SQLiteInteractor implements the persistence.DatabaseInteractor interface.
var _ persistence.DatabaseInteractor = (*SQLiteInteractor)(nil)

// NewSQLiteInteractor creates an interactor over db. Nil options mean
// persistence.DefaultInteractorOptions.
func NewSQLiteInteractor(db *sql.DB, logger *zap.Logger, options *persistence.InteractorOptions) *SQLiteInteractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options == nil {
		options = persistence.DefaultInteractorOptions()
	}
	return &SQLiteInteractor{
		db:      db,
		logger:  logger,
		options: options,
		now:     time.Now,
	}
}

// readRows converts every row of rows into a Document, decoding each column
// according to its schema type.
func readRows(logger *zap.Logger, sc *schema.SchemaDefinition, rows *sql.Rows) ([]schema.Document, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := []schema.Document{}
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(schema.Document, len(columns))
		for i, col := range columns {
			val := values[i]
			if val == nil {
				row[col] = nil
				continue
			}
			fieldDef, ok := sc.Fields[col]
			if !ok {
				logger.Warn("Column not found in schema, using raw value", zap.String("column", col))
				row[col] = val
				continue
			}
			row[col] = decodeColumn(fieldDef.Type, val)
		}
		results = append(results, row)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error after scanning rows: %w", err)
	}
	return results, nil
}

func decodeColumn(fieldType schema.FieldType, val any) any {
	switch fieldType {
	case schema.FieldTypeBoolean:
		switch v := val.(type) {
		case int64:
			return v != 0
		case bool:
			return v
		}
	case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDate:
		if b, ok := val.([]byte); ok {
			return string(b)
		}
	case schema.FieldTypeInteger:
		if f, ok := val.(float64); ok {
			return int64(f)
		}
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		if n, ok := val.(int64); ok {
			return float64(n)
		}
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		var raw []byte
		switch v := val.(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		}
		if raw != nil {
			var decoded any
			if err := json.Unmarshal(raw, &decoded); err == nil {
				return decoded
			}
		}
	}
	return val
}

// SelectDocuments executes a SELECT built from dsl.
func (i *SQLiteInteractor) SelectDocuments(ctx context.Context, sc *schema.SchemaDefinition, dsl *query.QueryDSL) ([]schema.Document, error) {
	generator, err := NewSqliteQuery(sc, i.options.TablePrefix)
	if err != nil {
		return nil, fmt.Errorf("could not create a query generator: %w", err)
	}

	sqlQuery, queryParams, err := generator.GenerateSelectSQL(dsl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate SQL query: %w", err)
	}

	i.logger.Debug("Executing SQL SELECT", zap.String("sql", sqlQuery), zap.Any("params", queryParams))

	rows, err := i.db.QueryContext(ctx, sqlQuery, queryParams...)
	if err != nil {
		i.logger.Error("Failed to execute SELECT query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute SELECT query: %w", err)
	}
	defer rows.Close()
	return readRows(i.logger, sc, rows)
}

// InsertDocuments inserts records with INSERT ... RETURNING and returns the
// stored rows.
func (i *SQLiteInteractor) InsertDocuments(ctx context.Context, sc *schema.SchemaDefinition, records []schema.Document) ([]schema.Document, error) {
	if len(records) == 0 {
		return []schema.Document{}, nil
	}
	generator, err := NewSqliteQuery(sc, i.options.TablePrefix)
	if err != nil {
		return nil, fmt.Errorf("could not create a query generator: %w", err)
	}

	now := i.now()
	prepared := make([]schema.Document, len(records))
	for idx, record := range records {
		prepared[idx] = persistence.PrepareDocument(sc, record, now)
	}

	sqlQuery, queryParams, err := generator.GenerateInsertSQL(prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to generate INSERT SQL: %w", err)
	}

	i.logger.Debug("Executing SQL INSERT with RETURNING clause", zap.String("sql", sqlQuery), zap.Any("params", queryParams))

	rows, err := i.db.QueryContext(ctx, sqlQuery, queryParams...)
	if err != nil {
		i.logger.Error("Failed to execute INSERT ... RETURNING query", zap.Error(err), zap.String("sql", sqlQuery))
		return nil, fmt.Errorf("failed to execute INSERT ... RETURNING query: %w", err)
	}
	defer rows.Close()
	return readRows(i.logger, sc, rows)
}
