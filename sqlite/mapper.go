package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

// quoteIdentifier safely quotes a table or column name.
func (s *SQLiteInteractor) quoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// getTableName returns the quoted table name with the configured prefix.
func (s *SQLiteInteractor) getTableName(baseName string) string {
	return s.quoteIdentifier(s.options.TablePrefix + baseName)
}

// CreateCollection creates the table for sc and its secondary indexes in a
// single transaction, so either everything is created or nothing is.
func (s *SQLiteInteractor) CreateCollection(ctx context.Context, sc *schema.SchemaDefinition) (err error) {
	statements, err := s.CreateTableSQL(sc)
	if err != nil {
		return fmt.Errorf("failed to generate SQL for table %s: %w", sc.Name, err)
	}

	if s.options.CreateIndexes {
		fullTableName := s.getTableName(sc.Name)
		for _, index := range sc.Indexes {
			sqlIndex, err := s.CreateIndexSQL(fullTableName, index)
			if err != nil {
				return fmt.Errorf("failed to generate SQL for index %s: %w", index.Name, err)
			}
			if sqlIndex != "" {
				statements = append(statements, sqlIndex)
			}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to roll back collection creation", zap.Error(rbErr))
			}
		}
	}()

	for _, stmt := range statements {
		s.logger.Debug("Executing DDL", zap.String("sql", stmt))
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute SQL statement '%s': %w", stmt, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collection %s: %w", sc.Name, err)
	}
	return nil
}

// CreateTableSQL generates the CREATE TABLE statement for sc. Columns are
// emitted in lexical order.
func (s *SQLiteInteractor) CreateTableSQL(sc *schema.SchemaDefinition) ([]string, error) {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	if s.options.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(s.getTableName(sc.Name) + " (\n")

	var primaryKeys []string
	for _, index := range sc.Indexes {
		if index.Type == schema.IndexTypePrimary && len(index.Fields) > 0 {
			primaryKeys = index.Fields
			break
		}
	}
	if len(primaryKeys) == 0 {
		if _, ok := sc.Fields[sc.IdentifierField()]; ok {
			primaryKeys = []string{sc.IdentifierField()}
		}
	}

	columns := make([]string, 0, len(sc.Fields))
	for _, name := range sc.FieldNames() {
		columnDef, err := s.buildColumnDefinition(name, sc.Fields[name])
		if err != nil {
			return nil, fmt.Errorf("error on field '%s': %w", name, err)
		}
		columns = append(columns, "    "+columnDef)
	}
	sb.WriteString(strings.Join(columns, ",\n"))

	if len(primaryKeys) > 0 {
		quotedPKs := make([]string, len(primaryKeys))
		for i, pk := range primaryKeys {
			quotedPKs[i] = s.quoteIdentifier(pk)
		}
		sb.WriteString(",\n    PRIMARY KEY (" + strings.Join(quotedPKs, ", ") + ")")
	}

	sb.WriteString("\n);")
	return []string{sb.String()}, nil
}

// buildColumnDefinition constructs the DDL for a single column.
func (s *SQLiteInteractor) buildColumnDefinition(fieldName string, field *schema.FieldDefinition) (string, error) {
	parts := []string{s.quoteIdentifier(fieldName), s.GetColumnType(field.Type)}

	if field.Required != nil && *field.Required {
		parts = append(parts, "NOT NULL")
	}
	if field.Default != nil {
		defVal, err := s.formatDefaultValue(field.Default, field.Type)
		if err != nil {
			return "", err
		}
		parts = append(parts, "DEFAULT "+defVal)
	}
	if field.Unique != nil && *field.Unique {
		parts = append(parts, "UNIQUE")
	}
	if field.Type == schema.FieldTypeEnum && len(field.Values) > 0 {
		checkValues := make([]string, 0, len(field.Values))
		for _, v := range field.Values {
			valStr, _ := s.formatDefaultValue(v, schema.FieldTypeString)
			checkValues = append(checkValues, valStr)
		}
		parts = append(parts, fmt.Sprintf("CHECK(%s IN (%s))", s.quoteIdentifier(fieldName), strings.Join(checkValues, ", ")))
	}
	return strings.Join(parts, " "), nil
}

// GetColumnType maps a schema.FieldType to its SQLite column type.
func (s *SQLiteInteractor) GetColumnType(fieldType schema.FieldType) string {
	switch fieldType {
	case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDate:
		return "TEXT"
	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		return "REAL"
	case schema.FieldTypeInteger, schema.FieldTypeBoolean:
		return "INTEGER"
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		return "TEXT"
	default:
		return "BLOB"
	}
}

// formatDefaultValue renders a default value as a DDL literal.
func (s *SQLiteInteractor) formatDefaultValue(value any, fieldType schema.FieldType) (string, error) {
	if value == nil {
		return "NULL", nil
	}
	switch fieldType {
	case schema.FieldTypeString, schema.FieldTypeEnum, schema.FieldTypeDate:
		return fmt.Sprintf("'%s'", strings.ReplaceAll(fmt.Sprintf("%v", value), "'", "''")), nil
	case schema.FieldTypeNumber, schema.FieldTypeInteger, schema.FieldTypeDecimal:
		return fmt.Sprintf("%v", value), nil
	case schema.FieldTypeBoolean:
		if b, ok := value.(bool); ok && b {
			return "1", nil
		}
		return "0", nil
	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("failed to marshal default value to JSON: %w", err)
		}
		return fmt.Sprintf("'%s'", strings.ReplaceAll(string(jsonBytes), "'", "''")), nil
	default:
		return "", fmt.Errorf("unsupported type for default value: %s", fieldType)
	}
}

// CreateIndexSQL generates the CREATE INDEX statement for index. Primary
// indexes are part of the table definition and yield an empty string.
func (s *SQLiteInteractor) CreateIndexSQL(table string, index schema.IndexDefinition) (string, error) {
	if index.Type == schema.IndexTypePrimary {
		return "", nil
	}
	if len(index.Fields) == 0 {
		return "", fmt.Errorf("index %s has no fields", index.Name)
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if (index.Unique != nil && *index.Unique) || index.Type == schema.IndexTypeUnique {
		sb.WriteString("UNIQUE ")
	}
	sb.WriteString("INDEX IF NOT EXISTS ")
	indexName := index.Name
	if indexName == "" {
		unquotedTableName := strings.Trim(table, `"`)
		indexName = fmt.Sprintf("idx_%s_%s", unquotedTableName, strings.Join(index.Fields, "_"))
	}
	sb.WriteString(s.quoteIdentifier(indexName))
	sb.WriteString(fmt.Sprintf(" ON %s (", table))

	fieldParts := make([]string, 0, len(index.Fields))
	for _, field := range index.Fields {
		var part string
		if root, rest, nested := strings.Cut(field, "."); nested {
			for _, segment := range strings.Split(rest, ".") {
				if !jsonPathSegment.MatchString(segment) {
					return "", fmt.Errorf("index %s: invalid path segment %q in '%s'", index.Name, segment, field)
				}
			}
			part = fmt.Sprintf("json_extract(%s, '$.%s')", s.quoteIdentifier(root), rest)
		} else {
			part = s.quoteIdentifier(field)
		}
		if index.Order != nil && strings.EqualFold(*index.Order, "desc") {
			part += " DESC"
		}
		fieldParts = append(fieldParts, part)
	}
	sb.WriteString(strings.Join(fieldParts, ", ") + ");")
	return sb.String(), nil
}

// CollectionExists checks sqlite_master for the prefixed table name.
func (s *SQLiteInteractor) CollectionExists(ctx context.Context, collection string) (bool, error) {
	const lookup = "SELECT name FROM sqlite_master WHERE type='table' AND name = ?;"

	var name string
	err := s.db.QueryRowContext(ctx, lookup, s.options.TablePrefix+collection).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up table %s: %w", collection, err)
	}
	return true, nil
}
