package sqlite

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
)

// SqliteQuery is a schema-aware query generator for SQLite.
// It leverages a SchemaDefinition to translate a QueryDSL against defined
// fields (including nested JSON fields) into SQLite SQL.
type SqliteQuery struct {
	schema *schema.SchemaDefinition
	table  string
}

// NewSqliteQuery creates a generator for sc. The table name is the schema
// name with prefix prepended.
func NewSqliteQuery(sc *schema.SchemaDefinition, prefix string) (*SqliteQuery, error) {
	if sc == nil {
		return nil, fmt.Errorf("schema definition cannot be nil")
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("schema must define a table name")
	}
	return &SqliteQuery{schema: sc, table: prefix + sc.Name}, nil
}

// quoteIdentifier properly quotes an identifier for SQLite.
func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// jsonPathSegment is what a nested path segment may hold. Segments are
// written into a JSON path literal, so nothing that could close it passes.
var jsonPathSegment = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// getFieldSQL translates a logical field path into the correct SQL accessor string.
func (s *SqliteQuery) getFieldSQL(fieldPath string) (string, error) {
	parts := strings.Split(fieldPath, ".")
	if parts[0] == "" {
		return "", fmt.Errorf("field path cannot be empty")
	}

	rootField, ok := s.schema.Fields[parts[0]]
	if !ok {
		return "", fmt.Errorf("%w: '%s' is not defined in %s", persistence.ErrUnknownField, parts[0], s.schema.Name)
	}

	if len(parts) == 1 {
		return quoteIdentifier(parts[0]), nil
	}

	switch rootField.Type {
	case schema.FieldTypeObject, schema.FieldTypeRecord:
		for _, segment := range parts[1:] {
			if !jsonPathSegment.MatchString(segment) {
				return "", fmt.Errorf("%w: invalid path segment %q in '%s'", persistence.ErrUnknownField, segment, fieldPath)
			}
		}
		jsonPath := "$." + strings.Join(parts[1:], ".")
		return fmt.Sprintf("json_extract(%s, '%s')", quoteIdentifier(parts[0]), jsonPath), nil
	default:
		return "", fmt.Errorf("field '%s' of type %s does not support nested querying", parts[0], rootField.Type)
	}
}

// prepareValueForQuery converts a Go value into the storage form of the
// field it is compared with. Query strings that name numbers or booleans
// are cast to the column's type; structured values become JSON text.
// Values compared against a nested path are passed through.
func (s *SqliteQuery) prepareValueForQuery(fieldPath string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	root, _, nested := strings.Cut(fieldPath, ".")
	field, exists := s.schema.Fields[root]
	if !exists {
		return nil, fmt.Errorf("%w: '%s' is not defined in %s", persistence.ErrUnknownField, root, s.schema.Name)
	}
	if nested {
		return value, nil
	}

	switch field.Type {
	case schema.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			switch strings.ToLower(v) {
			case "true", "1":
				return 1, nil
			case "false", "0":
				return 0, nil
			}
		case int, int64:
			return v, nil
		case float64:
			if v == 1.0 {
				return 1, nil
			}
			if v == 0.0 {
				return 0, nil
			}
		}
		return nil, fmt.Errorf("expected boolean for field '%s', got %T", fieldPath, value)

	case schema.FieldTypeInteger:
		if str, ok := value.(string); ok {
			if n, err := strconv.ParseInt(str, 10, 64); err == nil {
				return n, nil
			}
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				return f, nil
			}
		}
		return value, nil

	case schema.FieldTypeNumber, schema.FieldTypeDecimal:
		if str, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(str, 64); err == nil {
				return f, nil
			}
		}
		return value, nil

	case schema.FieldTypeDate:
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		return value, nil

	case schema.FieldTypeObject, schema.FieldTypeArray, schema.FieldTypeRecord:
		// Stored as TEXT.
		jsonBytes, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize field '%s' to JSON: %w", fieldPath, err)
		}
		return string(jsonBytes), nil

	case schema.FieldTypeEnum:
		if strVal, ok := value.(string); ok {
			return strVal, nil
		}
		return fmt.Sprintf("%v", value), nil

	default:
		return value, nil
	}
}

// GenerateSelectSQL creates a SQL SELECT query and its parameters from dsl.
// The identifier column is always selected, whichever projection mode is used.
func (s *SqliteQuery) GenerateSelectSQL(dsl *query.QueryDSL) (string, []any, error) {
	if dsl == nil {
		dsl = &query.QueryDSL{}
	}

	selectFields, err := s.selectList(dsl.Projection)
	if err != nil {
		return "", nil, fmt.Errorf("projection error: %w", err)
	}

	var whereClauses, orderByClauses []string
	var queryParams []any

	if dsl.Filters != nil {
		whereSQL, err := s.buildWhereClause(dsl.Filters, &queryParams)
		if err != nil {
			return "", nil, fmt.Errorf("error building WHERE clause: %w", err)
		}
		if whereSQL != "" {
			whereClauses = append(whereClauses, whereSQL)
		}
	}

	for _, sortCfg := range dsl.Sort {
		accessor, err := s.getFieldSQL(sortCfg.Field)
		if err != nil {
			return "", nil, fmt.Errorf("sort error: %w", err)
		}
		direction := "ASC"
		if sortCfg.Direction == query.SortDirectionDesc {
			direction = "DESC"
		}
		orderByClauses = append(orderByClauses, fmt.Sprintf("%s %s", accessor, direction))
	}

	limit, offset := -1, 0
	if dsl.Pagination != nil {
		if dsl.Pagination.Limit > 0 {
			limit = dsl.Pagination.Limit
		}
		offset = dsl.Pagination.OffsetValue()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectFields, ", "), quoteIdentifier(s.table)))
	if len(whereClauses) > 0 {
		sb.WriteString(" WHERE " + strings.Join(whereClauses, " AND "))
	}
	if len(orderByClauses) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(orderByClauses, ", "))
	}
	// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
	if limit > -1 || offset > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	}
	if offset > 0 {
		sb.WriteString(fmt.Sprintf(" OFFSET %d", offset))
	}

	return sb.String() + ";", queryParams, nil
}

func (s *SqliteQuery) selectList(projection *query.ProjectionConfiguration) ([]string, error) {
	if projection == nil || (len(projection.Include) == 0 && len(projection.Exclude) == 0) {
		return []string{"*"}, nil
	}

	identifier := s.schema.IdentifierField()
	var names []string
	if len(projection.Include) > 0 {
		if _, ok := s.schema.Fields[identifier]; ok {
			names = append(names, identifier)
		}
		for _, field := range projection.Include {
			if !slices.Contains(names, field.Name) {
				names = append(names, field.Name)
			}
		}
	} else {
		excluded := make(map[string]bool, len(projection.Exclude))
		for _, field := range projection.Exclude {
			if _, ok := s.schema.Fields[field.Name]; !ok && !strings.Contains(field.Name, ".") {
				return nil, fmt.Errorf("%w: '%s' is not defined in %s", persistence.ErrUnknownField, field.Name, s.schema.Name)
			}
			excluded[field.Name] = true
		}
		for _, name := range s.schema.FieldNames() {
			if name == identifier || !excluded[name] {
				names = append(names, name)
			}
		}
	}

	selectFields := make([]string, 0, len(names))
	for _, name := range names {
		accessor, err := s.getFieldSQL(name)
		if err != nil {
			return nil, err
		}
		if accessor == quoteIdentifier(name) {
			selectFields = append(selectFields, accessor)
			continue
		}
		selectFields = append(selectFields, fmt.Sprintf("%s AS %s", accessor, quoteIdentifier(name)))
	}
	return selectFields, nil
}

// buildWhereClause recursively builds the WHERE clause from a QueryFilter.
func (s *SqliteQuery) buildWhereClause(filter *query.QueryFilter, params *[]any) (string, error) {
	if filter.Condition != nil {
		return s.buildCondition(filter.Condition, params)
	}
	if filter.Group != nil {
		if filter.Group.Operator == "" {
			return "", fmt.Errorf("logical operator missing in filter group")
		}
		var clauses []string
		for _, cond := range filter.Group.Conditions {
			clause, err := s.buildWhereClause(&cond, params)
			if err != nil {
				return "", err
			}
			if clause != "" {
				clauses = append(clauses, clause)
			}
		}
		if len(clauses) == 0 {
			return "", nil
		}
		op := strings.ToUpper(string(filter.Group.Operator))
		return fmt.Sprintf("(%s)", strings.Join(clauses, " "+op+" ")), nil
	}
	return "", fmt.Errorf("invalid filter structure: neither Condition nor Group is set")
}

// buildCondition translates a single FilterCondition into a SQL condition string.
func (s *SqliteQuery) buildCondition(cond *query.FilterCondition, params *[]any) (string, error) {
	accessor, err := s.getFieldSQL(cond.Field)
	if err != nil {
		return "", err
	}

	switch cond.Operator {
	case query.ComparisonOperatorExists:
		return fmt.Sprintf("%s IS NOT NULL", accessor), nil
	case query.ComparisonOperatorNotExists:
		return fmt.Sprintf("%s IS NULL", accessor), nil
	case query.ComparisonOperatorIn, query.ComparisonOperatorNin:
		return s.buildMembership(accessor, cond, params)
	case query.ComparisonOperatorContains, query.ComparisonOperatorNotContains,
		query.ComparisonOperatorStartsWith, query.ComparisonOperatorEndsWith:
		return buildLike(accessor, cond, params), nil
	}

	preparedValue, err := s.prepareValueForQuery(cond.Field, cond.Value)
	if err != nil {
		return "", fmt.Errorf("failed to prepare value for condition field '%s': %w", cond.Field, err)
	}

	var op string
	switch cond.Operator {
	case query.ComparisonOperatorEq:
		if preparedValue == nil {
			return fmt.Sprintf("%s IS NULL", accessor), nil
		}
		op = "="
	case query.ComparisonOperatorNeq:
		if preparedValue == nil {
			return fmt.Sprintf("%s IS NOT NULL", accessor), nil
		}
		op = "!="
	case query.ComparisonOperatorLt:
		op = "<"
	case query.ComparisonOperatorLte:
		op = "<="
	case query.ComparisonOperatorGt:
		op = ">"
	case query.ComparisonOperatorGte:
		op = ">="
	default:
		return "", fmt.Errorf("unsupported comparison operator for direct SQL: %s", cond.Operator)
	}
	*params = append(*params, preparedValue)
	return fmt.Sprintf("%s %s ?", accessor, op), nil
}

func (s *SqliteQuery) buildMembership(accessor string, cond *query.FilterCondition, params *[]any) (string, error) {
	var vals []any
	switch v := cond.Value.(type) {
	case nil:
	case []any:
		vals = v
	case []string:
		for _, item := range v {
			vals = append(vals, item)
		}
	default:
		vals = []any{v}
	}

	if len(vals) == 0 {
		if cond.Operator == query.ComparisonOperatorIn {
			return "1=0", nil // IN empty list is always false
		}
		return "1=1", nil
	}

	for _, v := range vals {
		prepared, err := s.prepareValueForQuery(cond.Field, v)
		if err != nil {
			return "", fmt.Errorf("failed to prepare value for condition field '%s': %w", cond.Field, err)
		}
		*params = append(*params, prepared)
	}
	op := "IN"
	if cond.Operator == query.ComparisonOperatorNin {
		op = "NOT IN"
	}
	placeholders := strings.Repeat("?,", len(vals)-1) + "?"
	return fmt.Sprintf("%s %s (%s)", accessor, op, placeholders), nil
}

func buildLike(accessor string, cond *query.FilterCondition, params *[]any) string {
	strVal := fmt.Sprintf("%v", cond.Value)
	switch cond.Operator {
	case query.ComparisonOperatorStartsWith:
		*params = append(*params, strVal+"%")
		return fmt.Sprintf("%s LIKE ?", accessor)
	case query.ComparisonOperatorEndsWith:
		*params = append(*params, "%"+strVal)
		return fmt.Sprintf("%s LIKE ?", accessor)
	case query.ComparisonOperatorNotContains:
		*params = append(*params, "%"+strVal+"%")
		return fmt.Sprintf("%s NOT LIKE ?", accessor)
	default:
		*params = append(*params, "%"+strVal+"%")
		return fmt.Sprintf("%s LIKE ?", accessor)
	}
}

// GenerateInsertSQL creates a multi-row INSERT with a `RETURNING *` clause.
// Columns are the union of the records' keys in lexical order. Requires
// SQLite 3.35.0+.
func (s *SqliteQuery) GenerateInsertSQL(records []schema.Document) (string, []any, error) {
	if len(records) == 0 {
		return "", nil, fmt.Errorf("no records provided for insert")
	}

	fieldSet := make(map[string]bool)
	for _, record := range records {
		for fieldName := range record {
			if _, exists := s.schema.Fields[fieldName]; !exists {
				return "", nil, fmt.Errorf("%w: '%s' is not defined in %s", persistence.ErrUnknownField, fieldName, s.schema.Name)
			}
			fieldSet[fieldName] = true
		}
	}
	if len(fieldSet) == 0 {
		return "", nil, fmt.Errorf("no valid fields found in records")
	}

	fields := make([]string, 0, len(fieldSet))
	for fieldName := range fieldSet {
		fields = append(fields, fieldName)
	}
	slices.Sort(fields)

	quotedFields := make([]string, len(fields))
	for idx, field := range fields {
		quotedFields[idx] = quoteIdentifier(field)
	}
	rowPlaceholders := "(" + strings.Repeat("?, ", len(fields)-1) + "?)"

	valuesClauses := make([]string, 0, len(records))
	queryParams := make([]any, 0, len(records)*len(fields))
	for _, record := range records {
		for _, fieldName := range fields {
			preparedValue, err := s.prepareValueForQuery(fieldName, record[fieldName])
			if err != nil {
				return "", nil, fmt.Errorf("error preparing value for field '%s': %w", fieldName, err)
			}
			queryParams = append(queryParams, preparedValue)
		}
		valuesClauses = append(valuesClauses, rowPlaceholders)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s RETURNING *;",
		quoteIdentifier(s.table), strings.Join(quotedFields, ", "), strings.Join(valuesClauses, ", "))
	return sql, queryParams, nil
}
