package query

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

// PredicateFunction performs custom filtering logic on a document for a
// non-standard operator. It returns true if the document passes.
type PredicateFunction func(doc schema.Document, field string, args FilterValue) (bool, error)

// DataProcessor evaluates a QueryDSL against documents held in memory. It is
// the reference semantics for backends that cannot push a query down to an
// engine.
type DataProcessor struct {
	filterFunctions map[ComparisonOperator]PredicateFunction
	mu              sync.RWMutex
	logger          *zap.Logger
}

// NewDataProcessor creates a new DataProcessor instance.
func NewDataProcessor(logger *zap.Logger) *DataProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataProcessor{
		filterFunctions: make(map[ComparisonOperator]PredicateFunction),
		logger:          logger,
	}
}

// RegisterFilterFunction registers a Go function for a custom operator.
func (p *DataProcessor) RegisterFilterFunction(operator ComparisonOperator, fn PredicateFunction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filterFunctions[operator] = fn
	p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
}

// RegisterFilterFunctions registers multiple filter functions from a map.
func (p *DataProcessor) RegisterFilterFunctions(functionMap map[ComparisonOperator]PredicateFunction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for operator, fn := range functionMap {
		p.filterFunctions[operator] = fn
		p.logger.Info("Registered filter function", zap.String("operator", string(operator)))
	}
}

// Process applies a whole query to rows: filter, sort, window, then
// projection. The identifier field survives any projection. Input documents
// are never modified.
func (p *DataProcessor) Process(rows []schema.Document, dsl *QueryDSL, identifier string) ([]schema.Document, error) {
	if dsl == nil {
		return rows, nil
	}
	filtered, err := p.Filter(rows, dsl.Filters)
	if err != nil {
		return nil, fmt.Errorf("in-memory filter failed: %w", err)
	}
	p.logger.Debug("Rows remaining after filters", zap.Int("count", len(filtered)))

	sorted := p.Sort(filtered, dsl.Sort)
	windowed := p.Window(sorted, dsl.Pagination)
	return p.Project(windowed, dsl.Projection, identifier), nil
}

// Filter returns the rows that match filter.
func (p *DataProcessor) Filter(rows []schema.Document, filter *QueryFilter) ([]schema.Document, error) {
	if filter == nil {
		return rows, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	filtered := make([]schema.Document, 0, len(rows))
	for _, row := range rows {
		passes, err := p.evaluate(row, filter)
		if err != nil {
			return nil, fmt.Errorf("error evaluating filter for row %v: %w", row, err)
		}
		if passes {
			filtered = append(filtered, row)
		}
	}
	return filtered, nil
}

// Match evaluates a single document against filters. A nil filter matches
// everything.
func (p *DataProcessor) Match(ctx context.Context, filters *QueryFilter, data schema.Document) (bool, error) {
	if filters == nil {
		return true, nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.evaluate(data, filters)
}

func (p *DataProcessor) evaluate(row schema.Document, filter *QueryFilter) (bool, error) {
	if filter.Condition != nil {
		if !filter.Condition.Operator.IsStandard() {
			fn, ok := p.filterFunctions[filter.Condition.Operator]
			if !ok {
				return false, fmt.Errorf("unregistered filter function for operator: %s", filter.Condition.Operator)
			}
			return fn(row, filter.Condition.Field, filter.Condition.Value)
		}
		return evaluateStandardCondition(row, filter.Condition)
	}
	if filter.Group != nil {
		switch filter.Group.Operator {
		case schema.LogicalAnd:
			for i := range filter.Group.Conditions {
				passes, err := p.evaluate(row, &filter.Group.Conditions[i])
				if err != nil || !passes {
					return false, err
				}
			}
			return true, nil
		case schema.LogicalOr:
			for i := range filter.Group.Conditions {
				passes, err := p.evaluate(row, &filter.Group.Conditions[i])
				if err != nil {
					return false, err
				}
				if passes {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, fmt.Errorf("unsupported logical operator: %s", filter.Group.Operator)
		}
	}
	return false, fmt.Errorf("empty or invalid filter structure")
}

// evaluateStandardCondition follows document-store semantics: a missing field
// or an incomparable value is a non-match, not an error.
func evaluateStandardCondition(row schema.Document, condition *FilterCondition) (bool, error) {
	fieldValue, ok := Lookup(row, condition.Field)

	switch condition.Operator {
	case ComparisonOperatorExists:
		return ok && fieldValue != nil, nil
	case ComparisonOperatorNotExists:
		return !ok || fieldValue == nil, nil
	case ComparisonOperatorNeq:
		return !ok || !valuesEqual(fieldValue, condition.Value), nil
	case ComparisonOperatorNin:
		return !ok || !containsValue(condition.Value, fieldValue), nil
	}

	if !ok {
		return false, nil
	}

	switch condition.Operator {
	case ComparisonOperatorEq:
		return valuesEqual(fieldValue, condition.Value), nil
	case ComparisonOperatorLt, ComparisonOperatorLte, ComparisonOperatorGt, ComparisonOperatorGte:
		cmp, ok := compareValues(fieldValue, condition.Value)
		if !ok {
			return false, nil
		}
		switch condition.Operator {
		case ComparisonOperatorLt:
			return cmp < 0, nil
		case ComparisonOperatorLte:
			return cmp <= 0, nil
		case ComparisonOperatorGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case ComparisonOperatorIn:
		return containsValue(condition.Value, fieldValue), nil
	case ComparisonOperatorContains:
		return strings.Contains(fmt.Sprint(fieldValue), fmt.Sprint(condition.Value)), nil
	case ComparisonOperatorNotContains:
		return !strings.Contains(fmt.Sprint(fieldValue), fmt.Sprint(condition.Value)), nil
	case ComparisonOperatorStartsWith:
		return strings.HasPrefix(fmt.Sprint(fieldValue), fmt.Sprint(condition.Value)), nil
	case ComparisonOperatorEndsWith:
		return strings.HasSuffix(fmt.Sprint(fieldValue), fmt.Sprint(condition.Value)), nil
	default:
		return false, fmt.Errorf("unsupported standard comparison operator: %s", condition.Operator)
	}
}

// Sort returns a copy of rows ordered by keys, first key first. Missing
// values sort before present ones in ascending order.
func (p *DataProcessor) Sort(rows []schema.Document, keys []SortConfiguration) []schema.Document {
	out := append([]schema.Document(nil), rows...)
	if len(keys) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range keys {
			a, aok := Lookup(out[i], key.Field)
			b, bok := Lookup(out[j], key.Field)
			var cmp int
			switch {
			case !aok && !bok:
				cmp = 0
			case !aok:
				cmp = -1
			case !bok:
				cmp = 1
			default:
				var ok bool
				cmp, ok = compareValues(a, b)
				if !ok {
					cmp = strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
				}
			}
			if cmp == 0 {
				continue
			}
			if key.Direction == SortDirectionDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}

// Window applies offset pagination to rows.
func (p *DataProcessor) Window(rows []schema.Document, pagination *PaginationOptions) []schema.Document {
	if pagination == nil {
		return rows
	}
	skip := pagination.OffsetValue()
	if skip < 0 {
		skip = 0
	}
	if skip >= len(rows) {
		return []schema.Document{}
	}
	end := len(rows)
	if pagination.Limit > 0 && skip+pagination.Limit < end {
		end = skip + pagination.Limit
	}
	return rows[skip:end]
}

// Project shapes each row to the projection. Include mode keeps only the
// listed fields plus identifier; exclude mode drops the listed top-level
// fields. Rows are copied, never modified.
func (p *DataProcessor) Project(rows []schema.Document, projection *ProjectionConfiguration, identifier string) []schema.Document {
	out := make([]schema.Document, 0, len(rows))
	if projection == nil || (len(projection.Include) == 0 && len(projection.Exclude) == 0) {
		for _, row := range rows {
			out = append(out, maps.Clone(row))
		}
		return out
	}

	for _, row := range rows {
		var shaped schema.Document
		if len(projection.Include) > 0 {
			shaped = make(schema.Document, len(projection.Include)+1)
			if id, ok := row[identifier]; ok && identifier != "" {
				shaped[identifier] = id
			}
			for _, field := range projection.Include {
				if value, ok := Lookup(row, field.Name); ok {
					setPath(shaped, field.Name, value)
				}
			}
		} else {
			shaped = maps.Clone(row)
			for _, field := range projection.Exclude {
				delete(shaped, field.Name)
			}
		}
		out = append(out, shaped)
	}
	return out
}

// Lookup resolves a dotted path such as "address.city" inside doc.
func Lookup(doc schema.Document, path string) (any, bool) {
	if v, ok := doc[path]; ok {
		return v, true
	}
	var current any = map[string]any(doc)
	for _, part := range strings.Split(path, ".") {
		var m map[string]any
		switch node := current.(type) {
		case map[string]any:
			m = node
		case schema.Document:
			m = node
		default:
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func setPath(doc schema.Document, path string, value any) {
	parts := strings.Split(path, ".")
	node := map[string]any(doc)
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[part] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

func valuesEqual(a, b any) bool {
	if isNumber(a) || isNumber(b) {
		af, aok := ToFloat64(a)
		bf, bok := ToFloat64(b)
		if aok && bok {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		if bs, ok := b.(string); ok {
			parsed, err := strconv.ParseBool(bs)
			return err == nil && parsed == ab
		}
	}
	if bb, ok := b.(bool); ok {
		if as, ok := a.(string); ok {
			parsed, err := strconv.ParseBool(as)
			return err == nil && parsed == bb
		}
	}
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Equal(bt)
		}
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two values as numbers, times or strings, in that
// order of preference. The boolean is false when no ordering applies.
func compareValues(a, b any) (int, bool) {
	if isNumber(a) || isNumber(b) {
		af, aok := ToFloat64(a)
		bf, bok := ToFloat64(b)
		if aok && bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		at, aok := asTime(a)
		bt, bok := asTime(b)
		if aok && bok {
			return at.Compare(bt), true
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	}
	return time.Time{}, false
}

func containsValue(set any, v any) bool {
	rv := reflect.ValueOf(set)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return valuesEqual(v, set)
	}
	for i := 0; i < rv.Len(); i++ {
		if valuesEqual(v, rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}
