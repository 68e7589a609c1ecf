package mongodb

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var comparisonOperators = map[query.ComparisonOperator]string{
	query.ComparisonOperatorEq:  "$eq",
	query.ComparisonOperatorNeq: "$ne",
	query.ComparisonOperatorLt:  "$lt",
	query.ComparisonOperatorLte: "$lte",
	query.ComparisonOperatorGt:  "$gt",
	query.ComparisonOperatorGte: "$gte",
	query.ComparisonOperatorIn:  "$in",
	query.ComparisonOperatorNin: "$nin",
}

// BuildFilter renders filter as a MongoDB query document. An AND group of
// conditions becomes a single document keyed by field, so
// category=earphone AND price lte 50 renders as
// {"category": "earphone", "price": {"$lte": 50}}. Groups that cannot be
// merged that way fall back to $and. When sc is not nil, string operands
// are cast to the numeric or boolean type of the field they compare with.
func BuildFilter(sc *schema.SchemaDefinition, filter *query.QueryFilter) (bson.D, error) {
	if filter == nil {
		return bson.D{}, nil
	}
	return buildFilter(sc, *filter)
}

func buildFilter(sc *schema.SchemaDefinition, filter query.QueryFilter) (bson.D, error) {
	switch {
	case filter.Condition != nil:
		field, expr, err := buildCondition(sc, *filter.Condition)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: field, Value: collapseEq(expr)}}, nil
	case filter.Group != nil:
		return buildGroup(sc, *filter.Group)
	}
	return nil, fmt.Errorf("invalid filter structure: neither Condition nor Group is set")
}

func buildGroup(sc *schema.SchemaDefinition, group query.FilterGroup) (bson.D, error) {
	if len(group.Conditions) == 0 {
		return bson.D{}, nil
	}
	if len(group.Conditions) == 1 {
		return buildFilter(sc, group.Conditions[0])
	}

	switch group.Operator {
	case query.LogicalOperatorAnd:
		if merged, ok, err := mergeConditions(sc, group.Conditions); err != nil || ok {
			return merged, err
		}
		children, err := buildChildren(sc, group.Conditions)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$and", Value: children}}, nil
	case query.LogicalOperatorOr:
		children, err := buildChildren(sc, group.Conditions)
		if err != nil {
			return nil, err
		}
		return bson.D{{Key: "$or", Value: children}}, nil
	}
	return nil, fmt.Errorf("unsupported logical operator: %s", group.Operator)
}

func buildChildren(sc *schema.SchemaDefinition, filters []query.QueryFilter) (bson.A, error) {
	children := make(bson.A, 0, len(filters))
	for _, child := range filters {
		doc, err := buildFilter(sc, child)
		if err != nil {
			return nil, err
		}
		children = append(children, doc)
	}
	return children, nil
}

// mergeConditions folds plain conditions into one field-keyed document. It
// reports false when the group holds nested groups or repeats an operator
// on a field.
func mergeConditions(sc *schema.SchemaDefinition, filters []query.QueryFilter) (bson.D, bool, error) {
	var fields []string
	exprs := make(map[string]bson.D)
	for _, f := range filters {
		if f.Condition == nil {
			return nil, false, nil
		}
		field, expr, err := buildCondition(sc, *f.Condition)
		if err != nil {
			return nil, false, err
		}
		existing, seen := exprs[field]
		if !seen {
			fields = append(fields, field)
		}
		for _, e := range expr {
			if hasKey(existing, e.Key) {
				return nil, false, nil
			}
			existing = append(existing, e)
		}
		exprs[field] = existing
	}

	out := make(bson.D, 0, len(fields))
	for _, field := range fields {
		out = append(out, bson.E{Key: field, Value: collapseEq(exprs[field])})
	}
	return out, true, nil
}

func hasKey(doc bson.D, key string) bool {
	for _, e := range doc {
		if e.Key == key {
			return true
		}
	}
	return false
}

// collapseEq turns a lone {$eq: v} into v.
func collapseEq(expr bson.D) any {
	if len(expr) == 1 && expr[0].Key == "$eq" {
		return expr[0].Value
	}
	return expr
}

// checkField rejects paths mongo would read as operators or not store:
// a segment that is empty or starts with '$', or a NUL byte anywhere.
func checkField(name string) error {
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: invalid field path %q", persistence.ErrUnknownField, name)
	}
	for _, segment := range strings.Split(name, ".") {
		if segment == "" || segment[0] == '$' {
			return fmt.Errorf("%w: invalid field path %q", persistence.ErrUnknownField, name)
		}
	}
	return nil
}

// buildCondition returns the field and its operator document.
func buildCondition(sc *schema.SchemaDefinition, cond query.FilterCondition) (string, bson.D, error) {
	if cond.Field == "" {
		return "", nil, fmt.Errorf("filter condition has no field")
	}
	if err := checkField(cond.Field); err != nil {
		return "", nil, err
	}

	switch cond.Operator {
	case query.ComparisonOperatorExists:
		return cond.Field, bson.D{{Key: "$exists", Value: true}}, nil
	case query.ComparisonOperatorNotExists:
		return cond.Field, bson.D{{Key: "$exists", Value: false}}, nil
	case query.ComparisonOperatorContains:
		return cond.Field, bson.D{{Key: "$regex", Value: likePattern("", cond.Value, "")}}, nil
	case query.ComparisonOperatorNotContains:
		return cond.Field, bson.D{{Key: "$not", Value: likePattern("", cond.Value, "")}}, nil
	case query.ComparisonOperatorStartsWith:
		return cond.Field, bson.D{{Key: "$regex", Value: likePattern("^", cond.Value, "")}}, nil
	case query.ComparisonOperatorEndsWith:
		return cond.Field, bson.D{{Key: "$regex", Value: likePattern("", cond.Value, "$")}}, nil
	}

	op, ok := comparisonOperators[cond.Operator]
	if !ok {
		return "", nil, fmt.Errorf("unsupported comparison operator for mongodb: %s", cond.Operator)
	}

	value := castValue(sc, cond.Field, cond.Value)
	if cond.Operator == query.ComparisonOperatorIn || cond.Operator == query.ComparisonOperatorNin {
		value = castList(sc, cond.Field, cond.Value)
	}
	return cond.Field, bson.D{{Key: op, Value: value}}, nil
}

func likePattern(prefix string, value any, suffix string) primitive.Regex {
	return primitive.Regex{Pattern: prefix + regexp.QuoteMeta(fmt.Sprintf("%v", value)) + suffix}
}

func castList(sc *schema.SchemaDefinition, field string, value any) bson.A {
	var items []any
	switch v := value.(type) {
	case nil:
	case []any:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	default:
		items = []any{v}
	}
	out := make(bson.A, 0, len(items))
	for _, item := range items {
		out = append(out, castValue(sc, field, item))
	}
	return out
}

// castValue converts string operands for numeric and boolean fields.
// Nested paths and unknown fields are passed through.
func castValue(sc *schema.SchemaDefinition, field string, value any) any {
	str, ok := value.(string)
	if !ok || sc == nil || strings.Contains(field, ".") {
		return value
	}
	def := sc.Field(field)
	if def == nil {
		return value
	}
	switch {
	case def.Type == schema.FieldTypeInteger:
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			return n
		}
		fallthrough
	case def.Type.IsNumeric():
		if f, err := strconv.ParseFloat(str, 64); err == nil {
			return f
		}
	case def.Type == schema.FieldTypeBoolean:
		if b, err := strconv.ParseBool(str); err == nil {
			return b
		}
	}
	return value
}

// BuildSort renders sort keys as an ordered {field: 1|-1} document.
func BuildSort(keys []query.SortConfiguration) (bson.D, error) {
	out := make(bson.D, 0, len(keys))
	for _, key := range keys {
		if err := checkField(key.Field); err != nil {
			return nil, err
		}
		direction := 1
		if key.Direction == query.SortDirectionDesc {
			direction = -1
		}
		out = append(out, bson.E{Key: key.Field, Value: direction})
	}
	return out, nil
}

// BuildProjection renders a projection. The identifier is always returned
// and the driver's _id never is, unless it is the identifier.
func BuildProjection(projection *query.ProjectionConfiguration, identifier string) (bson.D, error) {
	var out bson.D
	switch {
	case projection != nil && len(projection.Include) > 0:
		out = append(out, bson.E{Key: identifier, Value: 1})
		for _, field := range projection.Include {
			if err := checkField(field.Name); err != nil {
				return nil, err
			}
			if field.Name != identifier && !hasKey(out, field.Name) {
				out = append(out, bson.E{Key: field.Name, Value: 1})
			}
		}
	case projection != nil && len(projection.Exclude) > 0:
		for _, field := range projection.Exclude {
			if err := checkField(field.Name); err != nil {
				return nil, err
			}
			if field.Name != identifier && field.Name != "_id" && !hasKey(out, field.Name) {
				out = append(out, bson.E{Key: field.Name, Value: 0})
			}
		}
	}
	if identifier != "_id" {
		out = append(out, bson.E{Key: "_id", Value: 0})
	}
	return out, nil
}

// FindOptions renders the sort, projection and window of dsl.
func FindOptions(dsl *query.QueryDSL, identifier string) (*options.FindOptions, error) {
	opts := options.Find()
	if dsl == nil {
		projection, _ := BuildProjection(nil, identifier)
		return opts.SetProjection(projection), nil
	}
	if len(dsl.Sort) > 0 {
		sort, err := BuildSort(dsl.Sort)
		if err != nil {
			return nil, err
		}
		opts.SetSort(sort)
	}
	projection, err := BuildProjection(dsl.Projection, identifier)
	if err != nil {
		return nil, err
	}
	opts.SetProjection(projection)
	if p := dsl.Pagination; p != nil {
		if skip := p.OffsetValue(); skip > 0 {
			opts.SetSkip(int64(skip))
		}
		if p.Limit > 0 {
			opts.SetLimit(int64(p.Limit))
		}
	}
	return opts, nil
}
