package query

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-storefront/core/schema"
)

// QueryBuilder provides a fluent API for building QueryDSL structures. It is
// also the mutable query plan the feature pipeline composes onto: the Apply
// methods satisfy features.Queryable.
type QueryBuilder struct {
	query QueryDSL
}

// NewQueryBuilder creates a new, empty query builder instance.
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{
		query: QueryDSL{},
	}
}

// Build returns a copy of the constructed QueryDSL. Later changes to the
// builder do not affect the returned value.
func (qb *QueryBuilder) Build() QueryDSL {
	return cloneDSL(qb.query)
}

// Clone creates a deep copy of the current query builder.
func (qb *QueryBuilder) Clone() *QueryBuilder {
	return &QueryBuilder{query: cloneDSL(qb.query)}
}

// Reset clears all configurations from the query builder, returning it to its initial state.
func (qb *QueryBuilder) Reset() *QueryBuilder {
	qb.query = QueryDSL{}
	return qb
}

// ApplyFilter ANDs filter with any filter already on the plan. A nil filter
// leaves the plan unconstrained.
func (qb *QueryBuilder) ApplyFilter(filter *QueryFilter) {
	if filter == nil {
		return
	}
	if qb.query.Filters == nil {
		f := cloneFilter(*filter)
		qb.query.Filters = &f
		return
	}
	combined := And(*qb.query.Filters, cloneFilter(*filter))
	qb.query.Filters = &combined
}

// ApplySort replaces the sort keys on the plan.
func (qb *QueryBuilder) ApplySort(keys []SortConfiguration) {
	if len(keys) == 0 {
		qb.query.Sort = nil
		return
	}
	qb.query.Sort = append([]SortConfiguration(nil), keys...)
}

// ApplyProjection replaces the projection on the plan.
func (qb *QueryBuilder) ApplyProjection(projection *ProjectionConfiguration) {
	if projection == nil {
		qb.query.Projection = nil
		return
	}
	p := cloneProjection(*projection)
	qb.query.Projection = &p
}

// ApplyPagination replaces the skip/take window on the plan.
func (qb *QueryBuilder) ApplyPagination(skip, take int) {
	qb.Limit(take).Offset(skip)
}

// FilterConditionBuilder is used to build a single filter condition (e.g., field = value).
type FilterConditionBuilder struct {
	parent *QueryBuilder
	field  string
}

// Where begins a condition on field. Successive Where calls are ANDed.
func (qb *QueryBuilder) Where(field string) *FilterConditionBuilder {
	return &FilterConditionBuilder{parent: qb, field: field}
}

// WhereGroup begins a group of conditions combined with operator.
func (qb *QueryBuilder) WhereGroup(operator schema.LogicalOperator) *FilterGroupBuilder {
	return &FilterGroupBuilder{
		parent:   qb,
		operator: operator,
	}
}

// Eq adds an equality condition to the query.
func (fcb *FilterConditionBuilder) Eq(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorEq, value)
}

// Neq adds a not-equal condition to the query.
func (fcb *FilterConditionBuilder) Neq(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorNeq, value)
}

// Lt adds a less-than condition to the query.
func (fcb *FilterConditionBuilder) Lt(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLt, value)
}

// Lte adds a less-than-or-equal condition to the query.
func (fcb *FilterConditionBuilder) Lte(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorLte, value)
}

// Gt adds a greater-than condition to the query.
func (fcb *FilterConditionBuilder) Gt(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGt, value)
}

// Gte adds a greater-than-or-equal condition to the query.
func (fcb *FilterConditionBuilder) Gte(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorGte, value)
}

// In adds an "in" condition, checking if a field's value is within a set of values.
func (fcb *FilterConditionBuilder) In(values ...FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorIn, values)
}

// Contains adds a condition to check if a string field contains a substring.
func (fcb *FilterConditionBuilder) Contains(value FilterValue) *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorContains, value)
}

// Exists adds a condition to check if a field exists and is not null.
func (fcb *FilterConditionBuilder) Exists() *QueryBuilder {
	return fcb.addCondition(ComparisonOperatorExists, true)
}

// Custom allows for the use of a custom comparison operator.
func (fcb *FilterConditionBuilder) Custom(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	return fcb.addCondition(operator, value)
}

func (fcb *FilterConditionBuilder) addCondition(operator ComparisonOperator, value FilterValue) *QueryBuilder {
	filter := CreateSimpleFilter(fcb.field, operator, value)
	fcb.parent.ApplyFilter(&filter)
	return fcb.parent
}

// FilterGroupBuilder is used to build a group of filter conditions.
type FilterGroupBuilder struct {
	parent     *QueryBuilder
	operator   schema.LogicalOperator
	conditions []QueryFilter
}

// Where adds a condition on field to the current group.
func (fgb *FilterGroupBuilder) Where(field string, operator ComparisonOperator, value FilterValue) *FilterGroupBuilder {
	fgb.conditions = append(fgb.conditions, CreateSimpleFilter(field, operator, value))
	return fgb
}

// End finalizes the current filter group and ANDs it onto the query.
func (fgb *FilterGroupBuilder) End() *QueryBuilder {
	if len(fgb.conditions) == 0 {
		return fgb.parent
	}
	filter := CreateFilterGroup(fgb.operator, fgb.conditions...)
	fgb.parent.ApplyFilter(&filter)
	return fgb.parent
}

// OrderBy adds a sorting configuration to the query.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	qb.query.Sort = append(qb.query.Sort, SortConfiguration{
		Field:     field,
		Direction: direction,
	})
	return qb
}

// OrderByAsc adds an ascending sort order for a specific field.
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionAsc)
}

// OrderByDesc adds a descending sort order for a specific field.
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDirectionDesc)
}

// Limit sets the maximum number of records to be returned by the query.
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{Type: "offset"}
	}
	qb.query.Pagination.Limit = limit
	return qb
}

// Offset sets the number of records to skip.
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder {
	if qb.query.Pagination == nil {
		qb.query.Pagination = &PaginationOptions{Type: "offset"}
	}
	qb.query.Pagination.Offset = &offset
	return qb
}

// ProjectionBuilder is used to build the projection part of a query.
type ProjectionBuilder struct {
	parent *QueryBuilder
	config *ProjectionConfiguration
}

// Select begins the construction of the projection for the query.
func (qb *QueryBuilder) Select() *ProjectionBuilder {
	if qb.query.Projection == nil {
		qb.query.Projection = &ProjectionConfiguration{}
	}
	return &ProjectionBuilder{
		parent: qb,
		config: qb.query.Projection,
	}
}

// Include specifies which fields should be included in the result set.
func (pb *ProjectionBuilder) Include(fields ...string) *ProjectionBuilder {
	pb.config.AddIncludeFields(fields...)
	return pb
}

// Exclude specifies which fields should be excluded from the result set.
func (pb *ProjectionBuilder) Exclude(fields ...string) *ProjectionBuilder {
	pb.config.AddExcludeFields(fields...)
	return pb
}

// End finalizes the projection and returns to the main query builder.
func (pb *ProjectionBuilder) End() *QueryBuilder {
	return pb.parent
}

// QueryValidationError represents an error found during query validation.
type QueryValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a QueryValidationError.
func (ve QueryValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// QueryValidationResult contains the results of a query validation.
type QueryValidationResult struct {
	IsValid bool
	Errors  []QueryValidationError
}

// Validate checks the built query for invalid pagination and conflicting
// projection modes.
func (qb *QueryBuilder) Validate() QueryValidationResult {
	var errors []QueryValidationError

	if p := qb.query.Pagination; p != nil {
		if p.Limit <= 0 {
			errors = append(errors, QueryValidationError{
				Field:   "pagination.limit",
				Message: "limit must be greater than 0",
			})
		}
		if p.Offset != nil && *p.Offset < 0 {
			errors = append(errors, QueryValidationError{
				Field:   "pagination.offset",
				Message: "offset cannot be negative",
			})
		}
	}

	if p := qb.query.Projection; p != nil {
		if len(p.Include) > 0 && len(p.Exclude) > 0 {
			errors = append(errors, QueryValidationError{
				Field:   "projection",
				Message: "cannot have both include and exclude fields",
			})
		}
	}

	for i, s := range qb.query.Sort {
		if s.Field == "" {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("sort[%d].field", i),
				Message: "sort field cannot be empty",
			})
		}
	}

	return QueryValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// String returns a human-readable representation of the built query.
func (qb *QueryBuilder) String() string {
	var parts []string

	if qb.query.Filters != nil {
		parts = append(parts, "FILTERS: "+describeFilter(*qb.query.Filters))
	}

	if len(qb.query.Sort) > 0 {
		sortFields := make([]string, len(qb.query.Sort))
		for i, sort := range qb.query.Sort {
			sortFields[i] = fmt.Sprintf("%s %s", sort.Field, sort.Direction)
		}
		parts = append(parts, fmt.Sprintf("ORDER BY: %s", strings.Join(sortFields, ", ")))
	}

	if p := qb.query.Projection; p != nil {
		if len(p.Include) > 0 {
			parts = append(parts, "SELECT: "+strings.Join(fieldNames(p.Include), ", "))
		}
		if len(p.Exclude) > 0 {
			parts = append(parts, "EXCLUDE: "+strings.Join(fieldNames(p.Exclude), ", "))
		}
	}

	if p := qb.query.Pagination; p != nil {
		parts = append(parts, fmt.Sprintf("LIMIT: %d", p.Limit))
		if p.Offset != nil {
			parts = append(parts, fmt.Sprintf("OFFSET: %d", *p.Offset))
		}
	}

	if len(parts) == 0 {
		return "EMPTY QUERY"
	}

	return strings.Join(parts, " | ")
}

func describeFilter(f QueryFilter) string {
	if f.Condition != nil {
		return fmt.Sprintf("%s %s %v", f.Condition.Field, f.Condition.Operator, f.Condition.Value)
	}
	if f.Group != nil {
		parts := make([]string, len(f.Group.Conditions))
		for i, c := range f.Group.Conditions {
			parts[i] = describeFilter(c)
		}
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(f.Group.Operator))+" ") + ")"
	}
	return "()"
}

func fieldNames(fields []ProjectionField) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// CreateSimpleFilter is a helper function to create a simple filter condition.
func CreateSimpleFilter(field string, operator ComparisonOperator, value FilterValue) QueryFilter {
	return QueryFilter{
		Condition: &FilterCondition{
			Field:    field,
			Operator: operator,
			Value:    value,
		},
	}
}

// CreateFilterGroup is a helper function to create a filter group.
func CreateFilterGroup(operator schema.LogicalOperator, conditions ...QueryFilter) QueryFilter {
	return QueryFilter{
		Group: &FilterGroup{
			Operator:   operator,
			Conditions: conditions,
		},
	}
}

// And combines filters into a single AND group. Nested AND groups are
// flattened so repeated composition does not deepen the tree. A single
// filter is returned as is.
func And(filters ...QueryFilter) QueryFilter {
	var conditions []QueryFilter
	for _, f := range filters {
		if f.Group != nil && f.Group.Operator == LogicalOperatorAnd {
			conditions = append(conditions, f.Group.Conditions...)
			continue
		}
		conditions = append(conditions, f)
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return CreateFilterGroup(LogicalOperatorAnd, conditions...)
}

// AddIncludeFields adds fields to be included in a projection configuration.
func (pc *ProjectionConfiguration) AddIncludeFields(fields ...string) *ProjectionConfiguration {
	for _, field := range fields {
		pc.Include = append(pc.Include, ProjectionField{Name: field})
	}
	return pc
}

// AddExcludeFields adds fields to be excluded from a projection configuration.
func (pc *ProjectionConfiguration) AddExcludeFields(fields ...string) *ProjectionConfiguration {
	for _, field := range fields {
		pc.Exclude = append(pc.Exclude, ProjectionField{Name: field})
	}
	return pc
}

func cloneDSL(q QueryDSL) QueryDSL {
	out := QueryDSL{}
	if q.Filters != nil {
		f := cloneFilter(*q.Filters)
		out.Filters = &f
	}
	if q.Sort != nil {
		out.Sort = append([]SortConfiguration(nil), q.Sort...)
	}
	if q.Pagination != nil {
		p := *q.Pagination
		if q.Pagination.Offset != nil {
			offset := *q.Pagination.Offset
			p.Offset = &offset
		}
		out.Pagination = &p
	}
	if q.Projection != nil {
		p := cloneProjection(*q.Projection)
		out.Projection = &p
	}
	return out
}

func cloneFilter(f QueryFilter) QueryFilter {
	out := QueryFilter{}
	if f.Condition != nil {
		c := *f.Condition
		out.Condition = &c
	}
	if f.Group != nil {
		g := FilterGroup{Operator: f.Group.Operator}
		if f.Group.Conditions != nil {
			g.Conditions = make([]QueryFilter, len(f.Group.Conditions))
			for i, c := range f.Group.Conditions {
				g.Conditions[i] = cloneFilter(c)
			}
		}
		out.Group = &g
	}
	return out
}

func cloneProjection(p ProjectionConfiguration) ProjectionConfiguration {
	out := ProjectionConfiguration{}
	if p.Include != nil {
		out.Include = append([]ProjectionField(nil), p.Include...)
	}
	if p.Exclude != nil {
		out.Exclude = append([]ProjectionField(nil), p.Exclude...)
	}
	return out
}
