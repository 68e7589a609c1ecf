// Package query defines the typed query language shared by every storefront
// backend. A QueryDSL describes filtering, sorting, projection and
// pagination without committing to any engine's syntax; each backend renders
// it into its own form.
package query

import (
	"github.com/asaidimu/go-storefront/core/schema"
)

// Logical operators for combining filter conditions.
const (
	LogicalOperatorAnd schema.LogicalOperator = schema.LogicalAnd
	LogicalOperatorOr  schema.LogicalOperator = schema.LogicalOr
)

// ComparisonOperator defines the set of operators that can be used in a filter condition.
type ComparisonOperator string

// Supported comparison operators.
const (
	ComparisonOperatorEq          ComparisonOperator = "eq"
	ComparisonOperatorNeq         ComparisonOperator = "neq"
	ComparisonOperatorLt          ComparisonOperator = "lt"
	ComparisonOperatorLte         ComparisonOperator = "lte"
	ComparisonOperatorGt          ComparisonOperator = "gt"
	ComparisonOperatorGte         ComparisonOperator = "gte"
	ComparisonOperatorIn          ComparisonOperator = "in"
	ComparisonOperatorNin         ComparisonOperator = "nin"
	ComparisonOperatorContains    ComparisonOperator = "contains"
	ComparisonOperatorNotContains ComparisonOperator = "ncontains"
	ComparisonOperatorStartsWith  ComparisonOperator = "startswith"
	ComparisonOperatorEndsWith    ComparisonOperator = "endswith"
	ComparisonOperatorExists      ComparisonOperator = "exists"
	ComparisonOperatorNotExists   ComparisonOperator = "nexists"
)

// FilterValue represents the value used in a filter condition.
type FilterValue any

// FilterCondition defines a single condition for filtering the results of a query.
type FilterCondition struct {
	Field    string             // The field to apply the filter on; dotted for nested fields.
	Operator ComparisonOperator // The comparison operator to use.
	Value    FilterValue        // The value to compare against.
}

// FilterGroup combines multiple filter conditions using a logical operator.
type FilterGroup struct {
	Operator   schema.LogicalOperator // The logical operator (AND, OR) to combine the conditions.
	Conditions []QueryFilter          // The list of conditions or nested groups.
}

// QueryFilter is a union type that can represent either a single filter condition
// or a group of conditions.
type QueryFilter struct {
	Condition *FilterCondition `json:",omitempty"`
	Group     *FilterGroup     `json:",omitempty"`
}

// SortDirection specifies the direction for sorting.
type SortDirection string

// Supported sort directions.
const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// SortConfiguration defines the sorting order for a specific field.
type SortConfiguration struct {
	Field     string
	Direction SortDirection
}

// PaginationOptions defines how the query results should be paginated. Only
// "offset" pagination is produced by this package.
type PaginationOptions struct {
	Type   string
	Limit  int
	Offset *int `json:",omitempty"`
}

// ProjectionField defines a field to be included or excluded in the query result.
type ProjectionField struct {
	Name string
}

// ProjectionConfiguration defines which fields should be returned in the
// query result. Include and Exclude are alternative modes; a configuration
// carrying both is rejected by Validate.
type ProjectionConfiguration struct {
	Include []ProjectionField `json:",omitempty"`
	Exclude []ProjectionField `json:",omitempty"`
}

// QueryDSL is the top-level structure that represents a complete read query.
type QueryDSL struct {
	Filters    *QueryFilter             `json:",omitempty"`
	Sort       []SortConfiguration      `json:",omitempty"`
	Pagination *PaginationOptions       `json:",omitempty"`
	Projection *ProjectionConfiguration `json:",omitempty"`
}

// QueryResult represents the result of a database query.
type QueryResult struct {
	Data       []schema.Document `json:"data"`
	Count      int               `json:"count"`
	Pagination *PaginationResult `json:"pagination,omitempty"`
}

// PaginationResult echoes the window a result was read with.
type PaginationResult struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
}

// standardComparisonOperators is a set of all the standard, built-in comparison operators.
var standardComparisonOperators = map[ComparisonOperator]struct{}{
	ComparisonOperatorEq:          {},
	ComparisonOperatorNeq:         {},
	ComparisonOperatorLt:          {},
	ComparisonOperatorLte:         {},
	ComparisonOperatorGt:          {},
	ComparisonOperatorGte:         {},
	ComparisonOperatorIn:          {},
	ComparisonOperatorNin:         {},
	ComparisonOperatorContains:    {},
	ComparisonOperatorNotContains: {},
	ComparisonOperatorStartsWith:  {},
	ComparisonOperatorEndsWith:    {},
	ComparisonOperatorExists:      {},
	ComparisonOperatorNotExists:   {},
}

// IsStandard checks if a comparison operator is one of the standard, built-in operators.
func (c ComparisonOperator) IsStandard() bool {
	_, ok := standardComparisonOperators[c]
	return ok
}

// IsRange reports whether the operator is one of lt, lte, gt or gte.
func (c ComparisonOperator) IsRange() bool {
	switch c {
	case ComparisonOperatorLt, ComparisonOperatorLte, ComparisonOperatorGt, ComparisonOperatorGte:
		return true
	}
	return false
}

// GetStandardComparisonOperators returns a map of all standard comparison operators.
func GetStandardComparisonOperators() map[ComparisonOperator]struct{} {
	return standardComparisonOperators
}

// OffsetValue returns the pagination offset, or zero when none is set.
func (p *PaginationOptions) OffsetValue() int {
	if p == nil || p.Offset == nil {
		return 0
	}
	return *p.Offset
}
