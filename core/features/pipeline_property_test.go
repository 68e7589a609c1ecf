package features

import (
	"errors"
	"strconv"
	"testing"

	"github.com/asaidimu/go-storefront/core/query"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_EqualityPreservesFieldAndValue(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	props.Property("a plain key yields one equality on the same field", prop.ForAll(func(field, value string) bool {
		if IsReserved(field) {
			return true
		}
		qb := query.NewQueryBuilder()
		if err := New(qb, map[string]string{field: value}).Filter().Err(); err != nil {
			return false
		}
		f := qb.Build().Filters
		return f != nil && f.Group == nil && f.Condition != nil &&
			f.Condition.Field == field &&
			f.Condition.Operator == query.ComparisonOperatorEq &&
			f.Condition.Value == value
	}, gen.Identifier(), gen.AlphaString()))

	props.Property("operator words embedded in names are never rewritten", prop.ForAll(func(prefix, token, suffix string) bool {
		field := prefix + token + suffix
		qb := query.NewQueryBuilder()
		New(qb, map[string]string{field: "1"}).Filter()
		f := qb.Build().Filters
		return f != nil && f.Condition != nil && f.Condition.Field == field &&
			f.Condition.Operator == query.ComparisonOperatorEq
	}, gen.Identifier(), gen.OneConstOf("lt", "lte", "gt", "gte"), gen.Identifier()))

	props.TestingRun(t)
}

func TestProperty_RangeOperandsAreNumeric(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	props.Property("integer operands become int64", prop.ForAll(func(token string, n int64) bool {
		plan := &recordingPlan{}
		raw := map[string]string{"price[" + token + "]": strconv.FormatInt(n, 10)}
		New(plan, raw).Filter()
		if len(plan.filters) != 1 || plan.filters[0] == nil || plan.filters[0].Condition == nil {
			return false
		}
		c := plan.filters[0].Condition
		return c.Field == "price" && string(c.Operator) == token && c.Value == n
	}, gen.OneConstOf("lt", "lte", "gt", "gte"), gen.Int64()))

	props.TestingRun(t)
}

func TestProperty_Deterministic(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	props := gopter.NewProperties(params)

	genParams := gen.MapOf(gen.Identifier(), gen.AlphaString())

	props.Property("the same parameters build the same plan", prop.ForAll(func(raw map[string]string) bool {
		a := query.NewQueryBuilder()
		b := query.NewQueryBuilder()
		errA := Apply(a, raw)
		errB := Apply(b, raw)
		if (errA == nil) != (errB == nil) {
			return false
		}
		return a.String() == b.String()
	}, genParams))

	props.TestingRun(t)
}

func TestProperty_OperatorSegmentsAreRejected(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	props := gopter.NewProperties(params)

	props.Property("a $-prefixed key segment never reaches the plan", prop.ForAll(func(prefix, name, value string, nested bool) bool {
		key := "$" + name
		if nested {
			key = prefix + "." + key
		}
		plan := &recordingPlan{}
		err := New(plan, map[string]string{key: value}).Filter().Err()
		return errors.Is(err, ErrInvalidField) && len(plan.filters) == 0
	}, gen.Identifier(), gen.AlphaString(), gen.AlphaString(), gen.Bool()))

	props.Property("a $-prefixed sort field is rejected", prop.ForAll(func(name string, desc bool) bool {
		spec := "$" + name
		if desc {
			spec = "-" + spec
		}
		plan := &recordingPlan{}
		err := New(plan, map[string]string{ParamSort: spec}).Sort().Err()
		return errors.Is(err, ErrInvalidField) && plan.sort == nil
	}, gen.Identifier(), gen.Bool()))

	props.TestingRun(t)
}

func TestProperty_PaginationWindow(t *testing.T) {
	params := gopter.DefaultTestParameters()
	props := gopter.NewProperties(params)

	props.Property("skip is (page-1)*limit", prop.ForAll(func(page, limit int) bool {
		plan := &recordingPlan{}
		New(plan, map[string]string{"page": strconv.Itoa(page), "limit": strconv.Itoa(limit)}).Paginate()
		return plan.skip == (page-1)*limit && plan.take == limit
	}, gen.IntRange(1, 10000), gen.IntRange(1, 1000)))

	props.Property("non positive values fall back to defaults", prop.ForAll(func(page, limit int) bool {
		plan := &recordingPlan{}
		New(plan, map[string]string{"page": strconv.Itoa(page), "limit": strconv.Itoa(limit)}).Paginate()
		return plan.skip == 0 && plan.take == DefaultLimit
	}, gen.IntRange(-1000, 0), gen.IntRange(-1000, 0)))

	props.TestingRun(t)
}
