// Package features turns a request's flat query parameters into filter,
// sort, projection and pagination constraints on a query plan.
//
// A Pipeline is built once per request from a plan and the raw parameters.
// Each stage reads its parameters, composes a constraint onto the plan and
// returns the pipeline so stages can be chained in any order:
//
//	p := features.New(plan, params).Filter().Sort().LimitFields().Paginate()
//	if err := p.Err(); err != nil {
//		// reject the request
//	}
package features

import (
	"maps"

	"github.com/asaidimu/go-storefront/core/query"
)

// Queryable is a query plan the pipeline can compose constraints onto.
// ApplyFilter narrows the plan; the other methods replace what was set before.
type Queryable interface {
	ApplyFilter(filter *query.QueryFilter)
	ApplySort(keys []query.SortConfiguration)
	ApplyProjection(projection *query.ProjectionConfiguration)
	ApplyPagination(skip, take int)
}

var _ Queryable = (*query.QueryBuilder)(nil)

// Pipeline pairs a query plan with a snapshot of request parameters.
type Pipeline struct {
	plan   Queryable
	params map[string]string
	opts   Options
	err    error
}

// New creates a pipeline over plan. params is copied, so later changes by the
// caller are not observed. Construction does not inspect the parameters.
func New(plan Queryable, params map[string]string, opts ...Option) *Pipeline {
	snapshot := maps.Clone(params)
	if snapshot == nil {
		snapshot = map[string]string{}
	}
	return &Pipeline{
		plan:   plan,
		params: snapshot,
		opts:   buildOptions(opts),
	}
}

// Filter adds a predicate built from every non-reserved parameter. A
// malformed parameter leaves the plan unchanged and is reported by Err.
func (p *Pipeline) Filter() *Pipeline {
	filter, err := parseFilter(p.params)
	if err != nil {
		return p.fail(err)
	}
	p.plan.ApplyFilter(filter)
	return p
}

// Sort sets the ordering from `sort`, or the default sort when it is absent.
// An invalid field name leaves the plan unchanged and is reported by Err.
func (p *Pipeline) Sort() *Pipeline {
	keys, err := parseSort(p.params[ParamSort], p.opts.DefaultSort)
	if err != nil {
		return p.fail(err)
	}
	p.plan.ApplySort(keys)
	return p
}

// LimitFields sets the projection from `fields`, or excludes the version
// field when it is absent. An invalid field name is reported by Err.
func (p *Pipeline) LimitFields() *Pipeline {
	projection, err := parseProjection(p.params[ParamFields], p.opts.VersionField)
	if err != nil {
		return p.fail(err)
	}
	p.plan.ApplyProjection(projection)
	return p
}

func (p *Pipeline) fail(err error) *Pipeline {
	if p.err == nil {
		p.err = err
	}
	return p
}

// Paginate sets the skip/take window from `page` and `limit`.
func (p *Pipeline) Paginate() *Pipeline {
	spec := parsePage(p.params[ParamPage], p.params[ParamLimit], p.opts)
	p.plan.ApplyPagination(spec.Skip(), spec.Take())
	return p
}

// All runs every stage in the default order.
func (p *Pipeline) All() *Pipeline {
	return p.Filter().Sort().LimitFields().Paginate()
}

// Err returns the first error recorded by a stage.
func (p *Pipeline) Err() error {
	return p.err
}

// Query returns the plan with every constraint applied so far.
func (p *Pipeline) Query() Queryable {
	return p.plan
}

// Params returns a copy of the parameter snapshot.
func (p *Pipeline) Params() map[string]string {
	return maps.Clone(p.params)
}

// Apply runs every stage over plan and returns the first stage error, if any.
func Apply(plan Queryable, params map[string]string, opts ...Option) error {
	return New(plan, params, opts...).All().Err()
}
