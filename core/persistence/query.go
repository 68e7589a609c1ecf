package persistence

import (
	"context"
	"sync/atomic"

	"github.com/asaidimu/go-storefront/core/query"
)

// Query is a query plan bound to a collection. It embeds the builder, so it
// can be passed to the feature pipeline directly, and executes at most once.
type Query struct {
	*query.QueryBuilder

	collection *Collection
	executed   atomic.Bool
}

// Exec runs the plan. A second call returns ErrQueryExecuted.
func (q *Query) Exec(ctx context.Context) (*query.QueryResult, error) {
	if !q.executed.CompareAndSwap(false, true) {
		return nil, ErrQueryExecuted
	}
	dsl := q.Build()
	return q.collection.Read(ctx, &dsl)
}
