package persistence

import (
	"context"
	"fmt"

	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

// Executor runs collection operations against a DatabaseInteractor and
// shapes the results.
type Executor struct {
	interactor DatabaseInteractor
	logger     *zap.Logger
}

// NewExecutor creates an executor over interactor.
func NewExecutor(interactor DatabaseInteractor, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		interactor: interactor,
		logger:     logger,
	}
}

// Query runs dsl against the collection described by sc.
func (e *Executor) Query(ctx context.Context, sc *schema.SchemaDefinition, dsl *query.QueryDSL) (*query.QueryResult, error) {
	if dsl == nil {
		dsl = &query.QueryDSL{}
	}
	rows, err := e.interactor.SelectDocuments(ctx, sc, dsl)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents from '%s': %w", sc.Name, err)
	}
	e.logger.Debug("Fetched documents", zap.String("collection", sc.Name), zap.Int("count", len(rows)))

	if rows == nil {
		rows = []schema.Document{}
	}
	result := &query.QueryResult{Data: rows, Count: len(rows)}
	if p := dsl.Pagination; p != nil && p.Limit > 0 {
		skip := p.OffsetValue()
		result.Pagination = &query.PaginationResult{
			Page:  skip/p.Limit + 1,
			Limit: p.Limit,
			Skip:  skip,
		}
	}
	return result, nil
}

// Insert stores records and returns them as stored.
func (e *Executor) Insert(ctx context.Context, sc *schema.SchemaDefinition, records []schema.Document) (*query.QueryResult, error) {
	inserted, err := e.interactor.InsertDocuments(ctx, sc, records)
	if err != nil {
		return nil, fmt.Errorf("failed to insert documents into '%s': %w", sc.Name, err)
	}
	e.logger.Debug("Inserted documents", zap.String("collection", sc.Name), zap.Int("count", len(inserted)))
	return &query.QueryResult{Data: inserted, Count: len(inserted)}, nil
}
