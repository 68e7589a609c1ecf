// Package memory is a DatabaseInteractor that keeps documents in process.
// Queries are evaluated with the query package's DataProcessor, so it
// doubles as the reference behaviour for the other backends.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

var _ persistence.DatabaseInteractor = (*Interactor)(nil)

// Interactor stores documents per collection name.
type Interactor struct {
	mu          sync.RWMutex
	collections map[string][]schema.Document
	processor   *query.DataProcessor
	logger      *zap.Logger
	now         func() time.Time
}

// NewInteractor creates an empty in-memory store.
func NewInteractor(logger *zap.Logger) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{
		collections: make(map[string][]schema.Document),
		processor:   query.NewDataProcessor(logger),
		logger:      logger,
		now:         time.Now,
	}
}

// Processor exposes the evaluator so custom operators can be registered.
func (i *Interactor) Processor() *query.DataProcessor {
	return i.processor
}

// SelectDocuments evaluates dsl over the stored documents.
func (i *Interactor) SelectDocuments(ctx context.Context, sc *schema.SchemaDefinition, dsl *query.QueryDSL) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	rows, ok := i.collections[sc.Name]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", sc.Name)
	}

	i.logger.Debug("Evaluating query in memory", zap.String("collection", sc.Name), zap.Any("dsl", dsl))
	out, err := i.processor.Process(rows, dsl, sc.IdentifierField())
	if err != nil {
		return nil, err
	}
	if dsl == nil {
		return cloneAll(out), nil
	}
	return out, nil
}

// InsertDocuments stores copies of records. A record without an identifier
// gets a UUID; createdAt and __v are filled when the schema defines them.
func (i *Interactor) InsertDocuments(ctx context.Context, sc *schema.SchemaDefinition, records []schema.Document) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	rows, ok := i.collections[sc.Name]
	if !ok {
		return nil, fmt.Errorf("collection %s does not exist", sc.Name)
	}

	inserted := make([]schema.Document, 0, len(records))
	for _, record := range records {
		doc := persistence.PrepareDocument(sc, record, i.now())
		rows = append(rows, doc)
		inserted = append(inserted, maps.Clone(doc))
	}
	i.collections[sc.Name] = rows
	return inserted, nil
}

// CreateCollection creates an empty collection. Existing collections are
// left untouched.
func (i *Interactor) CreateCollection(ctx context.Context, sc *schema.SchemaDefinition) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.collections[sc.Name]; !ok {
		i.collections[sc.Name] = []schema.Document{}
	}
	return nil
}

// CollectionExists reports whether name has been created.
func (i *Interactor) CollectionExists(ctx context.Context, name string) (bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	_, ok := i.collections[name]
	return ok, nil
}

func cloneAll(rows []schema.Document) []schema.Document {
	out := make([]schema.Document, len(rows))
	for idx, row := range rows {
		out[idx] = maps.Clone(row)
	}
	return out
}
