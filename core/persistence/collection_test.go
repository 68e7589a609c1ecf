package persistence_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/asaidimu/go-storefront/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func productSchema() *schema.SchemaDefinition {
	return &schema.SchemaDefinition{
		Name: "products",
		Fields: map[string]*schema.FieldDefinition{
			"id":       {Name: "id", Type: schema.FieldTypeString},
			"name":     {Name: "name", Type: schema.FieldTypeString},
			"category": {Name: "category", Type: schema.FieldTypeString},
			"price":    {Name: "price", Type: schema.FieldTypeNumber},
		},
	}
}

func newProducts(t *testing.T) (*persistence.Store, *persistence.Collection) {
	t.Helper()
	store := persistence.NewStore(memory.NewInteractor(nil), nil)
	products, err := store.Register(context.Background(), productSchema())
	require.NoError(t, err)

	_, err = products.Create(context.Background(),
		schema.Document{"id": "p1", "name": "Bass Pro", "category": "earphone", "price": 45.0},
		schema.Document{"id": "p2", "name": "Studio Max", "category": "headphone", "price": 180.0},
		schema.Document{"id": "p3", "name": "Budget Buds", "category": "earphone", "price": 12.5},
	)
	require.NoError(t, err)
	return store, products
}

// failingInteractor fails every call after construction.
type failingInteractor struct {
	err error
}

func (f *failingInteractor) SelectDocuments(context.Context, *schema.SchemaDefinition, *query.QueryDSL) ([]schema.Document, error) {
	return nil, f.err
}

func (f *failingInteractor) InsertDocuments(context.Context, *schema.SchemaDefinition, []schema.Document) ([]schema.Document, error) {
	return nil, f.err
}

func (f *failingInteractor) CreateCollection(context.Context, *schema.SchemaDefinition) error {
	return nil
}

func (f *failingInteractor) CollectionExists(context.Context, string) (bool, error) {
	return false, nil
}

func TestStore_Collection(t *testing.T) {
	store, products := newProducts(t)

	found, err := store.Collection("products")
	require.NoError(t, err)
	assert.Same(t, products, found)
	assert.Equal(t, "products", found.Name())
	assert.Equal(t, []string{"products"}, store.Collections())

	_, err = store.Collection("carts")
	assert.ErrorIs(t, err, persistence.ErrCollectionNotFound)
}

func TestStore_RegisterKeepsExistingData(t *testing.T) {
	ctx := context.Background()
	interactor := memory.NewInteractor(nil)
	store := persistence.NewStore(interactor, nil)

	first, err := store.Register(ctx, productSchema())
	require.NoError(t, err)
	_, err = first.Create(ctx, schema.Document{"name": "Nova"})
	require.NoError(t, err)

	second, err := store.Register(ctx, productSchema())
	require.NoError(t, err)
	result, err := second.Read(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
}

func TestQuery_ExecWithPipeline(t *testing.T) {
	_, products := newProducts(t)

	q := products.Find()
	err := features.Apply(q, map[string]string{"category": "earphone", "sort": "price", "limit": "5"})
	require.NoError(t, err)

	result, err := q.Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, "p3", result.Data[0]["id"])
	assert.Equal(t, "p1", result.Data[1]["id"])
	assert.Equal(t, &query.PaginationResult{Page: 1, Limit: 5, Skip: 0}, result.Pagination)
}

func TestQuery_ExecOnce(t *testing.T) {
	_, products := newProducts(t)
	q := products.Find()

	_, err := q.Exec(context.Background())
	require.NoError(t, err)

	_, err = q.Exec(context.Background())
	assert.ErrorIs(t, err, persistence.ErrQueryExecuted)
}

func TestCollection_ReadHooks(t *testing.T) {
	_, products := newProducts(t)

	var seen []schema.Document
	products.Use(persistence.ReadHooks{
		BeforeRead: func(ctx context.Context, dsl *query.QueryDSL) error {
			f := query.CreateSimpleFilter("category", query.ComparisonOperatorEq, "earphone")
			combined := f
			if dsl.Filters != nil {
				combined = query.And(*dsl.Filters, f)
			}
			dsl.Filters = &combined
			return nil
		},
	})
	products.Use(persistence.ReadHooks{
		AfterRead: func(ctx context.Context, docs []schema.Document) error {
			seen = docs
			return nil
		},
	})

	dsl := query.NewQueryBuilder().Build()
	result, err := products.Read(context.Background(), &dsl)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	assert.Len(t, seen, 2)
	assert.Nil(t, dsl.Filters, "the caller's query is not modified")
}

func TestCollection_ReadHookError(t *testing.T) {
	_, products := newProducts(t)
	denied := errors.New("denied")
	products.Use(persistence.ReadHooks{
		BeforeRead: func(context.Context, *query.QueryDSL) error { return denied },
	})

	_, err := products.Read(context.Background(), nil)
	assert.ErrorIs(t, err, denied)
}

func TestCollection_StorageErrorsAreWrapped(t *testing.T) {
	boom := errors.New("disk on fire")
	store := persistence.NewStore(&failingInteractor{err: boom}, nil)
	products, err := store.Register(context.Background(), productSchema())
	require.NoError(t, err)

	_, err = products.Read(context.Background(), nil)
	assert.ErrorIs(t, err, boom)

	_, err = products.Create(context.Background(), schema.Document{"name": "x"})
	assert.ErrorIs(t, err, boom)
}

func TestCollection_Events(t *testing.T) {
	_, products := newProducts(t)

	var mu sync.Mutex
	var received []persistence.PersistenceEvent
	record := func(ctx context.Context, e persistence.PersistenceEvent) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
		return nil
	}

	startID := products.Subscribe(persistence.DocumentReadStart, record)
	successID := products.Subscribe(persistence.DocumentReadSuccess, record)
	assert.NotEqual(t, startID, successID)
	assert.Len(t, products.Subscriptions(), 2)

	_, err := products.Read(context.Background(), nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	for _, e := range received {
		assert.Equal(t, "products", e.Collection)
		assert.Equal(t, "read", e.Operation)
	}
	mu.Unlock()

	products.Unsubscribe(startID)
	products.Unsubscribe(successID)
	products.Unsubscribe("unknown")
	assert.Empty(t, products.Subscriptions())
}

func TestCollection_FailureEvent(t *testing.T) {
	store := persistence.NewStore(&failingInteractor{err: errors.New("boom")}, nil)
	products, err := store.Register(context.Background(), productSchema())
	require.NoError(t, err)

	failures := make(chan persistence.PersistenceEvent, 1)
	products.Subscribe(persistence.DocumentReadFailed, func(ctx context.Context, e persistence.PersistenceEvent) error {
		failures <- e
		return nil
	})

	_, err = products.Read(context.Background(), nil)
	require.Error(t, err)

	select {
	case e := <-failures:
		require.NotNil(t, e.Error)
		assert.Contains(t, *e.Error, "boom")
	case <-time.After(time.Second):
		t.Fatal("no failure event received")
	}
}
