package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"go.uber.org/zap"
)

// Collection is the read and write surface of one schema. Every read and
// create emits start, success and failure events on the collection's bus.
type Collection struct {
	schema        *schema.SchemaDefinition
	executor      *Executor
	logger        *zap.Logger
	bus           *events.TypedEventBus[PersistenceEvent]
	hooks         []ReadHooks
	hooksMu       sync.RWMutex
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
}

// NewCollection creates a collection for sc backed by executor.
func NewCollection(sc *schema.SchemaDefinition, executor *Executor, logger *zap.Logger) (*Collection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[PersistenceEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}
	return &Collection{
		schema:        sc,
		executor:      executor,
		logger:        logger.With(zap.String("collection", sc.Name)),
		bus:           bus,
		subscriptions: make(map[string]*SubscriptionInfo),
	}, nil
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.schema.Name
}

// Schema returns the collection's schema definition.
func (c *Collection) Schema() *schema.SchemaDefinition {
	return c.schema
}

// Find starts a new query against the collection.
func (c *Collection) Find() *Query {
	return &Query{
		QueryBuilder: query.NewQueryBuilder(),
		collection:   c,
	}
}

// Use registers read hooks. Hooks run in registration order.
func (c *Collection) Use(hooks ReadHooks) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.hooks = append(c.hooks, hooks)
}

// Read runs dsl against the collection. Before-read hooks receive a copy of
// dsl, so the caller's value is never modified.
func (c *Collection) Read(ctx context.Context, dsl *query.QueryDSL) (*query.QueryResult, error) {
	working := query.QueryDSL{}
	if dsl != nil {
		working = *dsl
	}

	result, err := c.withEventEmission(
		"read",
		DocumentReadStart,
		DocumentReadSuccess,
		DocumentReadFailed,
		nil,
		&working,
		func() (any, error) {
			return c.read(ctx, &working)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from collection '%s': %w", c.schema.Name, err)
	}
	return result.(*query.QueryResult), nil
}

func (c *Collection) read(ctx context.Context, dsl *query.QueryDSL) (*query.QueryResult, error) {
	c.hooksMu.RLock()
	hooks := append([]ReadHooks(nil), c.hooks...)
	c.hooksMu.RUnlock()

	for _, h := range hooks {
		if h.BeforeRead == nil {
			continue
		}
		if err := h.BeforeRead(ctx, dsl); err != nil {
			return nil, fmt.Errorf("before-read hook: %w", err)
		}
	}

	result, err := c.executor.Query(ctx, c.schema, dsl)
	if err != nil {
		c.logger.Error("Read failed", zap.Error(err))
		return nil, err
	}

	for _, h := range hooks {
		if h.AfterRead == nil {
			continue
		}
		if err := h.AfterRead(ctx, result.Data); err != nil {
			return nil, fmt.Errorf("after-read hook: %w", err)
		}
	}
	return result, nil
}

// Create stores records in the collection.
func (c *Collection) Create(ctx context.Context, records ...schema.Document) (*query.QueryResult, error) {
	if len(records) == 0 {
		return &query.QueryResult{Data: []schema.Document{}}, nil
	}
	result, err := c.withEventEmission(
		"create",
		DocumentCreateStart,
		DocumentCreateSuccess,
		DocumentCreateFailed,
		records,
		nil,
		func() (any, error) {
			return c.executor.Insert(ctx, c.schema, records)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert data into collection '%s': %w", c.schema.Name, err)
	}
	return result.(*query.QueryResult), nil
}
