package persistence

import (
	"context"
	"errors"

	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
)

var (
	// ErrQueryExecuted is returned when a Query is executed a second time.
	ErrQueryExecuted = errors.New("query already executed")

	// ErrCollectionNotFound is returned when a store has no collection by
	// the requested name.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrUnknownField is returned by backends that cannot render a query
	// naming a field the schema does not define.
	ErrUnknownField = errors.New("unknown field")
)

// PersistenceEventType defines the possible event types for persistence operations.
type PersistenceEventType string

const (
	DocumentCreateStart     PersistenceEventType = "document:create:start"
	DocumentCreateSuccess   PersistenceEventType = "document:create:success"
	DocumentCreateFailed    PersistenceEventType = "document:create:failed"
	DocumentReadStart       PersistenceEventType = "document:read:start"
	DocumentReadSuccess     PersistenceEventType = "document:read:success"
	DocumentReadFailed      PersistenceEventType = "document:read:failed"
	CollectionCreateStart   PersistenceEventType = "collection:create:start"
	CollectionCreateSuccess PersistenceEventType = "collection:create:success"
	CollectionCreateFailed  PersistenceEventType = "collection:create:failed"
	SubscriptionRegister    PersistenceEventType = "subscription:register"
	SubscriptionUnregister  PersistenceEventType = "subscription:unregister"
)

// PersistenceEvent represents events emitted during persistence operations.
type PersistenceEvent struct {
	Type       PersistenceEventType `json:"type"`               // The type of event (e.g., 'document:read:start').
	Timestamp  int64                `json:"timestamp"`          // Unix milliseconds.
	Operation  string               `json:"operation"`          // The operation being performed (e.g., 'read').
	Collection string               `json:"collection"`         // Name of the collection affected.
	Input      any                  `json:"input,omitempty"`    // Data passed to the operation.
	Output     any                  `json:"output,omitempty"`   // Data returned by the operation.
	Error      *string              `json:"error,omitempty"`    // Error message if the operation failed.
	Query      any                  `json:"query,omitempty"`    // The QueryDSL used, for reads.
	Duration   *int64               `json:"duration,omitempty"` // Duration of the operation in milliseconds.
}

// EventCallbackFunction receives persistence events.
type EventCallbackFunction func(ctx context.Context, event PersistenceEvent) error

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	ID    string               `json:"id"`
	Event PersistenceEventType `json:"event"`

	unsubscribe func()
}

// ReadHooks run around every read of a collection. BeforeRead may adjust the
// query about to run; AfterRead sees the documents about to be returned.
// An error from either aborts the read.
type ReadHooks struct {
	BeforeRead func(ctx context.Context, dsl *query.QueryDSL) error
	AfterRead  func(ctx context.Context, docs []schema.Document) error
}
