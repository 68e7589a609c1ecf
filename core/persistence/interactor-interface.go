package persistence

import (
	"context"

	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
)

// InteractorOptions provides configuration for an interactor.
type InteractorOptions struct {
	// IfNotExists adds IF NOT EXISTS to CREATE statements, so creating a
	// collection that already exists is not an error.
	IfNotExists bool

	// CreateIndexes creates the indexes defined in the schema together with
	// the collection.
	CreateIndexes bool

	// TablePrefix is prepended to every collection name.
	TablePrefix string
}

// DefaultInteractorOptions returns the options used when none are given.
func DefaultInteractorOptions() *InteractorOptions {
	return &InteractorOptions{
		IfNotExists:   true,
		CreateIndexes: true,
	}
}

// DatabaseInteractor is the storage engine behind a collection. An
// implementation renders the QueryDSL into its own query language.
type DatabaseInteractor interface {
	// SelectDocuments returns the documents matching dsl.
	SelectDocuments(ctx context.Context, schema *schema.SchemaDefinition, dsl *query.QueryDSL) ([]schema.Document, error)

	// InsertDocuments stores records and returns them as stored, including
	// any generated identifier.
	InsertDocuments(ctx context.Context, schema *schema.SchemaDefinition, records []schema.Document) ([]schema.Document, error)

	// CreateCollection creates the storage for a schema.
	CreateCollection(ctx context.Context, schema *schema.SchemaDefinition) error

	// CollectionExists reports whether storage for name exists.
	CollectionExists(ctx context.Context, name string) (bool, error)
}
