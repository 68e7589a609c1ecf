// Package mongodb implements persistence.DatabaseInteractor on MongoDB.
// Query plans are rendered to BSON filters and find options; documents
// are stored field for field, with the schema identifier kept alongside
// the driver's _id.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Interactor runs storefront queries against one MongoDB database.
type Interactor struct {
	db      *mongo.Database
	logger  *zap.Logger
	options *persistence.InteractorOptions
	now     func() time.Time
}

var _ persistence.DatabaseInteractor = (*Interactor)(nil)

// NewInteractor creates an interactor over db. Nil options mean
// persistence.DefaultInteractorOptions.
func NewInteractor(db *mongo.Database, logger *zap.Logger, opts *persistence.InteractorOptions) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts == nil {
		opts = persistence.DefaultInteractorOptions()
	}
	return &Interactor{
		db:      db,
		logger:  logger,
		options: opts,
		now:     time.Now,
	}
}

// Connect dials uri and verifies the connection with a ping.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client, nil
}

func (i *Interactor) collection(name string) *mongo.Collection {
	return i.db.Collection(i.options.TablePrefix + name)
}

// SelectDocuments runs a find built from dsl.
func (i *Interactor) SelectDocuments(ctx context.Context, sc *schema.SchemaDefinition, dsl *query.QueryDSL) ([]schema.Document, error) {
	var filters *query.QueryFilter
	if dsl != nil {
		filters = dsl.Filters
	}
	filter, err := BuildFilter(sc, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to build mongodb filter: %w", err)
	}
	opts, err := FindOptions(dsl, sc.IdentifierField())
	if err != nil {
		return nil, fmt.Errorf("failed to build mongodb find options: %w", err)
	}

	i.logger.Debug("Executing MongoDB find",
		zap.String("collection", sc.Name),
		zap.Any("filter", filter),
		zap.Any("sort", opts.Sort),
		zap.Any("projection", opts.Projection))

	cursor, err := i.collection(sc.Name).Find(ctx, filter, opts)
	if err != nil {
		i.logger.Error("Failed to execute find", zap.Error(err), zap.String("collection", sc.Name))
		return nil, fmt.Errorf("failed to execute find on %s: %w", sc.Name, err)
	}
	defer cursor.Close(ctx)

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode documents from %s: %w", sc.Name, err)
	}
	docs := make([]schema.Document, len(raw))
	for idx, m := range raw {
		docs[idx] = schema.Document(normalizeMap(m))
	}
	return docs, nil
}

// InsertDocuments stores records and returns them as stored. The _id the
// driver assigns is not part of the returned documents.
func (i *Interactor) InsertDocuments(ctx context.Context, sc *schema.SchemaDefinition, records []schema.Document) ([]schema.Document, error) {
	if len(records) == 0 {
		return []schema.Document{}, nil
	}
	now := i.now()
	prepared := make([]schema.Document, len(records))
	batch := make([]any, len(records))
	for idx, record := range records {
		doc := persistence.PrepareDocument(sc, record, now)
		for field, value := range doc {
			doc[field] = castValue(sc, field, value)
		}
		prepared[idx] = doc
		batch[idx] = bson.M(doc)
	}

	i.logger.Debug("Executing MongoDB insertMany", zap.String("collection", sc.Name), zap.Int("count", len(batch)))
	if _, err := i.collection(sc.Name).InsertMany(ctx, batch); err != nil {
		i.logger.Error("Failed to insert documents", zap.Error(err), zap.String("collection", sc.Name))
		return nil, fmt.Errorf("failed to insert into %s: %w", sc.Name, err)
	}
	return prepared, nil
}

// CreateCollection creates the collection and, when enabled, the schema's
// indexes. The primary index becomes a unique index.
func (i *Interactor) CreateCollection(ctx context.Context, sc *schema.SchemaDefinition) error {
	exists, err := i.CollectionExists(ctx, sc.Name)
	if err != nil {
		return err
	}
	if exists && !i.options.IfNotExists {
		return fmt.Errorf("collection %s already exists", sc.Name)
	}
	if !exists {
		if err := i.db.CreateCollection(ctx, i.options.TablePrefix+sc.Name); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", sc.Name, err)
		}
	}

	if !i.options.CreateIndexes {
		return nil
	}
	models := IndexModels(sc)
	if len(models) == 0 {
		return nil
	}
	if _, err := i.collection(sc.Name).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("failed to create indexes for %s: %w", sc.Name, err)
	}
	return nil
}

// IndexModels maps the schema indexes to driver index models.
func IndexModels(sc *schema.SchemaDefinition) []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, len(sc.Indexes))
	for _, index := range sc.Indexes {
		if len(index.Fields) == 0 {
			continue
		}
		direction := 1
		if index.Order != nil && *index.Order == "desc" {
			direction = -1
		}
		keys := make(bson.D, 0, len(index.Fields))
		for _, field := range index.Fields {
			keys = append(keys, bson.E{Key: field, Value: direction})
		}
		opts := options.Index()
		if index.Name != "" {
			opts.SetName(index.Name)
		}
		unique := index.Type == schema.IndexTypeUnique || index.Type == schema.IndexTypePrimary
		if unique || (index.Unique != nil && *index.Unique) {
			opts.SetUnique(true)
		}
		models = append(models, mongo.IndexModel{Keys: keys, Options: opts})
	}
	return models
}

// CollectionExists reports whether the prefixed collection exists.
func (i *Interactor) CollectionExists(ctx context.Context, name string) (bool, error) {
	names, err := i.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: i.options.TablePrefix + name}})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	return len(names) > 0, nil
}

// normalizeMap converts driver container types into plain Go maps and
// slices so documents look the same whichever backend produced them.
func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.M:
		return normalizeMap(val)
	case primitive.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(val))
		for idx, item := range val {
			out[idx] = normalizeValue(item)
		}
		return out
	case primitive.ObjectID:
		return val.Hex()
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339Nano)
	case int32:
		return int64(val)
	default:
		return v
	}
}
