// Package catalog holds the storefront's collection schemas and the demo
// product data. Schemas are embedded JSON definitions parsed with
// schema.Parse.
package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/asaidimu/go-storefront/utils"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

//go:embed seed/products.json
var productSeed []byte

// Collection names.
const (
	Products = "products"
	Reviews  = "reviews"
	Users    = "users"
	Carts    = "carts"
	Orders   = "orders"
)

// Schemas returns every storefront schema ordered by name.
func Schemas() ([]*schema.SchemaDefinition, error) {
	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded schemas: %w", err)
	}
	out := make([]*schema.SchemaDefinition, 0, len(entries))
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		sc, err := schema.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("schema %s: %w", entry.Name(), err)
		}
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Schema returns the schema for a single collection.
func Schema(name string) (*schema.SchemaDefinition, error) {
	data, err := schemaFiles.ReadFile(path.Join("schemas", name+".json"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", persistence.ErrCollectionNotFound, name)
	}
	return schema.Parse(data)
}

// Register registers every storefront schema with store.
func Register(ctx context.Context, store *persistence.Store) error {
	schemas, err := Schemas()
	if err != nil {
		return err
	}
	for _, sc := range schemas {
		if _, err := store.Register(ctx, sc); err != nil {
			return fmt.Errorf("failed to register %s: %w", sc.Name, err)
		}
	}
	return nil
}

// Product is the typed form of a products document.
type Product struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Slug            string         `json:"slug,omitempty"`
	Image           string         `json:"image"`
	Category        string         `json:"category"`
	New             bool           `json:"new"`
	Price           float64        `json:"price"`
	DiscountPrice   float64        `json:"discountPrice,omitempty"`
	Description     string         `json:"description"`
	Features        string         `json:"features"`
	Includes        []IncludedItem `json:"includes,omitempty"`
	Gallery         *Gallery       `json:"gallery,omitempty"`
	RatingsAverage  float64        `json:"ratingsAverage"`
	RatingsQuantity int            `json:"ratingsQuantity"`
	CreatedAt       string         `json:"createdAt,omitempty"`
}

// IncludedItem is an item shipped in a product's box.
type IncludedItem struct {
	Quantity int    `json:"quantity"`
	Item     string `json:"item"`
}

// Gallery holds a product's gallery images.
type Gallery struct {
	First  string `json:"first"`
	Second string `json:"second"`
	Third  string `json:"third"`
}

// SeedProducts decodes the demo products.
func SeedProducts() ([]Product, error) {
	var products []Product
	if err := json.Unmarshal(productSeed, &products); err != nil {
		return nil, fmt.Errorf("failed to decode product seed: %w", err)
	}
	return products, nil
}

// Seed inserts the demo products into the store's products collection when
// it is empty. It returns the number of products inserted.
func Seed(ctx context.Context, store *persistence.Store) (int, error) {
	products, err := store.Collection(Products)
	if err != nil {
		return 0, err
	}
	q := products.Find()
	q.Limit(1)
	existing, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to inspect products: %w", err)
	}
	if existing.Count > 0 {
		return 0, nil
	}

	seed, err := SeedProducts()
	if err != nil {
		return 0, err
	}
	docs := make([]schema.Document, 0, len(seed))
	for _, p := range seed {
		doc, err := utils.ToDocument(p)
		if err != nil {
			return 0, fmt.Errorf("failed to convert product %s: %w", p.ID, err)
		}
		docs = append(docs, doc)
	}
	result, err := products.Create(ctx, docs...)
	if err != nil {
		return 0, err
	}
	return result.Count, nil
}
