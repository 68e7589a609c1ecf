package catalog

import (
	"context"
	"testing"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/asaidimu/go-storefront/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemas(t *testing.T) {
	schemas, err := Schemas()
	require.NoError(t, err)

	var names []string
	for _, sc := range schemas {
		names = append(names, sc.Name)
		assert.NotNil(t, sc.Field(sc.IdentifierField()), "%s has no identifier field", sc.Name)
		assert.NotNil(t, sc.Field(persistence.CreatedAtField), "%s has no createdAt", sc.Name)
	}
	assert.Equal(t, []string{Carts, Orders, Products, Reviews, Users}, names)
}

func TestSchema(t *testing.T) {
	products, err := Schema(Products)
	require.NoError(t, err)
	category := products.Field("category")
	require.NotNil(t, category)
	assert.Equal(t, schema.FieldTypeEnum, category.Type)
	assert.Equal(t, []any{"earphone", "headphones", "speaker"}, category.Values)
	assert.True(t, products.Field("price").Type.IsNumeric())

	reviews, err := Schema(Reviews)
	require.NoError(t, err)
	require.NotNil(t, reviews.Field("product").Ref)
	assert.Equal(t, Products, *reviews.Field("product").Ref)

	_, err = Schema("wishlists")
	assert.ErrorIs(t, err, persistence.ErrCollectionNotFound)
}

func TestSeedProducts(t *testing.T) {
	products, err := SeedProducts()
	require.NoError(t, err)
	require.Len(t, products, 6)
	assert.Equal(t, "XX99 Mark II Headphones", products[0].Name)
	require.NotNil(t, products[0].Gallery)
	assert.Len(t, products[0].Includes, 2)
}

func newSeededStore(t *testing.T) *persistence.Store {
	t.Helper()
	ctx := context.Background()
	store := persistence.NewStore(memory.NewInteractor(nil), nil)
	require.NoError(t, Register(ctx, store))

	n, err := Seed(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	return store
}

func TestRegisterAndSeed(t *testing.T) {
	store := newSeededStore(t)
	assert.Equal(t, []string{Carts, Orders, Products, Reviews, Users}, store.Collections())

	n, err := Seed(context.Background(), store)
	require.NoError(t, err)
	assert.Zero(t, n, "seeding twice must not duplicate products")
}

func TestSeededQueries(t *testing.T) {
	store := newSeededStore(t)
	products, err := store.Collection(Products)
	require.NoError(t, err)

	tests := []struct {
		name   string
		params map[string]string
		want   []string
	}{
		{
			name:   "category sorted by price",
			params: map[string]string{"category": "headphones", "sort": "price", "fields": "name"},
			want:   []string{"XX59 Headphones", "XX99 Mark I Headphones", "XX99 Mark II Headphones"},
		},
		{
			name:   "price range newest first",
			params: map[string]string{"price[lt]": "1000"},
			want:   []string{"XX59 Headphones", "YX1 Wireless Earphones"},
		},
		{
			name:   "second page",
			params: map[string]string{"sort": "-price", "limit": "4", "page": "2"},
			want:   []string{"XX59 Headphones", "YX1 Wireless Earphones"},
		},
		{
			name:   "nested field",
			params: map[string]string{"gallery[first]": "xx99-2-gallery-1.jpg"},
			want:   []string{"XX99 Mark II Headphones"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := products.Find()
			require.NoError(t, features.Apply(q, tt.params))
			result, err := q.Exec(context.Background())
			require.NoError(t, err)

			var names []string
			for _, doc := range result.Data {
				names = append(names, doc["name"].(string))
				assert.NotContains(t, doc, persistence.VersionField)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}
