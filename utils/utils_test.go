package utils

import (
	"testing"

	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gallery struct {
	First string `json:"first"`
}

type product struct {
	ID      string   `json:"id"`
	Price   float64  `json:"price"`
	Rating  float64  `json:"rating"`
	Tags    []string `json:"tags,omitempty"`
	Gallery *gallery `json:"gallery,omitempty"`
}

func TestToDocument(t *testing.T) {
	doc, err := ToDocument(product{ID: "zx9", Price: 4500, Rating: 4.5, Tags: []string{"new"}, Gallery: &gallery{First: "a.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, schema.Document{
		"id":      "zx9",
		"price":   int64(4500),
		"rating":  4.5,
		"tags":    []any{"new"},
		"gallery": map[string]any{"first": "a.jpg"},
	}, doc)

	doc, err = ToDocument(&product{ID: "yx1"})
	require.NoError(t, err)
	assert.NotContains(t, doc, "gallery")

	_, err = ToDocument[*product](nil)
	assert.Error(t, err)

	_, err = ToDocument("not a struct")
	assert.Error(t, err)
}

func TestFromDocument(t *testing.T) {
	p, err := FromDocument[product](schema.Document{"id": "zx7", "price": int64(3500), "gallery": map[string]any{"first": "b.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, product{ID: "zx7", Price: 3500, Gallery: &gallery{First: "b.jpg"}}, p)

	ptr, err := FromDocument[*product](schema.Document{"id": "zx7"})
	require.NoError(t, err)
	assert.Equal(t, "zx7", ptr.ID)

	_, err = FromDocument[product](nil)
	assert.Error(t, err)

	_, err = FromDocument[int](schema.Document{})
	assert.Error(t, err)

	_, err = FromDocument[product](schema.Document{"price": "cheap"})
	assert.Error(t, err)
}
