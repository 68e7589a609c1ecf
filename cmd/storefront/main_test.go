package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/asaidimu/go-storefront/catalog"
	"github.com/asaidimu/go-storefront/config"
	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type printedResult struct {
	Data       []map[string]any `json:"data"`
	Count      int              `json:"count"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
	} `json:"pagination"`
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	defer closeStore()
	assert.Equal(t, []string{"carts", "orders", "products", "reviews", "users"}, store.Collections())

	_, _, err = openStore(ctx, config.StoreConfig{Driver: "redis"}, nil)
	assert.ErrorContains(t, err, `unknown store driver "redis"`)
}

func TestRunQuery(t *testing.T) {
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, config.StoreConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	defer closeStore()
	_, err = catalog.Seed(ctx, store)
	require.NoError(t, err)

	var out bytes.Buffer
	err = runQuery(ctx, store, "products", "category=speaker&sort=-price&fields=name", nil, &out)
	require.NoError(t, err)

	var result printedResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, []map[string]any{
		{"id": "zx9-speaker", "name": "ZX9 Speaker"},
		{"id": "zx7-speaker", "name": "ZX7 Speaker"},
	}, result.Data)
	assert.Equal(t, 1, result.Pagination.Page)
	assert.Equal(t, 10, result.Pagination.Limit)

	out.Reset()
	require.NoError(t, runQuery(ctx, store, "products", "limit=4", []features.Option{features.WithMaxLimit(2)}, &out))
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 2, result.Count)

	err = runQuery(ctx, store, "products", "price=%7Bnope", nil, &out)
	assert.ErrorIs(t, err, features.ErrMalformedFilter)

	err = runQuery(ctx, store, "wishlists", "", nil, &out)
	assert.ErrorIs(t, err, persistence.ErrCollectionNotFound)

	err = runQuery(ctx, store, "products", "%zz", nil, &out)
	assert.ErrorContains(t, err, "invalid query string")
}

func TestQueryCommand(t *testing.T) {
	t.Setenv("STOREFRONT_STORE_DRIVER", config.DriverMemory)
	t.Setenv("STOREFRONT_LOG_LEVEL", "error")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"query", "products", "price[lt]=1000&sort=price", "--seed"})
	require.NoError(t, root.Execute())

	var result printedResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	require.Len(t, result.Data, 2)
	assert.Equal(t, "yx1-earphones", result.Data[0]["id"])
	assert.Equal(t, "xx59-headphones", result.Data[1]["id"])

	root = newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"query"})
	assert.Error(t, root.Execute())
}
