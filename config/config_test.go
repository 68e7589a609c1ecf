package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "storefront", cfg.Store.MongoDatabase)
	assert.Equal(t, QueryConfig{
		DefaultLimit: 10,
		MaxLimit:     0,
		DefaultSort:  "-createdAt",
		VersionField: "__v",
	}, cfg.Query)
	assert.Equal(t, LogConfig{Level: "info"}, cfg.Log)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
store:
  driver: sqlite
  dsn: "file:shop.db"
  table_prefix: shop_
query:
  default_limit: 20
  max_limit: 100
log:
  level: debug
  development: true
`)
	t.Setenv("STOREFRONT_QUERY_MAX_LIMIT", "50")
	t.Setenv("STOREFRONT_SERVER_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, StoreConfig{
		Driver:        DriverSQLite,
		DSN:           "file:shop.db",
		MongoURI:      "mongodb://localhost:27017",
		MongoDatabase: "storefront",
		TablePrefix:   "shop_",
	}, cfg.Store)
	assert.Equal(t, 20, cfg.Query.DefaultLimit)
	assert.Equal(t, 50, cfg.Query.MaxLimit)
	assert.Equal(t, "-createdAt", cfg.Query.DefaultSort)
	assert.Equal(t, LogConfig{Level: "debug", Development: true}, cfg.Log)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "unknown driver", body: "store:\n  driver: redis\n", want: `unknown store driver "redis"`},
		{name: "empty dsn", body: "store:\n  driver: sqlite\n  dsn: \"\"\n", want: "store.dsn is required"},
		{name: "zero limit", body: "query:\n  default_limit: 0\n", want: "query.default_limit must be positive"},
		{name: "negative ceiling", body: "query:\n  max_limit: -1\n", want: "query.max_limit cannot be negative"},
		{name: "bad level", body: "log:\n  level: loud\n", want: "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestQueryConfig_Options(t *testing.T) {
	qc := QueryConfig{DefaultLimit: 3, MaxLimit: 5, DefaultSort: "price", VersionField: "rev"}

	qb := query.NewQueryBuilder()
	p := features.New(qb, map[string]string{"limit": "9"}, qc.Options()...).All()
	require.NoError(t, p.Err())

	dsl := qb.Build()
	require.NotNil(t, dsl.Pagination)
	assert.Equal(t, 5, dsl.Pagination.Limit)
	assert.Equal(t, []query.SortConfiguration{{Field: "price", Direction: query.SortDirectionAsc}}, dsl.Sort)
	require.NotNil(t, dsl.Projection)
	assert.Equal(t, []query.ProjectionField{{Name: "rev"}}, dsl.Projection.Exclude)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(-1))
	assert.True(t, logger.Core().Enabled(1))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
