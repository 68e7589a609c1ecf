package mongodb

import (
	"testing"

	"github.com/asaidimu/go-storefront/core/features"
	"github.com/asaidimu/go-storefront/core/persistence"
	"github.com/asaidimu/go-storefront/core/query"
	"github.com/asaidimu/go-storefront/core/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const productsSchemaJSON = `{
	"name": "products",
	"version": "1.0.0",
	"fields": {
		"id":              {"type": "string"},
		"name":            {"type": "string"},
		"category":        {"type": "enum", "values": ["earphone", "headphones", "speaker"]},
		"price":           {"type": "number"},
		"ratingsQuantity": {"type": "integer"},
		"new":             {"type": "boolean"},
		"gallery":         {"type": "object"},
		"createdAt":       {"type": "date"},
		"__v":             {"type": "integer"}
	},
	"indexes": [
		{"name": "category_price", "fields": ["category", "price"], "type": "normal"},
		{"name": "id_unique", "fields": ["id"], "type": "primary"},
		{"fields": ["createdAt"], "type": "normal", "order": "desc"}
	]
}`

func productsSchema(t *testing.T) *schema.SchemaDefinition {
	t.Helper()
	sc, err := schema.Parse([]byte(productsSchemaJSON))
	require.NoError(t, err)
	return sc
}

func pipelineDSL(t *testing.T, params map[string]string) query.QueryDSL {
	t.Helper()
	qb := query.NewQueryBuilder()
	require.NoError(t, features.Apply(qb, params))
	return qb.Build()
}

func TestBuildFilter_Pipeline(t *testing.T) {
	sc := productsSchema(t)
	dsl := pipelineDSL(t, map[string]string{"category": "earphone", "price[lte]": "50"})

	filter, err := BuildFilter(sc, dsl.Filters)
	require.NoError(t, err)
	assert.Equal(t, bson.D{
		{Key: "category", Value: "earphone"},
		{Key: "price", Value: bson.D{{Key: "$lte", Value: int64(50)}}},
	}, filter)

	ext, err := bson.MarshalExtJSON(filter, false, false)
	require.NoError(t, err)
	assert.JSONEq(t, `{"category":"earphone","price":{"$lte":50}}`, string(ext))
}

func TestBuildFilter(t *testing.T) {
	sc := productsSchema(t)

	tests := []struct {
		name   string
		filter *query.QueryFilter
		want   bson.D
	}{
		{
			name: "nil filter",
			want: bson.D{},
		},
		{
			name:   "equality on a number field is cast",
			filter: ptr(query.CreateSimpleFilter("price", query.ComparisonOperatorEq, "10")),
			want:   bson.D{{Key: "price", Value: float64(10)}},
		},
		{
			name:   "equality on an integer field is cast",
			filter: ptr(query.CreateSimpleFilter("ratingsQuantity", query.ComparisonOperatorEq, "3")),
			want:   bson.D{{Key: "ratingsQuantity", Value: int64(3)}},
		},
		{
			name:   "boolean string",
			filter: ptr(query.CreateSimpleFilter("new", query.ComparisonOperatorEq, "true")),
			want:   bson.D{{Key: "new", Value: true}},
		},
		{
			name:   "nested path passes through",
			filter: ptr(query.CreateSimpleFilter("gallery.first", query.ComparisonOperatorEq, "10")),
			want:   bson.D{{Key: "gallery.first", Value: "10"}},
		},
		{
			name:   "neq",
			filter: ptr(query.CreateSimpleFilter("category", query.ComparisonOperatorNeq, "speaker")),
			want:   bson.D{{Key: "category", Value: bson.D{{Key: "$ne", Value: "speaker"}}}},
		},
		{
			name:   "in",
			filter: ptr(query.CreateSimpleFilter("price", query.ComparisonOperatorIn, []any{"1", int64(2)})),
			want:   bson.D{{Key: "price", Value: bson.D{{Key: "$in", Value: bson.A{float64(1), int64(2)}}}}},
		},
		{
			name:   "exists",
			filter: ptr(query.CreateSimpleFilter("gallery", query.ComparisonOperatorNotExists, true)),
			want:   bson.D{{Key: "gallery", Value: bson.D{{Key: "$exists", Value: false}}}},
		},
		{
			name:   "starts with is anchored and escaped",
			filter: ptr(query.CreateSimpleFilter("name", query.ComparisonOperatorStartsWith, "XX.9")),
			want:   bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: primitive.Regex{Pattern: `^XX\.9`}}}}},
		},
		{
			name:   "not contains",
			filter: ptr(query.CreateSimpleFilter("name", query.ComparisonOperatorNotContains, "old")),
			want:   bson.D{{Key: "name", Value: bson.D{{Key: "$not", Value: primitive.Regex{Pattern: "old"}}}}},
		},
		{
			name: "bounded range merges on one field",
			filter: ptr(query.CreateFilterGroup(query.LogicalOperatorAnd,
				query.CreateSimpleFilter("price", query.ComparisonOperatorGte, int64(10)),
				query.CreateSimpleFilter("price", query.ComparisonOperatorLt, int64(20)),
			)),
			want: bson.D{{Key: "price", Value: bson.D{
				{Key: "$gte", Value: int64(10)},
				{Key: "$lt", Value: int64(20)},
			}}},
		},
		{
			name: "repeated operator falls back to $and",
			filter: ptr(query.CreateFilterGroup(query.LogicalOperatorAnd,
				query.CreateSimpleFilter("price", query.ComparisonOperatorGte, int64(10)),
				query.CreateSimpleFilter("price", query.ComparisonOperatorGte, int64(20)),
			)),
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "price", Value: bson.D{{Key: "$gte", Value: int64(10)}}}},
				bson.D{{Key: "price", Value: bson.D{{Key: "$gte", Value: int64(20)}}}},
			}}},
		},
		{
			name: "or group",
			filter: ptr(query.CreateFilterGroup(query.LogicalOperatorOr,
				query.CreateSimpleFilter("category", query.ComparisonOperatorEq, "speaker"),
				query.CreateSimpleFilter("new", query.ComparisonOperatorEq, true),
			)),
			want: bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "category", Value: "speaker"}},
				bson.D{{Key: "new", Value: true}},
			}}},
		},
		{
			name: "and holding an or group",
			filter: ptr(query.CreateFilterGroup(query.LogicalOperatorAnd,
				query.CreateSimpleFilter("price", query.ComparisonOperatorLt, int64(100)),
				query.CreateFilterGroup(query.LogicalOperatorOr,
					query.CreateSimpleFilter("category", query.ComparisonOperatorEq, "speaker"),
					query.CreateSimpleFilter("category", query.ComparisonOperatorEq, "earphone"),
				),
			)),
			want: bson.D{{Key: "$and", Value: bson.A{
				bson.D{{Key: "price", Value: bson.D{{Key: "$lt", Value: int64(100)}}}},
				bson.D{{Key: "$or", Value: bson.A{
					bson.D{{Key: "category", Value: "speaker"}},
					bson.D{{Key: "category", Value: "earphone"}},
				}}},
			}}},
		},
		{
			name:   "single member group is unwrapped",
			filter: ptr(query.CreateFilterGroup(query.LogicalOperatorOr, query.CreateSimpleFilter("name", query.ComparisonOperatorEq, "ZX9"))),
			want:   bson.D{{Key: "name", Value: "ZX9"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildFilter(sc, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildFilter_Errors(t *testing.T) {
	_, err := BuildFilter(nil, ptr(query.CreateSimpleFilter("name", query.ComparisonOperator("near"), "x")))
	assert.ErrorContains(t, err, "unsupported comparison operator")

	_, err = BuildFilter(nil, &query.QueryFilter{})
	assert.ErrorContains(t, err, "invalid filter structure")

	_, err = BuildFilter(nil, ptr(query.CreateFilterGroup("xor",
		query.CreateSimpleFilter("a", query.ComparisonOperatorEq, 1),
		query.CreateSimpleFilter("b", query.ComparisonOperatorEq, 2),
	)))
	assert.ErrorContains(t, err, "unsupported logical operator")
}

func TestBuildFilter_WithoutSchema(t *testing.T) {
	got, err := BuildFilter(nil, ptr(query.CreateSimpleFilter("price", query.ComparisonOperatorEq, "10")))
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "price", Value: "10"}}, got)
}

func TestBuildSort(t *testing.T) {
	got, err := BuildSort([]query.SortConfiguration{
		{Field: "price", Direction: query.SortDirectionDesc},
		{Field: "name", Direction: query.SortDirectionAsc},
	})
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "price", Value: -1}, {Key: "name", Value: 1}}, got)

	got, err = BuildSort(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBuildProjection(t *testing.T) {
	tests := []struct {
		name       string
		projection *query.ProjectionConfiguration
		want       bson.D
	}{
		{
			name: "none",
			want: bson.D{{Key: "_id", Value: 0}},
		},
		{
			name:       "include always has the identifier",
			projection: (&query.ProjectionConfiguration{}).AddIncludeFields("name", "id", "price"),
			want:       bson.D{{Key: "id", Value: 1}, {Key: "name", Value: 1}, {Key: "price", Value: 1}, {Key: "_id", Value: 0}},
		},
		{
			name:       "exclude never drops the identifier",
			projection: (&query.ProjectionConfiguration{}).AddExcludeFields("__v", "id"),
			want:       bson.D{{Key: "__v", Value: 0}, {Key: "_id", Value: 0}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildProjection(tt.projection, "id")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	got, err := BuildProjection((&query.ProjectionConfiguration{}).AddIncludeFields("name"), "_id")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}, {Key: "name", Value: 1}}, got)
}

func TestRender_RejectsOperatorPaths(t *testing.T) {
	sc := productsSchema(t)
	paths := []string{
		"$where",
		"$expr",
		"gallery.$where",
		"gallery.$",
		"gallery..first",
		"gallery.",
		".gallery",
		"na\x00me",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			_, err := BuildFilter(sc, ptr(query.CreateSimpleFilter(path, query.ComparisonOperatorEq, "x")))
			assert.ErrorIs(t, err, persistence.ErrUnknownField)

			_, err = BuildFilter(sc, ptr(query.CreateFilterGroup(query.LogicalOperatorOr,
				query.CreateSimpleFilter("name", query.ComparisonOperatorEq, "x"),
				query.CreateSimpleFilter(path, query.ComparisonOperatorExists, true))))
			assert.ErrorIs(t, err, persistence.ErrUnknownField)

			_, err = BuildSort([]query.SortConfiguration{{Field: path, Direction: query.SortDirectionAsc}})
			assert.ErrorIs(t, err, persistence.ErrUnknownField)

			_, err = BuildProjection((&query.ProjectionConfiguration{}).AddIncludeFields("name", path), "id")
			assert.ErrorIs(t, err, persistence.ErrUnknownField)

			_, err = BuildProjection((&query.ProjectionConfiguration{}).AddExcludeFields(path), "id")
			assert.ErrorIs(t, err, persistence.ErrUnknownField)

			_, err = FindOptions(&query.QueryDSL{Sort: []query.SortConfiguration{{Field: path}}}, "id")
			assert.ErrorIs(t, err, persistence.ErrUnknownField)
		})
	}

	t.Run("dollar inside a segment is a plain name", func(t *testing.T) {
		got, err := BuildFilter(sc, ptr(query.CreateSimpleFilter("gallery.price$", query.ComparisonOperatorEq, "x")))
		require.NoError(t, err)
		assert.Equal(t, bson.D{{Key: "gallery.price$", Value: "x"}}, got)
	})
}

func TestFindOptions(t *testing.T) {
	dsl := pipelineDSL(t, map[string]string{"sort": "-price", "page": "3", "limit": "4", "fields": "name"})

	opts, err := FindOptions(&dsl, "id")
	require.NoError(t, err)
	assert.Equal(t, bson.D{{Key: "price", Value: -1}}, opts.Sort)
	assert.Equal(t, bson.D{{Key: "id", Value: 1}, {Key: "name", Value: 1}, {Key: "_id", Value: 0}}, opts.Projection)
	require.NotNil(t, opts.Skip)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(8), *opts.Skip)
	assert.Equal(t, int64(4), *opts.Limit)

	first := pipelineDSL(t, map[string]string{})
	opts, err = FindOptions(&first, "id")
	require.NoError(t, err)
	assert.Nil(t, opts.Skip)
	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, opts.Sort)
	assert.Equal(t, bson.D{{Key: "__v", Value: 0}, {Key: "_id", Value: 0}}, opts.Projection)

	opts, err = FindOptions(nil, "id")
	require.NoError(t, err)
	assert.Nil(t, opts.Sort)
	assert.Nil(t, opts.Limit)
}

func TestIndexModels(t *testing.T) {
	models := IndexModels(productsSchema(t))
	require.Len(t, models, 3)

	assert.Equal(t, bson.D{{Key: "category", Value: 1}, {Key: "price", Value: 1}}, models[0].Keys)
	assert.Equal(t, "category_price", *models[0].Options.Name)
	assert.Nil(t, models[0].Options.Unique)

	assert.True(t, *models[1].Options.Unique)

	assert.Equal(t, bson.D{{Key: "createdAt", Value: -1}}, models[2].Keys)
	assert.Nil(t, models[2].Options.Name)
}

func TestNormalizeValue(t *testing.T) {
	oid := primitive.NewObjectID()
	got := normalizeMap(bson.M{
		"_id":     oid,
		"count":   int32(3),
		"gallery": bson.D{{Key: "first", Value: "a.png"}},
		"tags":    bson.A{"x", bson.M{"y": int32(1)}},
	})
	assert.Equal(t, map[string]any{
		"_id":     oid.Hex(),
		"count":   int64(3),
		"gallery": map[string]any{"first": "a.png"},
		"tags":    []any{"x", map[string]any{"y": int64(1)}},
	}, got)
}

func ptr(f query.QueryFilter) *query.QueryFilter {
	return &f
}
