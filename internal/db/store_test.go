package db

import (
	"strings"
	"testing"

	"github.com/david/product-scout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecommendationQuery(t *testing.T) {
	sql, args, err := buildRecommendationQuery(models.RecommendIndex, []models.CatalogStatus{models.CatalogNew, models.CatalogPending}).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "SELECT id, title, description, url"), sql)
	assert.Contains(t, sql, "FROM products WHERE recommendation = $1 AND catalog_status IN ($2,$3)")
	assert.Contains(t, sql, "ORDER BY score DESC, discovered_at ASC")
	assert.Equal(t, []any{"index", "new", "pending"}, args)
}

func TestBuildRecommendationQuery_AnyStatus(t *testing.T) {
	sql, args, err := buildRecommendationQuery(models.RecommendDeindex, nil).ToSql()
	require.NoError(t, err)

	assert.NotContains(t, sql, "catalog_status IN")
	assert.Equal(t, []any{"deindex"}, args)
}

func TestBuildPagedQueries(t *testing.T) {
	tests := []struct {
		name      string
		params    ListParams
		wantWhere string
		wantArgs  []any
		wantPage  string
	}{
		{
			name:     "no filters",
			params:   ListParams{Page: 1, Limit: 20},
			wantPage: "LIMIT 20 OFFSET 0",
		},
		{
			name:      "status and recommendation",
			params:    ListParams{Status: models.CatalogIndexed, Recommendation: models.RecommendIndex, Page: 3, Limit: 10},
			wantWhere: "WHERE (catalog_status = $1 AND recommendation = $2)",
			wantArgs:  []any{"indexed", "index"},
			wantPage:  "LIMIT 10 OFFSET 20",
		},
		{
			name:      "source only",
			params:    ListParams{Source: models.SourceMockData, Page: 2, Limit: 5},
			wantWhere: "WHERE (source = $1)",
			wantArgs:  []any{"mock_data"},
			wantPage:  "LIMIT 5 OFFSET 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pageQ, countQ := buildPagedQueries(tt.params)

			pageSQL, pageArgs, err := pageQ.ToSql()
			require.NoError(t, err)
			countSQL, countArgs, err := countQ.ToSql()
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(countSQL, "SELECT COUNT(*) FROM products"), countSQL)
			assert.Contains(t, pageSQL, "ORDER BY discovered_at DESC, id")
			assert.Contains(t, pageSQL, tt.wantPage)
			if tt.wantWhere == "" {
				assert.NotContains(t, pageSQL, "WHERE")
				assert.NotContains(t, countSQL, "WHERE")
				assert.Empty(t, pageArgs)
				return
			}
			assert.Contains(t, pageSQL, tt.wantWhere)
			assert.Contains(t, countSQL, tt.wantWhere)
			assert.Equal(t, tt.wantArgs, pageArgs)
			assert.Equal(t, tt.wantArgs, countArgs)
		})
	}
}

func TestListParamsNormalize(t *testing.T) {
	tests := []struct {
		in   ListParams
		want ListParams
	}{
		{ListParams{}, ListParams{Page: 1, Limit: 20}},
		{ListParams{Page: -4, Limit: 500}, ListParams{Page: 1, Limit: 100}},
		{ListParams{Page: 7, Limit: 3}, ListParams{Page: 7, Limit: 3}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.normalize())
	}
}

func TestNewListResult(t *testing.T) {
	res := newListResult(nil, 41, ListParams{Page: 2, Limit: 20})

	assert.NotNil(t, res.Products)
	assert.Equal(t, 41, res.Total)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 2, res.Page)

	assert.Equal(t, 0, newListResult(nil, 0, ListParams{Page: 1, Limit: 20}).Pages)
}
