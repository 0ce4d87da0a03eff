package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	s := Default()

	assert.Equal(t, DefaultQueries, s.Crawler.Queries)
	assert.Equal(t, 20, s.Crawler.MaxResults)
	assert.Equal(t, 30, s.Crawler.MinRelevance)
	assert.Equal(t, 70, s.Analyzer.MinScoreToIndex)
	assert.Equal(t, 40, s.Analyzer.MinScoreToWatch)
	assert.InDelta(t, 1.0, s.Analyzer.Factors.Sum(), 1e-9)
	assert.True(t, s.Catalog.AutoIndex)
	assert.False(t, s.Catalog.AutoDeindex)
	assert.Equal(t, PlatformSimulated, s.Integrations.Platform)
	assert.False(t, s.Integrations.AliExpress.Enabled)
	assert.False(t, s.Integrations.SupplierDiscovery())
	assert.Equal(t, 15*time.Second, s.Timeouts.Search)
	require.NoError(t, s.Validate())

	// Callers may mutate the returned queries.
	s.Crawler.Queries[0] = "changed"
	assert.NotEqual(t, "changed", DefaultQueries[0])
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(s *Settings)
		check func(t *testing.T, s Settings)
	}{
		{
			name: "blank and duplicate queries fall back to defaults",
			edit: func(s *Settings) { s.Crawler.Queries = []string{" ", ""} },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultQueries, s.Crawler.Queries)
			},
		},
		{
			name: "queries are trimmed and deduplicated",
			edit: func(s *Settings) { s.Crawler.Queries = []string{" led lamp ", "led lamp", "yoga mat"} },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, []string{"led lamp", "yoga mat"}, s.Crawler.Queries)
			},
		},
		{
			name: "non-positive max results and negative relevance",
			edit: func(s *Settings) { s.Crawler.MaxResults = 0; s.Crawler.MinRelevance = -5 },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 20, s.Crawler.MaxResults)
				assert.Equal(t, 30, s.Crawler.MinRelevance)
			},
		},
		{
			name: "negative weight resets all weights",
			edit: func(s *Settings) { s.Analyzer.Factors = Weights{Popularity: -1, Profitability: 2} },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultWeights(), s.Analyzer.Factors)
			},
		},
		{
			name: "zero weights reset",
			edit: func(s *Settings) { s.Analyzer.Factors = Weights{} },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, DefaultWeights(), s.Analyzer.Factors)
			},
		},
		{
			name: "unnormalized weights are kept",
			edit: func(s *Settings) { s.Analyzer.Factors = Weights{Popularity: 2, Profitability: 2} },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, Weights{Popularity: 2, Profitability: 2}, s.Analyzer.Factors)
			},
		},
		{
			name: "thresholds clamped and swapped",
			edit: func(s *Settings) { s.Analyzer.MinScoreToIndex = 30; s.Analyzer.MinScoreToWatch = 150 },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 100, s.Analyzer.MinScoreToIndex)
				assert.Equal(t, 30, s.Analyzer.MinScoreToWatch)
			},
		},
		{
			name: "unknown platform disables sync",
			edit: func(s *Settings) { s.Integrations.Platform = "magento" },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, PlatformNone, s.Integrations.Platform)
			},
		},
		{
			name: "missing timeouts",
			edit: func(s *Settings) { s.Timeouts = Timeouts{} },
			check: func(t *testing.T, s Settings) {
				assert.Equal(t, 15*time.Second, s.Timeouts.Search)
				assert.Equal(t, 15*time.Second, s.Timeouts.Catalog)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.edit(&s)
			s.Normalize()
			tt.check(t, s)
		})
	}
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Crawler.MaxResults = 0
	s.Analyzer.MinScoreToWatch = 90
	s.Integrations.Platform = "magento"

	err := s.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "crawler.max_results")
	assert.Contains(t, err.Error(), "min_score_to_watch")
	assert.Contains(t, err.Error(), "magento")
}

func TestFileStore_MissingFileGivesDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, Default(), store.Load(context.Background()))
}

func TestFileStore_CorruptFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler: [unclosed"), 0o644))

	assert.Equal(t, Default(), NewFileStore(path).Load(context.Background()))
}

func TestFileStore_PartialFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	doc := "analyzer:\n  min_score_to_index: 80\ncatalog:\n  auto_deindex: true\ntimeouts:\n  search: 5s\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s := NewFileStore(path).Load(context.Background())
	assert.Equal(t, 80, s.Analyzer.MinScoreToIndex)
	assert.Equal(t, 40, s.Analyzer.MinScoreToWatch)
	assert.True(t, s.Catalog.AutoDeindex)
	assert.True(t, s.Catalog.AutoIndex)
	assert.Equal(t, 5*time.Second, s.Timeouts.Search)
	assert.Equal(t, DefaultQueries, s.Crawler.Queries)
}

func TestFileStore_SupplierDiscovery(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want bool
	}{
		{name: "enabled and included", doc: "integrations:\n  aliexpress:\n    enabled: true\n    include_in_discovery: true\n", want: true},
		{name: "enabled only", doc: "integrations:\n  aliexpress:\n    enabled: true\n"},
		{name: "included but disabled", doc: "integrations:\n  aliexpress:\n    include_in_discovery: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			s := NewFileStore(path).Load(context.Background())
			assert.Equal(t, tt.want, s.Integrations.SupplierDiscovery())
			assert.Equal(t, PlatformSimulated, s.Integrations.Platform)
		})
	}
}

func TestFileStore_SaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "config", "settings.yaml"))

	s := Default()
	s.Crawler.Queries = []string{"ergonomic desk lamp"}
	s.Integrations.Platform = PlatformShopify
	s.Integrations.Shopify.StoreName = "demo-store"
	require.NoError(t, store.Save(ctx, s))

	assert.Equal(t, s, store.Load(ctx))
}

func TestFileStore_SaveRejectsInvalid(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "settings.yaml"))
	s := Default()
	s.Analyzer.Factors = Weights{}

	require.ErrorIs(t, store.Save(context.Background(), s), ErrInvalid)
	_, err := os.Stat(store.Path)
	assert.True(t, os.IsNotExist(err))
}
