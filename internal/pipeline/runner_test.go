package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/david/product-scout/internal/catalog"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runNow = time.Date(2026, 11, 20, 8, 0, 0, 0, time.UTC)

type staticSettings settings.Settings

func (s staticSettings) Load(context.Context) settings.Settings { return settings.Settings(s) }

func testSettings() staticSettings {
	cfg := settings.Default()
	cfg.Crawler.Queries = []string{"trending kitchen gadgets"}
	cfg.Crawler.MaxResults = 4
	return staticSettings(cfg)
}

func simulatedFactory(cfg settings.IntegrationSettings) (catalog.Platform, error) {
	return catalog.NewPlatform(cfg, catalog.Credentials{})
}

func newTestRunner(store Store) *Runner {
	clock := func() time.Time { return runNow }
	r := NewRunner(store, testSettings(), ingest.NewFixtureSearcher(clock), simulatedFactory)
	r.Now = clock
	return r
}

func TestRunner_FullRun(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	runner := newTestRunner(store)

	report, err := runner.Run(ctx, "manual")
	require.NoError(t, err)

	c := report.Run.Counts
	assert.Equal(t, 4, c.Discovered)
	assert.Equal(t, c.Discovered, c.Persisted)
	assert.Equal(t, c.Persisted, c.Analyzed)
	assert.Zero(t, c.AnalysisFailed)
	assert.Zero(t, c.SyncFailed)
	assert.Equal(t, models.RunCompleted, report.Run.Status)
	require.NotNil(t, report.Discovery)
	require.NotNil(t, report.Analysis)
	require.NotNil(t, report.Sync)
	assert.Equal(t, "simulated", report.Sync.Platform)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.Indexed, stats.ByCatalogStatus[models.CatalogIndexed])
	assert.Equal(t, c.Indexed, stats.ByRecommendation[models.RecommendIndex])

	stored, err := store.GetRun(ctx, report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, stored.Status)
	assert.Equal(t, c, stored.Counts)
	require.NotNil(t, stored.FinishedAt)
}

func TestRunner_RerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	runner := newTestRunner(store)

	_, err := runner.Run(ctx, "manual")
	require.NoError(t, err)
	second, err := runner.Run(ctx, "schedule")
	require.NoError(t, err)

	assert.Equal(t, 4, second.Run.Counts.Discovered)
	assert.Zero(t, second.Run.Counts.Persisted)
	assert.Equal(t, 4, second.Discovery.Existing)
	assert.Zero(t, second.Run.Counts.Analyzed)
	assert.Zero(t, second.Run.Counts.Indexed)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
}

func TestRunner_SingleStage(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	runner := newTestRunner(store)

	report, err := runner.RunStage(ctx, "manual", models.StageDiscover)
	require.NoError(t, err)
	assert.NotNil(t, report.Discovery)
	assert.Nil(t, report.Analysis)
	assert.Nil(t, report.Sync)

	pending, err := store.FindUnanalyzed(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, report.Run.Counts.Persisted)

	report, err = runner.RunStage(ctx, "manual", models.StageAnalyze)
	require.NoError(t, err)
	assert.Nil(t, report.Discovery)
	assert.Equal(t, len(pending), report.Run.Counts.Analyzed)

	_, err = runner.RunStage(ctx, "manual", models.Stage("reindex"))
	assert.Error(t, err)
}

func TestRunner_PlatformNotConfiguredSkipsSync(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	runner := newTestRunner(store)
	runner.Platform = func(settings.IntegrationSettings) (catalog.Platform, error) {
		return nil, catalog.ErrPlatformNotConfigured
	}

	report, err := runner.Run(ctx, "manual")
	require.NoError(t, err)
	require.NotNil(t, report.Sync)
	assert.True(t, report.Sync.Skipped)
	assert.Zero(t, report.Run.Counts.Indexed)
	assert.Equal(t, models.RunCompleted, report.Run.Status)
}

func TestRunner_ReusesPlatformWhileSettingsUnchanged(t *testing.T) {
	built := 0
	runner := newTestRunner(db.NewMemoryStore())
	runner.Platform = func(cfg settings.IntegrationSettings) (catalog.Platform, error) {
		built++
		return catalog.NewSimulated(), nil
	}
	cfg := settings.Default().Integrations

	first, err := runner.platformFor(cfg)
	require.NoError(t, err)
	second, err := runner.platformFor(cfg)
	require.NoError(t, err)
	assert.Same(t, first, second)

	cfg.Platform = settings.PlatformShopify
	_, err = runner.platformFor(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}

type failingAnalysisStore struct {
	*db.MemoryStore
}

func (failingAnalysisStore) FindUnanalyzed(context.Context) ([]models.Product, error) {
	return nil, errors.New("connection reset")
}

func TestRunner_SupplierJoinsDiscoveryWhenIncluded(t *testing.T) {
	tests := []struct {
		name         string
		enabled      bool
		included     bool
		wantSupplier int
	}{
		{name: "enabled and included", enabled: true, included: true, wantSupplier: 4},
		{name: "enabled only", enabled: true},
		{name: "disabled", included: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := db.NewMemoryStore()
			runner := newTestRunner(store)
			runner.Supplier = ingest.NewAliExpressSearcher("", "", ingest.WithAliExpressClock(runner.Now))
			cfg := settings.Settings(testSettings())
			cfg.Integrations.AliExpress = settings.AliExpressSettings{Enabled: tt.enabled, IncludeInDiscovery: tt.included}
			runner.Settings = staticSettings(cfg)

			report, err := runner.RunStage(ctx, "manual", models.StageDiscover)
			require.NoError(t, err)

			assert.Equal(t, 4+tt.wantSupplier, report.Run.Counts.Discovered)
			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSupplier, stats.BySource[models.SourceAliExpress])
			assert.Equal(t, 4, stats.BySource[models.SourceMockData])
		})
	}
}

func TestRunner_StageErrorMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	mem := db.NewMemoryStore()
	runner := newTestRunner(failingAnalysisStore{mem})

	report, err := runner.Run(ctx, "manual")
	require.Error(t, err)
	assert.Equal(t, models.RunFailed, report.Run.Status)
	assert.Nil(t, report.Sync)

	stored, err := mem.GetRun(ctx, report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, stored.Status)
	assert.Contains(t, stored.Error, "connection reset")
	assert.Equal(t, 4, stored.Counts.Persisted)
}

func TestRunStatus(t *testing.T) {
	assert.Equal(t, models.RunCompleted, runStatus(models.RunCounts{Analyzed: 3}, nil))
	assert.Equal(t, models.RunPartial, runStatus(models.RunCounts{SyncFailed: 1}, nil))
	assert.Equal(t, models.RunFailed, runStatus(models.RunCounts{}, errors.New("boom")))
}
