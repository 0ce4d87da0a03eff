package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/david/product-scout/internal/auth"
	"github.com/david/product-scout/internal/catalog"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/pipeline"
	"github.com/david/product-scout/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

var apiNow = time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)

// blockingRunner holds every run until release is closed.
type blockingRunner struct {
	started chan models.Stage
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan models.Stage, 4), release: make(chan struct{})}
}

func (b *blockingRunner) RunStage(ctx context.Context, trigger string, stage models.Stage) (pipeline.RunReport, error) {
	b.started <- stage
	select {
	case <-b.release:
	case <-ctx.Done():
		return pipeline.RunReport{}, ctx.Err()
	}
	return pipeline.RunReport{Run: models.PipelineRun{Trigger: trigger, Stage: stage, Status: models.RunCompleted}}, nil
}

type fixture struct {
	srv    *Server
	store  *db.MemoryStore
	runner *blockingRunner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc, err := auth.NewService(auth.Config{Secret: testSecret, JWTSecret: "jwt-test-key"})
	require.NoError(t, err)

	store := db.NewMemoryStore()
	runner := newBlockingRunner()
	srv := NewServer(Deps{
		Store:    store,
		Settings: settings.NewFileStore(filepath.Join(t.TempDir(), "settings.yaml")),
		Runner:   runner,
		Auth:     svc,
		Platform: func(cfg settings.IntegrationSettings) (catalog.Platform, error) {
			return catalog.NewPlatform(cfg, catalog.Credentials{})
		},
		Supplier: ingest.NewAliExpressSearcher("", "", ingest.WithAliExpressClock(func() time.Time { return apiNow })),
	})
	srv.Now = func() time.Time { return apiNow }
	t.Cleanup(func() { close(runner.release) })
	return &fixture{srv: srv, store: store, runner: runner}
}

func (f *fixture) do(t *testing.T, method, path, body string, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if admin {
		req.Header.Set("X-Admin-Secret", testSecret)
	}
	rec := httptest.NewRecorder()
	f.srv.Echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *fixture) seed(t *testing.T, url string) models.Product {
	t.Helper()
	p, created, err := f.store.Save(context.Background(), models.NewProduct(models.Listing{
		Title:        "Portable Blender",
		URL:          url,
		Source:       models.SourceBraveSearch,
		DiscoveredAt: apiNow,
	}))
	require.NoError(t, err)
	require.True(t, created)
	return p
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/health/ready", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]string](t, rec)["status"])
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/v1/products"},
		{http.MethodDelete, "/api/v1/products/6f1c2b1e-7f43-4b7a-9f7e-4f3f7d9a1c11"},
		{http.MethodPost, "/api/v1/runs"},
		{http.MethodPut, "/api/v1/settings"},
		{http.MethodPost, "/api/v1/integrations/test"},
	}
	for _, r := range routes {
		rec := f.do(t, r.method, r.path, "", false)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", r.method, r.path)
	}
}

func TestIssueToken(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/token", `{"secret":"wrong"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/token", `{"secret":"s3cret","subject":"ci"}`, false)
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[map[string]any](t, rec)["token"].(string)
	require.NotEmpty(t, token)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/settings/crawler", strings.NewReader(`{"max_results":7}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	out := httptest.NewRecorder()
	f.srv.Echo.ServeHTTP(out, req)
	assert.Equal(t, http.StatusOK, out.Code, out.Body.String())
}

func TestCreateProduct(t *testing.T) {
	f := newFixture(t)
	body := `{"title":"Trending LED Strip Lights","description":"Best seller for dropshipping","url":"https://shop.example.com/led"}`

	rec := f.do(t, http.MethodPost, "/api/v1/products", body, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[struct {
		Product models.Product `json:"product"`
		Created bool           `json:"created"`
	}](t, rec)
	assert.True(t, first.Created)
	assert.Equal(t, models.SourceManual, first.Product.Source)
	assert.Equal(t, "example.com", first.Product.Domain)
	assert.Equal(t, models.CatalogNew, first.Product.CatalogStatus)
	assert.Positive(t, first.Product.RelevanceScore)

	rec = f.do(t, http.MethodPost, "/api/v1/products", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[struct {
		Product models.Product `json:"product"`
		Created bool           `json:"created"`
	}](t, rec)
	assert.False(t, second.Created)
	assert.Equal(t, first.Product.ID, second.Product.ID)
}

func TestCreateProduct_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing url", body: `{"title":"x"}`},
		{name: "relative url", body: `{"title":"x","url":"/led"}`},
		{name: "ftp url", body: `{"title":"x","url":"ftp://example.com/led"}`},
		{name: "missing title", body: `{"url":"https://example.com/led"}`},
		{name: "malformed json", body: `{"title":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/v1/products", tt.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetAndDeleteProduct(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "https://example.com/blender")

	rec := f.do(t, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, p.URL, decode[models.Product](t, rec).URL)

	rec = f.do(t, http.MethodGet, "/api/v1/products/not-a-uuid", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/products/"+p.ID.String(), "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/products/"+p.ID.String(), "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/products/"+p.ID.String(), "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListProducts(t *testing.T) {
	f := newFixture(t)
	for _, u := range []string{"https://a.example.com/1", "https://a.example.com/2", "https://a.example.com/3"} {
		f.seed(t, u)
	}

	rec := f.do(t, http.MethodGet, "/api/v1/products?limit=2&page=2&status=new", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[db.ListResult](t, rec)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 2, res.Pages)
	assert.Len(t, res.Products, 1)

	for _, q := range []string{"status=gone", "recommendation=maybe", "source=carrier-pigeon"} {
		rec = f.do(t, http.MethodGet, "/api/v1/products?"+q, "", false)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestSetRecommendation(t *testing.T) {
	f := newFixture(t)
	p := f.seed(t, "https://example.com/blender")
	path := "/api/v1/products/" + p.ID.String() + "/recommendation"

	rec := f.do(t, http.MethodPatch, path, `{"recommendation":"deindex"}`, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.NoError(t, f.store.UpdateAnalysis(context.Background(), p.ID, models.Analysis{
		Score:          82,
		Recommendation: models.RecommendIndex,
		AnalyzedAt:     apiNow,
	}))

	rec = f.do(t, http.MethodPatch, path, `{"recommendation":"error"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPatch, path, `{"recommendation":"deindex"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.Product](t, rec)
	assert.Equal(t, models.RecommendDeindex, got.Recommendation())
	assert.Equal(t, 82, got.Analysis.Score)

	rec = f.do(t, http.MethodPatch, "/api/v1/products/6f1c2b1e-7f43-4b7a-9f7e-4f3f7d9a1c11/recommendation", `{"recommendation":"skip"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "https://example.com/a")
	f.seed(t, "https://example.com/b")

	rec := f.do(t, http.MethodGet, "/api/v1/stats", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.Stats](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 0, stats.Analyzed)
	assert.Equal(t, 2, stats.ByCatalogStatus[models.CatalogNew])
}

func TestTriggerRun_SingleJob(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/runs", "", true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode[map[string]string](t, rec)
	jobID := started["job_id"]
	require.Len(t, jobID, 8)
	assert.Equal(t, "/api/v1/runs/jobs/"+jobID, started["poll"])

	select {
	case stage := <-f.runner.started:
		assert.Equal(t, models.StageAll, stage)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}

	rec = f.do(t, http.MethodPost, "/api/v1/runs/analyze", "", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, jobID, decode[map[string]string](t, rec)["job_id"])

	rec = f.do(t, http.MethodGet, "/api/v1/runs/jobs/"+jobID, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode[map[string]any](t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/v1/runs/jobs/deadbeef", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerStage_RejectsUnknown(t *testing.T) {
	f := newFixture(t)

	for _, stage := range []string{"all", "publish"} {
		rec := f.do(t, http.MethodPost, "/api/v1/runs/"+stage, "", true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, stage)
	}
}

func TestRuns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run, err := f.store.CreateRun(ctx, "schedule", models.StageAll)
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/v1/runs?limit=5", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]models.PipelineRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "schedule", runs[0].Trigger)

	rec = f.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.RunRunning, decode[models.PipelineRun](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/api/v1/runs/6f1c2b1e-7f43-4b7a-9f7e-4f3f7d9a1c11", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/settings", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, settings.Default().Crawler.MaxResults, decode[settings.Settings](t, rec).Crawler.MaxResults)

	rec = f.do(t, http.MethodPut, "/api/v1/settings/crawler", `{"queries":["smart pet feeder"],"max_results":5}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	crawler := decode[settings.CrawlerSettings](t, rec)
	assert.Equal(t, []string{"smart pet feeder"}, crawler.Queries)
	assert.Equal(t, 5, crawler.MaxResults)
	assert.Equal(t, settings.Default().Crawler.MinRelevance, crawler.MinRelevance)

	rec = f.do(t, http.MethodPut, "/api/v1/settings/crawler", `{"max_results":0}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/settings", `{"integrations":{"platform":"etsy"}}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/settings/crawler", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decode[settings.CrawlerSettings](t, rec).MaxResults)
}

func TestIntegrations(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/integrations/status", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[integrationStatus](t, rec)
	assert.Equal(t, settings.PlatformSimulated, status.Platform)
	assert.True(t, status.Active)

	rec = f.do(t, http.MethodPost, "/api/v1/integrations/test", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]any](t, rec)["ok"])

	rec = f.do(t, http.MethodPut, "/api/v1/settings", `{"integrations":{"platform":"shopify","shopify":{"enabled":true,"store_name":"demo"}}}`, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/integrations/status", "", false)
	status = decode[integrationStatus](t, rec)
	assert.False(t, status.Active)
	assert.True(t, status.Shopify.Configured)
	assert.Contains(t, status.Reason, "SHOPIFY_ACCESS_TOKEN")

	rec = f.do(t, http.MethodPost, "/api/v1/integrations/test", "", true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
