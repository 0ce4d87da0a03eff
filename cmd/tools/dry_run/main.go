package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/david/product-scout/internal/catalog"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/pipeline"
	"github.com/david/product-scout/internal/settings"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type staticSettings settings.Settings

func (s staticSettings) Load(context.Context) settings.Settings { return settings.Settings(s) }

// Runs the whole pipeline against fixture search results, an in-memory store
// and the simulated catalog. Nothing leaves the process.
func main() {
	query := flag.String("query", "", "Comma-separated queries (default: configured queries)")
	maxResults := flag.Int("max", 10, "Max results per query")
	flag.Parse()

	cfg := settings.NewFileStore(os.Getenv("SETTINGS_PATH")).Load(context.Background())
	if *query != "" {
		cfg.Crawler.Queries = strings.Split(*query, ",")
	}
	cfg.Crawler.MaxResults = *maxResults
	cfg.Crawler.EnrichPages = false
	cfg.Integrations.Platform = settings.PlatformSimulated
	cfg.Normalize()

	store := db.NewMemoryStore()
	runner := pipeline.NewRunner(store, staticSettings(cfg), ingest.NewFixtureSearcher(time.Now), func(c settings.IntegrationSettings) (catalog.Platform, error) {
		return catalog.NewPlatform(c, catalog.Credentials{})
	})
	runner.Enricher = nil

	ctx := context.Background()
	report, err := runner.Run(ctx, "dry-run")
	if err != nil {
		log.Fatalf("Run failed: %v", err)
	}

	products, err := store.FindPaged(ctx, db.ListParams{Page: 1, Limit: 100})
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Dry run %s", report.Run.ID.String()[:8])
	t.AppendHeader(table.Row{"Score", "Recommendation", "Category", "Catalog", "Catalog ID", "Title"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 6, WidthMax: 50},
	})
	for _, p := range products.Products {
		score, category := 0, ""
		if p.Analysis != nil {
			score, category = p.Analysis.Score, p.Analysis.Category
		}
		catalogID := ""
		if p.CatalogID != nil {
			catalogID = *p.CatalogID
		}
		t.AppendRow(table.Row{score, p.Recommendation(), category, p.CatalogStatus, catalogID, p.Title})
	}
	t.Render()

	c := report.Run.Counts
	summary := table.NewWriter()
	summary.SetOutputMirror(os.Stdout)
	summary.AppendHeader(table.Row{"Status", "Discovered", "Persisted", "Analyzed", "Indexed", "Deindexed", "Failures"})
	summary.AppendRow(table.Row{report.Run.Status, c.Discovered, c.Persisted, c.Analyzed, c.Indexed, c.Deindexed, c.Failures()})
	summary.Render()
}
