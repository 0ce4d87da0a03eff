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
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/pipeline"
	"github.com/david/product-scout/internal/settings"
)

// querySettings overrides the configured crawler queries.
type querySettings struct {
	base    *settings.FileStore
	queries []string
	max     int
}

func (q querySettings) Load(ctx context.Context) settings.Settings {
	s := q.base.Load(ctx)
	s.Crawler.Queries = q.queries
	if q.max > 0 {
		s.Crawler.MaxResults = q.max
	}
	return s
}

func main() {
	query := flag.String("query", "", "Search query to discover (comma-separated for several)")
	maxResults := flag.Int("max", 0, "Max results per query (0 keeps the configured value)")
	analyze := flag.Bool("analyze", false, "Also analyze what was discovered")
	flag.Parse()

	var queries []string
	for _, q := range strings.Split(*query, ",") {
		if q = strings.TrimSpace(q); q != "" {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		log.Fatal("Please provide a search query using -query flag")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	src := querySettings{base: settings.NewFileStore(os.Getenv("SETTINGS_PATH")), queries: queries, max: *maxResults}
	searcher := ingest.NewSearcher(strings.TrimSpace(os.Getenv("BRAVE_API_KEY")), time.Now)
	runner := pipeline.NewRunner(db.NewStore(pool), src, searcher, func(cfg settings.IntegrationSettings) (catalog.Platform, error) {
		return catalog.NewPlatform(cfg, catalog.CredentialsFromEnv())
	})

	log.Printf("Starting manual discovery for: %s", strings.Join(queries, ", "))
	report, err := runner.RunStage(ctx, "manual", models.StageDiscover)
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}
	c := report.Run.Counts
	log.Printf("Discovery finished. Found: %d, Saved: %d", c.Discovered, c.Persisted)

	if *analyze {
		report, err = runner.RunStage(ctx, "manual", models.StageAnalyze)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		c = report.Run.Counts
		log.Printf("Analysis finished. Analyzed: %d, Errors: %d", c.Analyzed, c.AnalysisFailed)
	}
}
