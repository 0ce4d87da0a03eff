package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Lists the best scored products for one recommendation.
func main() {
	rec := flag.String("recommendation", string(models.RecommendIndex), "Recommendation to list (index, watch, skip, deindex)")
	limit := flag.Int("limit", 20, "Max rows")
	flag.Parse()

	r := models.Recommendation(*rec)
	if !r.Valid() {
		log.Fatalf("Unknown recommendation %q", *rec)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	products, err := db.NewStore(pool).FindByRecommendation(ctx, r)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	if len(products) > *limit {
		products = products[:*limit]
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Score", "Category", "Catalog", "Domain", "Title"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 5, WidthMax: 60},
	})
	for _, p := range products {
		category := ""
		score := 0
		if p.Analysis != nil {
			category = p.Analysis.Category
			score = p.Analysis.Score
		}
		t.AppendRow(table.Row{score, category, p.CatalogStatus, p.Domain, p.Title})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(products)})
	t.Render()
}
