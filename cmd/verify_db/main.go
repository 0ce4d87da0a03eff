package main

import (
	"context"
	"fmt"
	"log"

	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/models"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	stats, err := db.NewStore(pool).Stats(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Total products: %d\n", stats.Total)
	fmt.Printf("Analyzed: %d (avg score %.1f)\n", stats.Analyzed, stats.AverageScore)
	for _, s := range []models.CatalogStatus{models.CatalogNew, models.CatalogPending, models.CatalogIndexed, models.CatalogDeindexed} {
		fmt.Printf("Catalog %-10s %d\n", s+":", stats.ByCatalogStatus[s])
	}
	for _, r := range []models.Recommendation{models.RecommendIndex, models.RecommendWatch, models.RecommendSkip, models.RecommendDeindex, models.RecommendError} {
		fmt.Printf("Recommend %-9s %d\n", r+":", stats.ByRecommendation[r])
	}
	for src, n := range stats.BySource {
		fmt.Printf("Source %-12s %d\n", src+":", n)
	}

	var withCatalogID int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM products WHERE catalog_id IS NOT NULL`).Scan(&withCatalogID); err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	fmt.Printf("With catalog id: %d\n", withCatalogID)
}
