package ingest

import (
	"context"

	"github.com/david/product-scout/internal/models"
)

// Searcher runs one web search. Implementations return an empty slice, not
// an error, when a query has no results.
type Searcher interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error)
}

// Enricher fills missing listing fields from the listing's own page.
type Enricher interface {
	Enrich(ctx context.Context, l *models.Listing) error
}

// ListingStore persists discovered products, deduplicated by URL. Save
// returns the stored product and whether it was newly created.
type ListingStore interface {
	Save(ctx context.Context, p models.Product) (models.Product, bool, error)
}
