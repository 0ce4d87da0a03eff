package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/models"
)

// NewSearcher returns the Brave client backed by synthetic fixtures, or the
// fixtures alone when no API key is configured.
func NewSearcher(apiKey string, now func() time.Time) Searcher {
	fixtures := NewFixtureSearcher(now)
	if apiKey == "" {
		log.Warn("search: BRAVE_API_KEY not set, using synthetic mock_data listings")
		return fixtures
	}
	return &FallbackSearcher{
		Primary:  NewBraveSearcher(apiKey, WithClock(fixtures.now)),
		Fallback: fixtures,
	}
}

// FallbackSearcher answers from Fallback when Primary is unavailable or
// rejects its credentials. A cancelled or expired context is returned as-is.
type FallbackSearcher struct {
	Primary  Searcher
	Fallback Searcher
}

func (s *FallbackSearcher) Name() string { return s.Primary.Name() }

func (s *FallbackSearcher) Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error) {
	listings, err := s.Primary.Search(ctx, query, maxResults)
	if err == nil {
		return listings, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, err
	}
	log.WithFields(log.Fields{"query": query, "searcher": s.Primary.Name()}).
		WithError(err).Warn("search: primary unavailable, using fallback listings")
	return s.Fallback.Search(ctx, query, maxResults)
}

// MultiSearcher concatenates the results of several searchers in order. It
// fails only when every searcher fails.
type MultiSearcher []Searcher

func (m MultiSearcher) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m MultiSearcher) Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error) {
	var out []models.Listing
	var errs []error
	for _, s := range m {
		listings, err := s.Search(ctx, query, maxResults)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.WithFields(log.Fields{"query": query, "searcher": s.Name()}).WithError(err).Warn("search: searcher failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		out = append(out, listings...)
	}
	if len(errs) > 0 && len(errs) == len(m) {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
