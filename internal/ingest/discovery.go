package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/metrics"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	multiHitDomainBonus = 10
	searchConcurrency   = 4
)

// PersistResult is the storage outcome of one surviving listing.
type PersistResult struct {
	URL       string    `json:"url"`
	ProductID uuid.UUID `json:"product_id"`
	Created   bool      `json:"created"`
	Err       error     `json:"-"`
}

// DiscoveryReport holds the counts of one discovery run. Persisted counts
// newly created products; Existing counts URLs that were already stored.
type DiscoveryReport struct {
	Queries     int             `json:"queries"`
	QueryErrors int             `json:"query_errors"`
	Discovered  int             `json:"discovered"`
	Relevant    int             `json:"relevant"`
	Kept        int             `json:"kept"`
	Persisted   int             `json:"persisted"`
	Existing    int             `json:"existing"`
	Failed      int             `json:"failed"`
	Results     []PersistResult `json:"-"`
}

// Discoverer runs the configured queries, filters and ranks the hits, and
// persists the survivors.
type Discoverer struct {
	Searcher Searcher
	Filter   *RelevanceFilter
	Store    ListingStore
	// Enricher is used when crawler.enrich_pages is set. May be nil.
	Enricher Enricher
	Now      func() time.Time
}

func NewDiscoverer(searcher Searcher, store ListingStore, enricher Enricher) *Discoverer {
	return &Discoverer{
		Searcher: searcher,
		Filter:   NewRelevanceFilter(),
		Store:    store,
		Enricher: enricher,
		Now:      time.Now,
	}
}

func (d *Discoverer) Discover(ctx context.Context, cfg settings.Settings) DiscoveryReport {
	queries := cfg.Crawler.Queries
	report := DiscoveryReport{Queries: len(queries)}

	raw, failed := d.search(ctx, queries, cfg.Crawler.MaxResults, cfg.Timeouts.Search)
	report.QueryErrors = failed
	report.Discovered = len(raw)
	metrics.ListingsDiscoveredTotal.Add(float64(len(raw)))

	survivors := d.filter(raw, cfg.Crawler.MinRelevance)
	report.Relevant = len(survivors)

	survivors = Rank(survivors, cfg.Crawler.MaxResults*2)
	report.Kept = len(survivors)

	if cfg.Crawler.EnrichPages && d.Enricher != nil {
		d.enrich(ctx, survivors, cfg.Timeouts.Search)
	}

	report.Results = make([]PersistResult, 0, len(survivors))
	for _, l := range survivors {
		res := d.persist(ctx, l)
		switch {
		case res.Err != nil:
			report.Failed++
		case res.Created:
			report.Persisted++
		default:
			report.Existing++
		}
		report.Results = append(report.Results, res)
	}

	log.WithFields(log.Fields{
		"queries":    report.Queries,
		"discovered": report.Discovered,
		"relevant":   report.Relevant,
		"persisted":  report.Persisted,
		"existing":   report.Existing,
		"failed":     report.Failed,
	}).Info("discovery: run complete")
	return report
}

// search runs every query under its own timeout and merges the results in
// query order, keeping the first listing seen for each URL.
func (d *Discoverer) search(ctx context.Context, queries []string, maxResults int, timeout time.Duration) ([]models.Listing, int) {
	perQuery := make([][]models.Listing, len(queries))
	errs := make([]error, len(queries))

	var g errgroup.Group
	g.SetLimit(searchConcurrency)
	for i, q := range queries {
		g.Go(func() error {
			qctx, cancel := withOptionalTimeout(ctx, timeout)
			defer cancel()
			perQuery[i], errs[i] = d.Searcher.Search(qctx, q, maxResults)
			return nil
		})
	}
	_ = g.Wait()

	now := d.Now()
	seen := make(map[string]bool)
	var merged []models.Listing
	failed := 0
	for i, listings := range perQuery {
		if errs[i] != nil {
			failed++
			metrics.SearchErrorsTotal.Inc()
			log.WithField("query", queries[i]).WithError(errs[i]).Warn("discovery: search failed")
			continue
		}
		for _, l := range listings {
			if l.Query == "" {
				l.Query = queries[i]
			}
			NormalizeListing(&l, now)
			if l.URL == "" || seen[l.URL] {
				continue
			}
			seen[l.URL] = true
			merged = append(merged, l)
		}
	}
	return merged, failed
}

func (d *Discoverer) filter(listings []models.Listing, threshold int) []models.Listing {
	var out []models.Listing
	for _, l := range listings {
		res := d.Filter.Evaluate(l, threshold)
		if !res.Accepted {
			metrics.ListingsFilteredTotal.WithLabelValues("rejected").Inc()
			continue
		}
		metrics.ListingsFilteredTotal.WithLabelValues("accepted").Inc()
		l.RelevanceScore = res.Score
		l.MatchReasons = res.Signals
		out = append(out, l)
	}
	return out
}

// Rank boosts listings from domains with at least two survivors, orders by
// relevance (highest first, stable) and keeps at most limit entries. A
// non-positive limit keeps everything.
func Rank(listings []models.Listing, limit int) []models.Listing {
	perDomain := make(map[string]int)
	for _, l := range listings {
		perDomain[l.Domain]++
	}
	out := make([]models.Listing, len(listings))
	copy(out, listings)
	for i := range out {
		if out[i].Domain != "" && perDomain[out[i].Domain] >= 2 {
			out[i].RelevanceScore += multiHitDomainBonus
			out[i].MatchReasons = append(append([]string(nil), out[i].MatchReasons...), SignalMultiHitDomain)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (d *Discoverer) enrich(ctx context.Context, listings []models.Listing, timeout time.Duration) {
	var g errgroup.Group
	g.SetLimit(searchConcurrency)
	for i := range listings {
		g.Go(func() error {
			ectx, cancel := withOptionalTimeout(ctx, timeout)
			defer cancel()
			if err := d.Enricher.Enrich(ectx, &listings[i]); err != nil {
				log.WithField("url", listings[i].URL).WithError(err).Debug("discovery: enrichment skipped")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Discoverer) persist(ctx context.Context, l models.Listing) PersistResult {
	res := PersistResult{URL: l.URL}
	p, created, err := d.Store.Save(ctx, models.NewProduct(l))
	if err != nil {
		res.Err = err
		metrics.ListingsPersistedTotal.WithLabelValues("failed").Inc()
		log.WithField("url", l.URL).WithError(err).Warn("discovery: failed to persist listing")
		return res
	}
	res.ProductID = p.ID
	res.Created = created
	if created {
		metrics.ListingsPersistedTotal.WithLabelValues("created").Inc()
	} else {
		metrics.ListingsPersistedTotal.WithLabelValues("existing").Inc()
	}
	return res
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
