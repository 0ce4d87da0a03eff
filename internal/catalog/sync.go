package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/metrics"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type Action string

const (
	ActionPublish   Action = "publish"
	ActionUnpublish Action = "unpublish"
)

// Store is the part of product storage the syncer needs.
type Store interface {
	FindByRecommendation(ctx context.Context, rec models.Recommendation, statuses ...models.CatalogStatus) ([]models.Product, error)
	UpdateCatalogStatus(ctx context.Context, id uuid.UUID, status models.CatalogStatus, catalogID *string) error
}

// publishable are the states a product with an index recommendation may
// leave for indexed.
var publishable = []models.CatalogStatus{models.CatalogNew, models.CatalogPending, models.CatalogDeindexed}

// Result is the outcome for one product. On error the product's catalog
// state was left unchanged.
type Result struct {
	ProductID uuid.UUID `json:"product_id"`
	URL       string    `json:"url"`
	Action    Action    `json:"action"`
	CatalogID string    `json:"catalog_id,omitempty"`
	Err       error     `json:"-"`
}

type SyncReport struct {
	Platform  string `json:"platform"`
	Skipped   bool   `json:"skipped"`
	Indexed   int    `json:"indexed"`
	Deindexed int    `json:"deindexed"`
	Failed    int    `json:"failed"`
	// Deferred counts deindex candidates still inside their minimum
	// performance window.
	Deferred int      `json:"deferred"`
	Results  []Result `json:"-"`
}

// Syncer moves products through new -> indexed -> deindexed according to
// their latest recommendation.
type Syncer struct {
	Store    Store
	Platform Platform
	Now      func() time.Time
}

func NewSyncer(store Store, platform Platform) *Syncer {
	return &Syncer{Store: store, Platform: platform, Now: time.Now}
}

// Sync publishes products recommended for indexing and, when enabled,
// unpublishes indexed products recommended for removal. A nil Platform skips
// the stage. Only a failure to load candidates is returned as an error.
func (s *Syncer) Sync(ctx context.Context, cfg settings.Settings) (SyncReport, error) {
	if s.Platform == nil {
		log.Info("catalog: no platform configured, sync skipped")
		return SyncReport{Skipped: true}, nil
	}
	report := SyncReport{Platform: s.Platform.Name()}

	var toPublish, toUnpublish []models.Product
	if cfg.Catalog.AutoIndex {
		products, err := s.Store.FindByRecommendation(ctx, models.RecommendIndex, publishable...)
		if err != nil {
			return report, fmt.Errorf("failed to load products to index: %w", err)
		}
		toPublish = products
	}
	if cfg.Catalog.AutoDeindex {
		products, err := s.Store.FindByRecommendation(ctx, models.RecommendDeindex, models.CatalogIndexed)
		if err != nil {
			return report, fmt.Errorf("failed to load products to deindex: %w", err)
		}
		toUnpublish, report.Deferred = s.pastPerformanceWindow(products, cfg.Catalog.MinPerformanceDays)
	}

	results := make([]Result, len(toPublish)+len(toUnpublish))
	var g errgroup.Group
	g.SetLimit(max(cfg.Catalog.Concurrency, 1))
	for i, p := range toPublish {
		g.Go(func() error {
			results[i] = s.publish(ctx, p, cfg.Timeouts.Catalog)
			return nil
		})
	}
	for i, p := range toUnpublish {
		g.Go(func() error {
			results[len(toPublish)+i] = s.unpublish(ctx, p, cfg.Timeouts.Catalog)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	for _, r := range results {
		switch {
		case r.Err != nil:
			report.Failed++
		case r.Action == ActionPublish:
			report.Indexed++
		default:
			report.Deindexed++
		}
	}
	log.WithFields(log.Fields{
		"platform":  report.Platform,
		"indexed":   report.Indexed,
		"deindexed": report.Deindexed,
		"failed":    report.Failed,
		"deferred":  report.Deferred,
	}).Info("catalog: sync complete")
	return report, nil
}

// pastPerformanceWindow keeps the products indexed at least minDays ago and
// counts the rest. A product with no recorded index time is kept.
func (s *Syncer) pastPerformanceWindow(products []models.Product, minDays int) ([]models.Product, int) {
	if minDays <= 0 {
		return products, 0
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().AddDate(0, 0, -minDays)
	kept := products[:0:0]
	deferred := 0
	for _, p := range products {
		if p.IndexedAt != nil && p.IndexedAt.After(cutoff) {
			deferred++
			log.WithFields(log.Fields{"product_id": p.ID, "indexed_at": p.IndexedAt}).Debug("catalog: deindex deferred")
			continue
		}
		kept = append(kept, p)
	}
	return kept, deferred
}

func (s *Syncer) publish(ctx context.Context, p models.Product, timeout time.Duration) Result {
	res := Result{ProductID: p.ID, URL: p.URL, Action: ActionPublish}
	fields := log.Fields{"product_id": p.ID, "url": p.URL, "platform": s.Platform.Name()}

	if p.CatalogStatus == models.CatalogIndexed {
		res.Err = fmt.Errorf("product %s is already indexed", p.ID)
		return res
	}

	callCtx, cancel := callContext(ctx, timeout)
	out, err := s.Platform.Publish(callCtx, p)
	cancel()
	if err == nil && out.CatalogID == "" {
		err = errors.New("platform returned an empty catalog id")
	}
	if err != nil {
		res.Err = err
		metrics.CatalogOperationsTotal.WithLabelValues(string(ActionPublish), "failed").Inc()
		log.WithFields(fields).WithError(err).Warn("catalog: publish failed")
		return res
	}
	metrics.CatalogOperationsTotal.WithLabelValues(string(ActionPublish), "ok").Inc()

	res.CatalogID = out.CatalogID
	if err := s.Store.UpdateCatalogStatus(ctx, p.ID, models.CatalogIndexed, &out.CatalogID); err != nil {
		res.Err = fmt.Errorf("published as %s but failed to record it: %w", out.CatalogID, err)
		log.WithFields(fields).WithField("catalog_id", out.CatalogID).WithError(err).Error("catalog: failed to record publish")
	}
	return res
}

func (s *Syncer) unpublish(ctx context.Context, p models.Product, timeout time.Duration) Result {
	res := Result{ProductID: p.ID, URL: p.URL, Action: ActionUnpublish}
	fields := log.Fields{"product_id": p.ID, "url": p.URL, "platform": s.Platform.Name()}

	if p.CatalogID == nil || *p.CatalogID == "" {
		res.Err = ErrMissingCatalogID
		metrics.CatalogOperationsTotal.WithLabelValues(string(ActionUnpublish), "rejected").Inc()
		log.WithFields(fields).WithError(res.Err).Warn("catalog: deindex rejected")
		return res
	}
	res.CatalogID = *p.CatalogID

	callCtx, cancel := callContext(ctx, timeout)
	err := s.Platform.Unpublish(callCtx, *p.CatalogID)
	cancel()
	if err != nil {
		res.Err = err
		metrics.CatalogOperationsTotal.WithLabelValues(string(ActionUnpublish), "failed").Inc()
		log.WithFields(fields).WithError(err).Warn("catalog: unpublish failed")
		return res
	}
	metrics.CatalogOperationsTotal.WithLabelValues(string(ActionUnpublish), "ok").Inc()

	// The reference id is kept for audit.
	if err := s.Store.UpdateCatalogStatus(ctx, p.ID, models.CatalogDeindexed, nil); err != nil {
		res.Err = fmt.Errorf("unpublished but failed to record it: %w", err)
		log.WithFields(fields).WithError(err).Error("catalog: failed to record unpublish")
	}
	return res
}

func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
