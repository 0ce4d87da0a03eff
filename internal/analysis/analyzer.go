package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/knowledge"
	"github.com/david/product-scout/internal/metrics"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Store is the part of product storage the analyzer needs.
type Store interface {
	FindUnanalyzed(ctx context.Context) ([]models.Product, error)
	UpdateAnalysis(ctx context.Context, id uuid.UUID, a models.Analysis) error
}

// Result is the per-product outcome of a batch. Err is set when scoring
// failed (an error recommendation was produced) or when the analysis could
// not be stored.
type Result struct {
	ProductID uuid.UUID       `json:"product_id"`
	URL       string          `json:"url"`
	Analysis  models.Analysis `json:"analysis"`
	Stored    bool            `json:"stored"`
	Err       error           `json:"-"`
}

// Report aggregates a batch. Counts are built from the batch's own results.
type Report struct {
	Total            int                           `json:"total"`
	Analyzed         int                           `json:"analyzed"`
	Failed           int                           `json:"failed"`
	ByRecommendation map[models.Recommendation]int `json:"by_recommendation"`
	Results          []Result                      `json:"-"`
}

type Analyzer struct {
	Store      Store
	KB         *knowledge.Base
	Classifier *Classifier
	Scorer     *Scorer
	Now        func() time.Time
}

func NewAnalyzer(store Store, kb *knowledge.Base, now func() time.Time) *Analyzer {
	if kb == nil {
		kb = knowledge.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Analyzer{
		Store:      store,
		KB:         kb,
		Classifier: NewClassifier(kb),
		Scorer:     NewScorer(kb, now),
		Now:        now,
	}
}

// AnalyzeProduct scores one product. It always returns a complete analysis;
// when scoring fails the analysis carries the error recommendation and the
// cause is also returned.
func (a *Analyzer) AnalyzeProduct(p models.Product, cfg settings.AnalyzerSettings) (analysis models.Analysis, err error) {
	at := a.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panicked: %v", r)
			analysis = failedAnalysis(err, at)
		}
	}()

	if p.URL == "" && p.Title == "" && p.Description == "" && p.ID == uuid.Nil {
		err = errors.New("product has no identity (id, url, title and description are empty)")
		return failedAnalysis(err, at), err
	}

	info := a.Classifier.Classify(p.Title + " " + p.Description)
	factors, score := a.Scorer.Score(p, info, cfg.Factors)
	rec := Recommend(score, cfg.Thresholds)
	estimate := EstimatePrice(p, info, a.KB)

	return models.Analysis{
		Score:              score,
		Recommendation:     rec,
		Category:           info.Category,
		CategoryConfidence: info.Confidence,
		Factors:            factors,
		Reasons:            Justify(info, factors, rec),
		PriceEstimate:      &estimate,
		AnalyzedAt:         at,
	}, nil
}

// AnalyzePending analyzes every product not analyzed yet.
func (a *Analyzer) AnalyzePending(ctx context.Context, cfg settings.AnalyzerSettings) (Report, error) {
	products, err := a.Store.FindUnanalyzed(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load unanalyzed products: %w", err)
	}
	return a.AnalyzeProducts(ctx, products, cfg), nil
}

// AnalyzeProducts scores and stores each product independently. Work is
// fanned out up to cfg.Concurrency; a failure only affects its own product.
func (a *Analyzer) AnalyzeProducts(ctx context.Context, products []models.Product, cfg settings.AnalyzerSettings) Report {
	log.WithField("count", len(products)).Info("analysis: starting batch")

	results := make([]Result, len(products))
	var g errgroup.Group
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}
	for i := range products {
		p := products[i]
		g.Go(func() error {
			results[i] = a.analyzeAndStore(ctx, p, cfg)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Total:            len(products),
		ByRecommendation: make(map[models.Recommendation]int),
		Results:          results,
	}
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
		} else {
			report.Analyzed++
		}
		if r.Stored {
			report.ByRecommendation[r.Analysis.Recommendation]++
		}
	}
	log.WithFields(log.Fields{
		"total":    report.Total,
		"analyzed": report.Analyzed,
		"failed":   report.Failed,
	}).Info("analysis: batch complete")
	return report
}

func (a *Analyzer) analyzeAndStore(ctx context.Context, p models.Product, cfg settings.AnalyzerSettings) Result {
	res := Result{ProductID: p.ID, URL: p.URL}
	fields := log.Fields{"product_id": p.ID, "url": p.URL}

	analysis, err := a.AnalyzeProduct(p, cfg)
	res.Analysis = analysis
	if err != nil {
		res.Err = err
		log.WithFields(fields).WithError(err).Warn("analysis: scoring failed")
	}
	metrics.AnalysesTotal.WithLabelValues(string(analysis.Recommendation)).Inc()

	if p.ID == uuid.Nil {
		return res
	}
	if storeErr := a.Store.UpdateAnalysis(ctx, p.ID, analysis); storeErr != nil {
		log.WithFields(fields).WithError(storeErr).Error("analysis: failed to store result")
		if res.Err == nil {
			res.Err = fmt.Errorf("store analysis: %w", storeErr)
		}
		return res
	}
	res.Stored = true
	return res
}
