package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source records how a listing entered the system.
type Source string

const (
	SourceBraveSearch Source = "brave_search"
	SourceManual      Source = "manual"
	SourceAPI         Source = "api"
	SourceMockData    Source = "mock_data"
	SourceAliExpress  Source = "aliexpress"
)

func (s Source) Valid() bool {
	switch s {
	case SourceBraveSearch, SourceManual, SourceAPI, SourceMockData, SourceAliExpress:
		return true
	}
	return false
}

// CatalogStatus is the state of a product in the downstream catalog.
// Transitions: new -> indexed, indexed -> deindexed. pending is accepted by
// storage but not produced by the sync stage.
type CatalogStatus string

const (
	CatalogNew       CatalogStatus = "new"
	CatalogIndexed   CatalogStatus = "indexed"
	CatalogDeindexed CatalogStatus = "deindexed"
	CatalogPending   CatalogStatus = "pending"
)

func (s CatalogStatus) Valid() bool {
	switch s {
	case CatalogNew, CatalogIndexed, CatalogDeindexed, CatalogPending:
		return true
	}
	return false
}

type Recommendation string

const (
	RecommendIndex   Recommendation = "index"
	RecommendDeindex Recommendation = "deindex"
	RecommendWatch   Recommendation = "watch"
	RecommendSkip    Recommendation = "skip"
	RecommendError   Recommendation = "error"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendIndex, RecommendDeindex, RecommendWatch, RecommendSkip, RecommendError:
		return true
	}
	return false
}

// Listing is a raw search hit before persistence.
type Listing struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	Query          string    `json:"query"`
	Domain         string    `json:"domain"`
	Source         Source    `json:"source"`
	DiscoveredAt   time.Time `json:"discovered_at"`
	RelevanceScore int       `json:"relevance_score"`
	MatchReasons   []string  `json:"match_reasons"`
	Metadata       Metadata  `json:"metadata"`
}

type Metadata struct {
	Price           *decimal.Decimal `json:"price,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	Category        string           `json:"category,omitempty"`
	Brand           string           `json:"brand,omitempty"`
	ImageURL        string           `json:"image_url,omitempty"`
	Supplier        string           `json:"supplier,omitempty"`
	EstimatedMargin *PriceEstimate   `json:"estimated_margin,omitempty"`
}

type PriceEstimate struct {
	WholesalePrice   decimal.Decimal `json:"estimated_wholesale_price"`
	RetailPrice      decimal.Decimal `json:"estimated_retail_price"`
	MarginPercentage int             `json:"margin_percentage"`
	ProfitPerUnit    decimal.Decimal `json:"profit_per_unit"`
}

type FactorScores struct {
	Popularity    int `json:"popularity"`
	Profitability int `json:"profitability"`
	Competition   int `json:"competition"`
	Seasonality   int `json:"seasonality"`
}

// Analysis is written as a whole; a re-analysis replaces it.
type Analysis struct {
	Score              int            `json:"score"`
	Recommendation     Recommendation `json:"recommendation"`
	Category           string         `json:"category"`
	CategoryConfidence float64        `json:"category_confidence"`
	Factors            FactorScores   `json:"factors"`
	Reasons            []string       `json:"reasons"`
	PriceEstimate      *PriceEstimate `json:"price_estimation,omitempty"`
	AnalyzedAt         time.Time      `json:"analyzed_at"`
}

// Product is a persisted candidate, unique by URL.
type Product struct {
	ID             uuid.UUID     `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	URL            string        `json:"url"`
	Query          string        `json:"query"`
	Domain         string        `json:"domain"`
	Source         Source        `json:"source"`
	DiscoveredAt   time.Time     `json:"discovered_at"`
	RelevanceScore int           `json:"relevance_score"`
	MatchReasons   []string      `json:"match_reasons"`
	Metadata       Metadata      `json:"metadata"`
	Analyzed       bool          `json:"analyzed"`
	Analysis       *Analysis     `json:"analysis"`
	CatalogStatus  CatalogStatus `json:"catalog_status"`
	CatalogID      *string       `json:"catalog_id"`
	// IndexedAt is when the product last entered the indexed state.
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewProduct builds an unsaved product from a listing.
func NewProduct(l Listing) Product {
	source := l.Source
	if source == "" {
		source = SourceManual
	}
	discovered := l.DiscoveredAt
	if discovered.IsZero() {
		discovered = time.Now().UTC()
	}
	return Product{
		Title:          l.Title,
		Description:    l.Description,
		URL:            l.URL,
		Query:          l.Query,
		Domain:         l.Domain,
		Source:         source,
		DiscoveredAt:   discovered,
		RelevanceScore: l.RelevanceScore,
		MatchReasons:   l.MatchReasons,
		Metadata:       l.Metadata,
		CatalogStatus:  CatalogNew,
	}
}

// Identity is the string the scoring hash is derived from: id, else URL,
// else title followed by description.
func (p Product) Identity() string {
	if p.ID != uuid.Nil {
		return p.ID.String()
	}
	if p.URL != "" {
		return p.URL
	}
	return p.Title + p.Description
}

// Recommendation returns the latest analysis outcome, or "" when unanalyzed.
func (p Product) Recommendation() Recommendation {
	if p.Analysis == nil {
		return ""
	}
	return p.Analysis.Recommendation
}
