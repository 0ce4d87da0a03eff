// Package settings holds the run-time configuration document shared by every
// pipeline stage, with documented defaults and load-time coercion.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid settings")

var DefaultQueries = []string{
	"produits tendance dropshipping",
	"best selling products online",
	"trending products ecommerce",
	"viral products social media",
}

type Settings struct {
	Crawler      CrawlerSettings     `yaml:"crawler" json:"crawler"`
	Analyzer     AnalyzerSettings    `yaml:"analyzer" json:"analyzer"`
	Catalog      CatalogSettings     `yaml:"catalog" json:"catalog"`
	Integrations IntegrationSettings `yaml:"integrations" json:"integrations"`
	Timeouts     Timeouts            `yaml:"timeouts" json:"timeouts"`
}

type CrawlerSettings struct {
	Queries      []string `yaml:"queries" json:"queries"`
	MaxResults   int      `yaml:"max_results" json:"max_results"`
	MinRelevance int      `yaml:"min_relevance" json:"min_relevance"`
	EnrichPages  bool     `yaml:"enrich_pages" json:"enrich_pages"`
}

type Weights struct {
	Popularity    float64 `yaml:"popularity" json:"popularity"`
	Profitability float64 `yaml:"profitability" json:"profitability"`
	Competition   float64 `yaml:"competition" json:"competition"`
	Seasonality   float64 `yaml:"seasonality" json:"seasonality"`
}

func (w Weights) Sum() float64 {
	return w.Popularity + w.Profitability + w.Competition + w.Seasonality
}

type Thresholds struct {
	MinScoreToIndex int `yaml:"min_score_to_index" json:"min_score_to_index"`
	MinScoreToWatch int `yaml:"min_score_to_watch" json:"min_score_to_watch"`
}

type AnalyzerSettings struct {
	Thresholds  `yaml:",inline"`
	Factors     Weights `yaml:"factors" json:"factors"`
	Concurrency int     `yaml:"concurrency" json:"concurrency"`
}

type CatalogSettings struct {
	AutoIndex          bool `yaml:"auto_index" json:"auto_index"`
	AutoDeindex        bool `yaml:"auto_deindex" json:"auto_deindex"`
	MinPerformanceDays int  `yaml:"min_performance_days" json:"min_performance_days"`
	Concurrency        int  `yaml:"concurrency" json:"concurrency"`
}

type Platform string

const (
	PlatformNone        Platform = "none"
	PlatformSimulated   Platform = "simulated"
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
)

type ShopifySettings struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	StoreName  string `yaml:"store_name" json:"store_name"`
	APIVersion string `yaml:"api_version" json:"api_version"`
}

type WooCommerceSettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	SiteURL string `yaml:"site_url" json:"site_url"`
}

// AliExpressSettings gates the supplier search. Credentials come from the
// environment.
type AliExpressSettings struct {
	Enabled            bool `yaml:"enabled" json:"enabled"`
	IncludeInDiscovery bool `yaml:"include_in_discovery" json:"include_in_discovery"`
}

type IntegrationSettings struct {
	Platform    Platform            `yaml:"platform" json:"platform"`
	Shopify     ShopifySettings     `yaml:"shopify" json:"shopify"`
	WooCommerce WooCommerceSettings `yaml:"woocommerce" json:"woocommerce"`
	AliExpress  AliExpressSettings  `yaml:"aliexpress" json:"aliexpress"`
}

// SupplierDiscovery reports whether discovery also searches the supplier.
func (i IntegrationSettings) SupplierDiscovery() bool {
	return i.AliExpress.Enabled && i.AliExpress.IncludeInDiscovery
}

type Timeouts struct {
	Search  time.Duration `yaml:"search" json:"search"`
	Catalog time.Duration `yaml:"catalog" json:"catalog"`
}

// Default returns the documented defaults. Every stage works with these alone.
func Default() Settings {
	return Settings{
		Crawler: CrawlerSettings{
			Queries:      append([]string(nil), DefaultQueries...),
			MaxResults:   20,
			MinRelevance: 30,
		},
		Analyzer: AnalyzerSettings{
			Thresholds:  Thresholds{MinScoreToIndex: 70, MinScoreToWatch: 40},
			Factors:     DefaultWeights(),
			Concurrency: 10,
		},
		Catalog: CatalogSettings{
			AutoIndex:          true,
			AutoDeindex:        false,
			MinPerformanceDays: 7,
			Concurrency:        5,
		},
		Integrations: IntegrationSettings{
			Platform: PlatformSimulated,
			Shopify:  ShopifySettings{APIVersion: "2023-10"},
		},
		Timeouts: Timeouts{
			Search:  15 * time.Second,
			Catalog: 15 * time.Second,
		},
	}
}

func DefaultWeights() Weights {
	return Weights{Popularity: 0.4, Profitability: 0.3, Competition: 0.2, Seasonality: 0.1}
}

// Normalize coerces out-of-range values back to usable ones. It never fails.
func (s *Settings) Normalize() {
	def := Default()

	queries := make([]string, 0, len(s.Crawler.Queries))
	seen := make(map[string]bool)
	for _, q := range s.Crawler.Queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		queries = def.Crawler.Queries
	}
	s.Crawler.Queries = queries
	if s.Crawler.MaxResults <= 0 {
		s.Crawler.MaxResults = def.Crawler.MaxResults
	}
	if s.Crawler.MinRelevance < 0 {
		s.Crawler.MinRelevance = def.Crawler.MinRelevance
	}

	w := s.Analyzer.Factors
	if w.Popularity < 0 || w.Profitability < 0 || w.Competition < 0 || w.Seasonality < 0 ||
		w.Sum() <= 0 || math.IsNaN(w.Sum()) || math.IsInf(w.Sum(), 0) {
		w = DefaultWeights()
	}
	s.Analyzer.Factors = w

	t := &s.Analyzer.Thresholds
	t.MinScoreToIndex = clampInt(t.MinScoreToIndex, 0, 100)
	t.MinScoreToWatch = clampInt(t.MinScoreToWatch, 0, 100)
	if t.MinScoreToWatch > t.MinScoreToIndex {
		t.MinScoreToWatch, t.MinScoreToIndex = t.MinScoreToIndex, t.MinScoreToWatch
	}
	if s.Analyzer.Concurrency <= 0 {
		s.Analyzer.Concurrency = def.Analyzer.Concurrency
	}

	if s.Catalog.MinPerformanceDays < 0 {
		s.Catalog.MinPerformanceDays = def.Catalog.MinPerformanceDays
	}
	if s.Catalog.Concurrency <= 0 {
		s.Catalog.Concurrency = def.Catalog.Concurrency
	}

	switch s.Integrations.Platform {
	case PlatformNone, PlatformSimulated, PlatformShopify, PlatformWooCommerce:
	case "":
		s.Integrations.Platform = def.Integrations.Platform
	default:
		s.Integrations.Platform = PlatformNone
	}
	if s.Integrations.Shopify.APIVersion == "" {
		s.Integrations.Shopify.APIVersion = def.Integrations.Shopify.APIVersion
	}

	if s.Timeouts.Search <= 0 {
		s.Timeouts.Search = def.Timeouts.Search
	}
	if s.Timeouts.Catalog <= 0 {
		s.Timeouts.Catalog = def.Timeouts.Catalog
	}
}

// Validate is the strict counterpart of Normalize, used when an operator
// submits settings through the API.
func (s Settings) Validate() error {
	var problems []string
	if s.Crawler.MaxResults <= 0 {
		problems = append(problems, "crawler.max_results must be positive")
	}
	if s.Crawler.MinRelevance < 0 {
		problems = append(problems, "crawler.min_relevance must not be negative")
	}
	w := s.Analyzer.Factors
	if w.Popularity < 0 || w.Profitability < 0 || w.Competition < 0 || w.Seasonality < 0 {
		problems = append(problems, "analyzer.factors must not be negative")
	} else if w.Sum() <= 0 {
		problems = append(problems, "analyzer.factors must not all be zero")
	}
	t := s.Analyzer.Thresholds
	if t.MinScoreToIndex < 0 || t.MinScoreToIndex > 100 || t.MinScoreToWatch < 0 || t.MinScoreToWatch > 100 {
		problems = append(problems, "analyzer thresholds must be within 0..100")
	}
	if t.MinScoreToWatch > t.MinScoreToIndex {
		problems = append(problems, "analyzer.min_score_to_watch must not exceed min_score_to_index")
	}
	switch s.Integrations.Platform {
	case PlatformNone, PlatformSimulated, PlatformShopify, PlatformWooCommerce:
	default:
		problems = append(problems, fmt.Sprintf("integrations.platform %q is not supported", s.Integrations.Platform))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// FileStore reads and writes the settings document as YAML.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = filepath.Join("config", "settings.yaml")
	}
	return &FileStore{Path: path}
}

// Load returns the settings at Path merged over the defaults. A missing or
// corrupt file yields the defaults and a logged warning, never an error.
func (f *FileStore) Load(ctx context.Context) Settings {
	s := Default()
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("path", f.Path).Warn("settings: cannot read file, using defaults")
		}
		return s
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		log.WithError(err).WithField("path", f.Path).Warn("settings: corrupt file, using defaults")
		return Default()
	}
	s.Normalize()
	return s
}

// Save validates and atomically replaces the settings file.
func (f *FileStore) Save(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create settings dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp settings file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
