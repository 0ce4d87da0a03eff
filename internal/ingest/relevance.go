package ingest

import (
	"regexp"
	"strings"

	"github.com/david/product-scout/internal/models"
)

// Signal tags recorded on accepted listings, in evaluation order.
const (
	SignalProductURL     = "product_url"
	SignalCommerceDomain = "commerce_domain"
	SignalTransactional  = "transactional_keyword"
	SignalPrice          = "price_pattern"
	SignalDropshipping   = "dropshipping"
	SignalTrending       = "trending"
	SignalPopular        = "popular"
	SignalMultiHitDomain = "multi_hit_domain"

	// Topic keyword hits are tagged "topic:<keyword>".
	topicSignalPrefix = "topic:"
)

const DefaultMinRelevance = 30

var productURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/products?/`),
	regexp.MustCompile(`/(item|items|itm)/`),
	regexp.MustCompile(`/p/[a-z0-9][a-z0-9-]*`),
	regexp.MustCompile(`/dp/[a-z0-9]+`),
	regexp.MustCompile(`/listing/\d+`),
	regexp.MustCompile(`[/-]\d{4,}\.html?($|[?#])`),
}

// commerceDomains are matched against the first label of the registrable
// domain, so amazon.fr and amazon.co.uk both count.
var commerceDomains = map[string]bool{
	"aliexpress": true,
	"alibaba":    true,
	"amazon":     true,
	"ebay":       true,
	"etsy":       true,
	"temu":       true,
	"shein":      true,
	"walmart":    true,
	"cdiscount":  true,
	"wish":       true,
	"banggood":   true,
	"dhgate":     true,
	"myshopify":  true,
}

var transactionalKeywords = []string{
	"price", "prix", "buy", "acheter", "shipping", "livraison",
	"cart", "panier", "checkout", "commander", "order now",
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$€£]\s?\d+(?:[.,]\d{1,2})?`),
	regexp.MustCompile(`\d+(?:[.,]\d{1,2})?\s?[$€£]`),
	regexp.MustCompile(`\b\d+(?:[.,]\d{1,2})?\s?(?:usd|eur|gbp)\b`),
	regexp.MustCompile(`\b(?:usd|eur|gbp)\s?\d+(?:[.,]\d{1,2})?`),
}

var topicKeywords = []string{
	"produit", "product", "vente", "sale", "tendance", "trending",
	"populaire", "popular", "dropshipping", "ecommerce", "e-commerce", "fashion",
}

var (
	trendingWords = []string{"trending", "tendance", "viral", "trend"}
	popularWords  = []string{"popular", "populaire", "best-seller", "bestseller", "best selling"}
)

// RelevanceResult is the outcome of evaluating one listing.
type RelevanceResult struct {
	Score    int      `json:"score"`
	Accepted bool     `json:"accepted"`
	Signals  []string `json:"signals"`
}

// RelevanceFilter decides whether a listing looks like an actual product
// page. It holds no state and is safe for concurrent use.
type RelevanceFilter struct{}

func NewRelevanceFilter() *RelevanceFilter {
	return &RelevanceFilter{}
}

// Evaluate sums the signal bonuses of l. The listing is accepted when the
// total reaches threshold.
func (f *RelevanceFilter) Evaluate(l models.Listing, threshold int) RelevanceResult {
	var res RelevanceResult
	hit := func(points int, signal string) {
		res.Score += points
		res.Signals = append(res.Signals, signal)
	}

	rawURL := strings.ToLower(l.URL)
	content := strings.ToLower(l.Title + " " + l.Description)

	if matchesAny(rawURL, productURLPatterns) {
		hit(25, SignalProductURL)
	}

	domain := l.Domain
	if domain == "" {
		domain = ExtractDomain(l.URL)
	}
	if IsCommerceDomain(domain) {
		hit(20, SignalCommerceDomain)
	}

	if containsAny(content, transactionalKeywords) {
		hit(5, SignalTransactional)
	}

	if matchesAny(content, pricePatterns) {
		hit(20, SignalPrice)
	}

	for _, kw := range topicKeywords {
		if strings.Contains(content, kw) {
			hit(10, topicSignalPrefix+kw)
		}
	}

	if strings.Contains(content, "dropshipping") {
		hit(20, SignalDropshipping)
	}
	if containsAny(content, trendingWords) {
		hit(15, SignalTrending)
	}
	if containsAny(content, popularWords) {
		hit(15, SignalPopular)
	}

	res.Accepted = res.Score >= threshold
	return res
}

// IsCommerceDomain reports whether a registrable domain belongs to a known
// marketplace or shop platform.
func IsCommerceDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(domain, "www."))
	if domain == "" {
		return false
	}
	label, _, _ := strings.Cut(domain, ".")
	return commerceDomains[label]
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
