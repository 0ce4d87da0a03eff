package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/models"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

const (
	DefaultAliExpressEndpoint = "https://api.dropshipper.io/aliexpress"
	aliExpressSupplier        = "AliExpress"
	aliExpressSimulatedCount  = 5
)

var ErrEmptyProductID = errors.New("aliexpress: empty product id")

var (
	aliExpressCategories = []string{"Electronics", "Fashion", "Home", "Beauty", "Toys", "Sports"}
	aliExpressBrands     = []string{"Generic", "AliTrend", "TopSeller", "BestValue", "PrimeChoice"}
	defaultSupplierCost  = decimal.NewFromInt(10)
	supplierMarkup       = decimal.NewFromFloat(2.5)
)

// AliExpressSearcher queries a dropshipping supplier API for AliExpress
// products. Without an API key it answers with generated products that
// depend only on the keyword.
type AliExpressSearcher struct {
	Endpoint   string
	APIKey     string
	TrackingID string
	http       *retryingClient
	now        func() time.Time
}

type AliExpressOption func(*AliExpressSearcher)

func WithAliExpressEndpoint(endpoint string) AliExpressOption {
	return func(a *AliExpressSearcher) { a.Endpoint = strings.TrimRight(endpoint, "/") }
}

// WithAliExpressHTTPClient replaces the outbound client, mainly for tests.
func WithAliExpressHTTPClient(c *http.Client) AliExpressOption {
	return func(a *AliExpressSearcher) { a.http.client = c }
}

func WithAliExpressClock(now func() time.Time) AliExpressOption {
	return func(a *AliExpressSearcher) { a.now = now }
}

func NewAliExpressSearcher(apiKey, trackingID string, opts ...AliExpressOption) *AliExpressSearcher {
	a := &AliExpressSearcher{
		Endpoint:   DefaultAliExpressEndpoint,
		APIKey:     apiKey,
		TrackingID: trackingID,
		http: &retryingClient{
			client:     NewSafeClient(30 * time.Second),
			limiter:    rate.NewLimiter(rate.Limit(2), 1),
			maxRetries: 2,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.Simulated() {
		log.Warn("aliexpress: ALIEXPRESS_API_KEY not set, running in simulation mode")
	}
	return a
}

func (a *AliExpressSearcher) Name() string { return string(models.SourceAliExpress) }

// Simulated reports whether results are generated locally.
func (a *AliExpressSearcher) Simulated() bool { return a.APIKey == "" }

type aliExpressProduct struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Description  string           `json:"description"`
	ProductURL   string           `json:"productUrl"`
	Price        *decimal.Decimal `json:"price"`
	CategoryName string           `json:"categoryName"`
	Brand        string           `json:"brand"`
	ImageURL     string           `json:"imageUrl"`
}

type aliExpressSearchResponse struct {
	Products []aliExpressProduct `json:"products"`
}

func (a *AliExpressSearcher) Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query = normalizeSpace(query)
	if a.Simulated() {
		n := aliExpressSimulatedCount
		if maxResults > 0 && maxResults < n {
			n = maxResults
		}
		return a.simulate(query, n), nil
	}

	params := url.Values{}
	params.Set("keyword", query)
	params.Set("sort", "bestMatch")
	var body aliExpressSearchResponse
	if err := a.get(ctx, "/search", params, &body); err != nil {
		return nil, fmt.Errorf("aliexpress search %q: %w", query, err)
	}

	now := a.now().UTC()
	listings := make([]models.Listing, 0, len(body.Products))
	for _, p := range body.Products {
		if p.ProductURL == "" {
			continue
		}
		listings = append(listings, p.listing(query, now))
		if maxResults > 0 && len(listings) == maxResults {
			break
		}
	}
	log.WithFields(log.Fields{"query": query, "results": len(listings)}).Debug("aliexpress: search complete")
	return listings, nil
}

// ProductDetails looks up one supplier product by its AliExpress id.
func (a *AliExpressSearcher) ProductDetails(ctx context.Context, id string) (models.Listing, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Listing{}, ErrEmptyProductID
	}
	if a.Simulated() {
		p := simulatedProduct("", id, 0)
		p.ID = id
		p.ProductURL = fmt.Sprintf("https://www.aliexpress.com/item/%s.html", url.PathEscape(id))
		return p.listing("", a.now().UTC()), nil
	}

	var p aliExpressProduct
	if err := a.get(ctx, "/product/"+url.PathEscape(id), url.Values{}, &p); err != nil {
		return models.Listing{}, fmt.Errorf("aliexpress product %s: %w", id, err)
	}
	if p.ProductURL == "" {
		return models.Listing{}, fmt.Errorf("aliexpress product %s: response has no product url", id)
	}
	return p.listing("", a.now().UTC()), nil
}

func (a *AliExpressSearcher) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("apiKey", a.APIKey)
	if a.TrackingID != "" {
		params.Set("trackingId", a.TrackingID)
	}
	resp, err := a.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.Endpoint+path+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return fmt.Errorf("%w (status %d)", ErrUnauthorized, se.Code)
		}
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (p aliExpressProduct) listing(query string, now time.Time) models.Listing {
	return models.Listing{
		Title:        p.Title,
		Description:  p.Description,
		URL:          p.ProductURL,
		Query:        query,
		Source:       models.SourceAliExpress,
		DiscoveredAt: now,
		Metadata: models.Metadata{
			Price:           p.Price,
			Category:        p.CategoryName,
			Brand:           p.Brand,
			ImageURL:        p.ImageURL,
			Supplier:        aliExpressSupplier,
			EstimatedMargin: supplierMargin(p.Price),
		},
	}
}

// supplierMargin prices the product at 2.5x the supplier cost, which is a
// 60% margin. A missing or zero cost is taken as 10.
func supplierMargin(cost *decimal.Decimal) *models.PriceEstimate {
	wholesale := defaultSupplierCost
	if cost != nil && cost.IsPositive() {
		wholesale = *cost
	}
	retail := wholesale.Mul(supplierMarkup).Round(2)
	return &models.PriceEstimate{
		WholesalePrice:   wholesale,
		RetailPrice:      retail,
		MarginPercentage: 60,
		ProfitPerUnit:    retail.Sub(wholesale),
	}
}

func (a *AliExpressSearcher) simulate(query string, n int) []models.Listing {
	now := a.now().UTC()
	out := make([]models.Listing, 0, n)
	for i := range n {
		p := simulatedProduct(query, query, i)
		out = append(out, p.listing(query, now))
	}
	log.WithFields(log.Fields{"query": query, "results": len(out)}).Debug("aliexpress: simulated search")
	return out
}

// simulatedProduct derives product i from seed. keyword only shapes the title.
func simulatedProduct(keyword, seed string, i int) aliExpressProduct {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s#%d", seed, i)
	v := h.Sum32()

	category := aliExpressCategories[v%uint32(len(aliExpressCategories))]
	brand := aliExpressBrands[(v>>8)%uint32(len(aliExpressBrands))]
	price := decimal.NewFromInt(int64(5 + (v>>16)%95))

	title := fmt.Sprintf("Trending %s Product %d", category, i+1)
	if keyword != "" {
		title = fmt.Sprintf("%s %s Item %d", keyword, category, i+1)
	}
	id := fmt.Sprintf("100600%010d", v)
	return aliExpressProduct{
		ID:           id,
		Title:        title,
		Description:  fmt.Sprintf("Great quality %s product for dropshipping. High demand in 2025.", strings.ToLower(category)),
		ProductURL:   fmt.Sprintf("https://www.aliexpress.com/item/%s.html", id),
		Price:        &price,
		CategoryName: category,
		Brand:        brand,
		ImageURL:     fmt.Sprintf("https://placeholder.pics/svg/300x300/%06X/FFFFFF/Product", v&0xFFFFFF),
	}
}
