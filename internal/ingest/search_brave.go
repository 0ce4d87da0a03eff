package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/models"
	"golang.org/x/time/rate"
)

const DefaultBraveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// ErrUnauthorized is returned when the search API rejects the credentials.
var ErrUnauthorized = errors.New("search API rejected credentials")

// BraveSearcher queries the Brave web search API.
type BraveSearcher struct {
	Endpoint string
	APIKey   string
	http     *retryingClient
	now      func() time.Time
}

type BraveOption func(*BraveSearcher)

// WithHTTPClient replaces the outbound client, mainly for tests.
func WithHTTPClient(c *http.Client) BraveOption {
	return func(b *BraveSearcher) { b.http.client = c }
}

func WithEndpoint(endpoint string) BraveOption {
	return func(b *BraveSearcher) { b.Endpoint = endpoint }
}

// WithRateLimit sets the sustained request rate; burst is one request.
func WithRateLimit(rps float64) BraveOption {
	return func(b *BraveSearcher) {
		if rps <= 0 {
			b.http.limiter = nil
			return
		}
		b.http.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithClock(now func() time.Time) BraveOption {
	return func(b *BraveSearcher) { b.now = now }
}

func NewBraveSearcher(apiKey string, opts ...BraveOption) *BraveSearcher {
	b := &BraveSearcher{
		Endpoint: DefaultBraveEndpoint,
		APIKey:   apiKey,
		http: &retryingClient{
			client:     NewSafeClient(30 * time.Second),
			limiter:    rate.NewLimiter(rate.Limit(1), 1),
			maxRetries: 2,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BraveSearcher) Name() string { return string(models.SourceBraveSearch) }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			URL         string `json:"url"`
		} `json:"results"`
	} `json:"web"`
}

func (b *BraveSearcher) Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error) {
	if maxResults <= 0 {
		maxResults = 20
	}
	// The API caps count at 20.
	count := maxResults
	if count > 20 {
		count = 20
	}

	resp, err := b.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		u, err := url.Parse(b.Endpoint)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("q", query)
		q.Set("count", strconv.Itoa(count))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("X-Subscription-Token", b.APIKey)
		return req, nil
	})
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
			return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, se.Code)
		}
		return nil, fmt.Errorf("brave search %q: %w", query, err)
	}
	defer resp.Body.Close()

	var body braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode brave response: %w", err)
	}

	now := b.now().UTC()
	listings := make([]models.Listing, 0, len(body.Web.Results))
	for _, r := range body.Web.Results {
		if r.URL == "" {
			continue
		}
		listings = append(listings, models.Listing{
			Title:        r.Title,
			Description:  r.Description,
			URL:          r.URL,
			Query:        query,
			Source:       models.SourceBraveSearch,
			DiscoveredAt: now,
		})
		if len(listings) == maxResults {
			break
		}
	}
	log.WithFields(log.Fields{"query": query, "results": len(listings)}).Debug("brave: search complete")
	return listings, nil
}
