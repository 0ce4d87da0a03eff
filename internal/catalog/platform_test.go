package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/david/product-scout/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzedProduct() models.Product {
	retail := decimal.NewFromInt(40)
	return models.Product{
		Title:       "Smart LED Lamp",
		Description: `Warm light <script>alert(1)</script>for desks`,
		URL:         "https://shop.example/product/lamp",
		Query:       "trending gadgets",
		Metadata:    models.Metadata{Brand: "Lumo", ImageURL: "https://cdn.example/lamp.jpg"},
		Analysis: &models.Analysis{
			Score:          81,
			Recommendation: models.RecommendIndex,
			Category:       "technology",
			PriceEstimate:  &models.PriceEstimate{RetailPrice: retail},
		},
	}
}

func TestNewListing(t *testing.T) {
	l := newListing(analyzedProduct())

	assert.Equal(t, "Lumo", l.Vendor)
	assert.Equal(t, "technology", l.ProductType)
	assert.Equal(t, "40.00", l.priceString())
	assert.Equal(t, 100, l.Inventory)
	assert.NotContains(t, l.BodyHTML, "<script>")
	assert.Contains(t, l.BodyHTML, "Warm light")
	assert.Equal(t, []string{"technology", "trending gadgets"}, l.Tags)
}

func TestNewListing_Defaults(t *testing.T) {
	l := newListing(models.Product{Title: "Thing", URL: "https://shop.example/p/thing"})

	assert.Equal(t, "DropShip Trend", l.Vendor)
	assert.Equal(t, "General", l.ProductType)
	assert.Equal(t, "29.99", l.priceString())
	assert.Empty(t, l.Tags)
}

func TestShopify_Publish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/api/2024-01/products.json", r.URL.Path)
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))

		var body struct {
			Product shopifyProduct `json:"product"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Smart LED Lamp", body.Product.Title)
		assert.Equal(t, "Lumo", body.Product.Vendor)
		require.Len(t, body.Product.Variants, 1)
		assert.Equal(t, "40.00", body.Product.Variants[0].Price)
		assert.Equal(t, 100, body.Product.Variants[0].InventoryQuantity)
		require.Len(t, body.Product.Images, 1)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"product":{"id":7654321}}`))
	}))
	defer srv.Close()

	s := NewShopify("demo", "2024-01", "shpat_test", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(0))
	out, err := s.Publish(context.Background(), analyzedProduct())

	require.NoError(t, err)
	assert.Equal(t, "7654321", out.CatalogID)
}

func TestShopify_UnpublishAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/admin/api/2023-10/products/42.json":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/admin/api/2023-10/shop.json":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":"Invalid API key"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := NewShopify("demo", "", "bad", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(0))
	ctx := context.Background()

	require.NoError(t, s.Unpublish(ctx, "42"))
	assert.ErrorIs(t, s.Unpublish(ctx, ""), ErrMissingCatalogID)

	err := s.Ping(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Contains(t, apiErr.Body, "Invalid API key")
}

func TestWooCommerce_PublishAndUnpublish(t *testing.T) {
	var deleted string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "ck_test", user)
		assert.Equal(t, "cs_test", pass)

		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "/wp-json/wc/v3/products", r.URL.Path)
			var body wooProduct
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Smart LED Lamp", body.Name)
			assert.Equal(t, "40.00", body.RegularPrice)
			assert.Equal(t, 100, body.StockQuantity)
			assert.True(t, body.ManageStock)
			_, _ = w.Write([]byte(`{"id":981}`))
		case http.MethodDelete:
			assert.Equal(t, "true", r.URL.Query().Get("force"))
			deleted = r.URL.Path
			_, _ = w.Write([]byte(`{"id":981}`))
		}
	}))
	defer srv.Close()

	wc := NewWooCommerce(srv.URL, "ck_test", "cs_test", WithHTTPClient(srv.Client()), WithRateLimit(0))
	ctx := context.Background()

	out, err := wc.Publish(ctx, analyzedProduct())
	require.NoError(t, err)
	assert.Equal(t, "981", out.CatalogID)

	require.NoError(t, wc.Unpublish(ctx, out.CatalogID))
	assert.Equal(t, "/wp-json/wc/v3/products/981", deleted)
}

func TestWooCommerce_ServerErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wc := NewWooCommerce(srv.URL, "ck", "cs", WithHTTPClient(srv.Client()), WithRateLimit(0))
	_, err := wc.Publish(context.Background(), analyzedProduct())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestSimulated(t *testing.T) {
	s := NewSimulated()
	ctx := context.Background()

	a, err := s.Publish(ctx, models.Product{URL: "https://shop.example/a"})
	require.NoError(t, err)
	b, err := s.Publish(ctx, models.Product{URL: "https://shop.example/b"})
	require.NoError(t, err)

	assert.Regexp(t, `^CAT-[0-9a-f]{6}-1001$`, a.CatalogID)
	assert.Equal(t, a.CatalogID[:len(a.CatalogID)-4]+"1002", b.CatalogID)
	assert.Equal(t, 2, s.Published())

	require.NoError(t, s.Unpublish(ctx, a.CatalogID))
	assert.Equal(t, 1, s.Published())
	assert.ErrorIs(t, s.Unpublish(ctx, ""), ErrMissingCatalogID)
}

func TestSimulated_FreshInstanceDoesNotReuseIDs(t *testing.T) {
	ctx := context.Background()
	seen := make(map[string]bool)
	for range 5 {
		res, err := NewSimulated().Publish(ctx, models.Product{URL: "https://shop.example/a"})
		require.NoError(t, err)
		assert.False(t, seen[res.CatalogID], "catalog id %s issued twice", res.CatalogID)
		seen[res.CatalogID] = true
	}
}
