package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/models"
)

// Shopify publishes through the Shopify Admin REST API.
type Shopify struct {
	apiVersion string
	rest       *restClient
}

func NewShopify(storeName, apiVersion, accessToken string, opts ...Option) *Shopify {
	if apiVersion == "" {
		apiVersion = "2023-10"
	}
	base := fmt.Sprintf("https://%s.myshopify.com", strings.TrimSuffix(storeName, ".myshopify.com"))
	authorize := func(req *http.Request) {
		req.Header.Set("X-Shopify-Access-Token", accessToken)
	}
	return &Shopify{
		apiVersion: apiVersion,
		rest:       newRESTClient("shopify", base, 2, authorize, opts...),
	}
}

func (s *Shopify) Name() string { return "shopify" }

type shopifyProduct struct {
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Tags        string           `json:"tags,omitempty"`
	Status      string           `json:"status"`
	Images      []shopifyImage   `json:"images,omitempty"`
	Variants    []shopifyVariant `json:"variants"`
}

type shopifyImage struct {
	Src string `json:"src"`
}

type shopifyVariant struct {
	Price               string `json:"price"`
	InventoryQuantity   int    `json:"inventory_quantity"`
	InventoryManagement string `json:"inventory_management"`
}

func (s *Shopify) path(format string, args ...any) string {
	return "/admin/api/" + s.apiVersion + fmt.Sprintf(format, args...)
}

func (s *Shopify) Publish(ctx context.Context, p models.Product) (PublishResult, error) {
	l := newListing(p)
	product := shopifyProduct{
		Title:       l.Title,
		BodyHTML:    l.BodyHTML,
		Vendor:      l.Vendor,
		ProductType: l.ProductType,
		Tags:        strings.Join(l.Tags, ", "),
		Status:      "active",
		Variants: []shopifyVariant{{
			Price:               l.priceString(),
			InventoryQuantity:   l.Inventory,
			InventoryManagement: "shopify",
		}},
	}
	if l.ImageURL != "" {
		product.Images = []shopifyImage{{Src: l.ImageURL}}
	}

	var out struct {
		Product struct {
			ID int64 `json:"id"`
		} `json:"product"`
	}
	err := s.rest.do(ctx, http.MethodPost, s.path("/products.json"), map[string]any{"product": product}, &out)
	if err != nil {
		return PublishResult{}, err
	}
	if out.Product.ID == 0 {
		return PublishResult{}, fmt.Errorf("shopify response carried no product id")
	}
	id := strconv.FormatInt(out.Product.ID, 10)
	log.WithFields(log.Fields{"product_id": p.ID, "catalog_id": id}).Debug("shopify: product created")
	return PublishResult{CatalogID: id}, nil
}

func (s *Shopify) Unpublish(ctx context.Context, catalogID string) error {
	if catalogID == "" {
		return ErrMissingCatalogID
	}
	return s.rest.do(ctx, http.MethodDelete, s.path("/products/%s.json", url.PathEscape(catalogID)), nil, nil)
}

func (s *Shopify) Ping(ctx context.Context) error {
	return s.rest.do(ctx, http.MethodGet, s.path("/shop.json"), nil, nil)
}
