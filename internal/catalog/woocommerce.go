package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/david/product-scout/internal/models"
)

const wooProductsPath = "/wp-json/wc/v3/products"

// WooCommerce publishes through the WooCommerce REST API (v3) using consumer
// key basic auth.
type WooCommerce struct {
	rest *restClient
}

func NewWooCommerce(siteURL, consumerKey, consumerSecret string, opts ...Option) *WooCommerce {
	authorize := func(req *http.Request) {
		req.SetBasicAuth(consumerKey, consumerSecret)
	}
	return &WooCommerce{rest: newRESTClient("woocommerce", siteURL, 5, authorize, opts...)}
}

func (w *WooCommerce) Name() string { return "woocommerce" }

type wooProduct struct {
	Name          string        `json:"name"`
	Type          string        `json:"type"`
	Status        string        `json:"status"`
	RegularPrice  string        `json:"regular_price"`
	Description   string        `json:"description"`
	ManageStock   bool          `json:"manage_stock"`
	StockQuantity int           `json:"stock_quantity"`
	Images        []wooImage    `json:"images,omitempty"`
	Tags          []wooTermName `json:"tags,omitempty"`
	Attributes    []wooAttr     `json:"attributes,omitempty"`
}

type wooImage struct {
	Src string `json:"src"`
}

type wooTermName struct {
	Name string `json:"name"`
}

type wooAttr struct {
	Name    string   `json:"name"`
	Options []string `json:"options"`
	Visible bool     `json:"visible"`
}

func (w *WooCommerce) Publish(ctx context.Context, p models.Product) (PublishResult, error) {
	l := newListing(p)
	product := wooProduct{
		Name:          l.Title,
		Type:          "simple",
		Status:        "publish",
		RegularPrice:  l.priceString(),
		Description:   l.BodyHTML,
		ManageStock:   true,
		StockQuantity: l.Inventory,
		Attributes: []wooAttr{
			{Name: "Brand", Options: []string{l.Vendor}, Visible: true},
			{Name: "Type", Options: []string{l.ProductType}, Visible: true},
		},
	}
	if l.ImageURL != "" {
		product.Images = []wooImage{{Src: l.ImageURL}}
	}
	for _, tag := range l.Tags {
		product.Tags = append(product.Tags, wooTermName{Name: tag})
	}

	var out struct {
		ID int64 `json:"id"`
	}
	if err := w.rest.do(ctx, http.MethodPost, wooProductsPath, product, &out); err != nil {
		return PublishResult{}, err
	}
	if out.ID == 0 {
		return PublishResult{}, fmt.Errorf("woocommerce response carried no product id")
	}
	return PublishResult{CatalogID: strconv.FormatInt(out.ID, 10)}, nil
}

// Unpublish deletes the product permanently rather than moving it to trash.
func (w *WooCommerce) Unpublish(ctx context.Context, catalogID string) error {
	if catalogID == "" {
		return ErrMissingCatalogID
	}
	return w.rest.do(ctx, http.MethodDelete, wooProductsPath+"/"+url.PathEscape(catalogID)+"?force=true", nil, nil)
}

func (w *WooCommerce) Ping(ctx context.Context) error {
	return w.rest.do(ctx, http.MethodGet, wooProductsPath+"?per_page=1", nil, nil)
}
