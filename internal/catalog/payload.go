package catalog

import (
	"strings"

	"github.com/david/product-scout/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

const (
	defaultVendor      = "DropShip Trend"
	defaultProductType = "General"
	defaultInventory   = 100
)

var (
	defaultPrice = decimal.RequireFromString("29.99")
	bodyPolicy   = bluemonday.UGCPolicy()
)

// listing is the platform-neutral shape of a published product.
type listing struct {
	Title       string
	BodyHTML    string
	Vendor      string
	ProductType string
	ImageURL    string
	Price       decimal.Decimal
	Inventory   int
	Tags        []string
}

func newListing(p models.Product) listing {
	l := listing{
		Title:       p.Title,
		BodyHTML:    bodyPolicy.Sanitize("<p>" + p.Description + "</p>"),
		Vendor:      defaultVendor,
		ProductType: defaultProductType,
		ImageURL:    p.Metadata.ImageURL,
		Price:       defaultPrice,
		Inventory:   defaultInventory,
	}
	if b := strings.TrimSpace(p.Metadata.Brand); b != "" {
		l.Vendor = b
	}

	category := strings.TrimSpace(p.Metadata.Category)
	if a := p.Analysis; a != nil {
		if a.Category != "" && a.Category != "unknown" {
			category = a.Category
		}
		if a.PriceEstimate != nil && a.PriceEstimate.RetailPrice.IsPositive() {
			l.Price = a.PriceEstimate.RetailPrice
		}
	}
	if category != "" {
		l.ProductType = category
		l.Tags = append(l.Tags, category)
	}
	if p.Query != "" {
		l.Tags = append(l.Tags, p.Query)
	}
	return l
}

func (l listing) priceString() string {
	return l.Price.StringFixed(2)
}
