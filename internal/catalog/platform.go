// Package catalog publishes analyzed products to a downstream commerce
// platform and keeps their catalog state in step.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
)

var (
	// ErrPlatformNotConfigured means no platform is selected or the selected
	// one lacks credentials. Sync is skipped, not failed.
	ErrPlatformNotConfigured = errors.New("catalog platform not configured")
	// ErrMissingCatalogID rejects an unpublish of a product that was never
	// published.
	ErrMissingCatalogID = errors.New("product has no catalog reference id")
)

// PublishResult is returned by a successful publish.
type PublishResult struct {
	CatalogID string `json:"catalog_id"`
}

// Platform is one downstream catalog. Failures are returned as errors so the
// caller can isolate them per product.
type Platform interface {
	Name() string
	Publish(ctx context.Context, p models.Product) (PublishResult, error)
	Unpublish(ctx context.Context, catalogID string) error
	Ping(ctx context.Context) error
}

// Credentials are the platform secrets. They come from the environment,
// never from the settings document.
type Credentials struct {
	ShopifyAccessToken        string
	WooCommerceConsumerKey    string
	WooCommerceConsumerSecret string
}

func CredentialsFromEnv() Credentials {
	return Credentials{
		ShopifyAccessToken:        strings.TrimSpace(os.Getenv("SHOPIFY_ACCESS_TOKEN")),
		WooCommerceConsumerKey:    strings.TrimSpace(os.Getenv("WOOCOMMERCE_CONSUMER_KEY")),
		WooCommerceConsumerSecret: strings.TrimSpace(os.Getenv("WOOCOMMERCE_CONSUMER_SECRET")),
	}
}

// NewPlatform builds the platform selected in cfg.
func NewPlatform(cfg settings.IntegrationSettings, creds Credentials, opts ...Option) (Platform, error) {
	switch cfg.Platform {
	case settings.PlatformSimulated:
		return NewSimulated(), nil
	case settings.PlatformShopify:
		if !cfg.Shopify.Enabled || cfg.Shopify.StoreName == "" || creds.ShopifyAccessToken == "" {
			return nil, fmt.Errorf("%w: shopify needs enabled, store_name and SHOPIFY_ACCESS_TOKEN", ErrPlatformNotConfigured)
		}
		return NewShopify(cfg.Shopify.StoreName, cfg.Shopify.APIVersion, creds.ShopifyAccessToken, opts...), nil
	case settings.PlatformWooCommerce:
		if !cfg.WooCommerce.Enabled || cfg.WooCommerce.SiteURL == "" ||
			creds.WooCommerceConsumerKey == "" || creds.WooCommerceConsumerSecret == "" {
			return nil, fmt.Errorf("%w: woocommerce needs enabled, site_url and consumer credentials", ErrPlatformNotConfigured)
		}
		return NewWooCommerce(cfg.WooCommerce.SiteURL, creds.WooCommerceConsumerKey, creds.WooCommerceConsumerSecret, opts...), nil
	default:
		return nil, ErrPlatformNotConfigured
	}
}
