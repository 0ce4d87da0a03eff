package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/david/product-scout/internal/catalog"
	"github.com/david/product-scout/internal/settings"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Settings.Load(c.Request().Context()))
}

func (s *Server) handleGetCrawlerSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Settings.Load(c.Request().Context()).Crawler)
}

func (s *Server) saveSettings(c echo.Context, next settings.Settings) error {
	if err := s.Settings.Save(c.Request().Context(), next); err != nil {
		if errors.Is(err, settings.ErrInvalid) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return nil
}

// handlePutSettings replaces the whole document. Fields left out of the body
// keep their current values.
func (s *Server) handlePutSettings(c echo.Context) error {
	next := s.Settings.Load(c.Request().Context())
	if err := c.Bind(&next); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := s.saveSettings(c, next); err != nil || c.Response().Committed {
		return err
	}
	return c.JSON(http.StatusOK, s.Settings.Load(c.Request().Context()))
}

func (s *Server) handlePutCrawlerSettings(c echo.Context) error {
	next := s.Settings.Load(c.Request().Context())
	if err := c.Bind(&next.Crawler); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := s.saveSettings(c, next); err != nil || c.Response().Committed {
		return err
	}
	return c.JSON(http.StatusOK, s.Settings.Load(c.Request().Context()).Crawler)
}

type integrationStatus struct {
	Platform    settings.Platform `json:"platform"`
	Active      bool              `json:"active"`
	Reason      string            `json:"reason,omitempty"`
	Shopify     platformStatus    `json:"shopify"`
	WooCommerce platformStatus    `json:"woocommerce"`
	AliExpress  supplierStatus    `json:"aliexpress"`
}

type supplierStatus struct {
	Enabled            bool `json:"enabled"`
	IncludeInDiscovery bool `json:"include_in_discovery"`
	Simulated          bool `json:"simulated"`
}

type platformStatus struct {
	Enabled    bool `json:"enabled"`
	Configured bool `json:"configured"`
}

func (s *Server) handleIntegrationStatus(c echo.Context) error {
	cfg := s.Settings.Load(c.Request().Context()).Integrations
	status := integrationStatus{
		Platform: cfg.Platform,
		Shopify: platformStatus{
			Enabled:    cfg.Shopify.Enabled,
			Configured: cfg.Shopify.StoreName != "",
		},
		WooCommerce: platformStatus{
			Enabled:    cfg.WooCommerce.Enabled,
			Configured: cfg.WooCommerce.SiteURL != "",
		},
		AliExpress: supplierStatus{
			Enabled:            cfg.AliExpress.Enabled,
			IncludeInDiscovery: cfg.AliExpress.IncludeInDiscovery,
			Simulated:          s.Supplier == nil || s.Supplier.Simulated(),
		},
	}
	if s.Platform == nil {
		status.Reason = catalog.ErrPlatformNotConfigured.Error()
	} else if _, err := s.Platform(cfg); err != nil {
		status.Reason = err.Error()
	} else {
		status.Active = true
	}
	return c.JSON(http.StatusOK, status)
}

// handleIntegrationTest pings the configured platform.
func (s *Server) handleIntegrationTest(c echo.Context) error {
	cfg := s.Settings.Load(c.Request().Context())
	if s.Platform == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": catalog.ErrPlatformNotConfigured.Error()})
	}
	platform, err := s.Platform(cfg.Integrations)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	timeout := cfg.Timeouts.Catalog
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
	defer cancel()
	if err := platform.Ping(ctx); err != nil {
		return c.JSON(http.StatusBadGateway, map[string]any{"ok": false, "platform": platform.Name(), "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "platform": platform.Name()})
}
