package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
	"github.com/labstack/echo/v4"
)

// Supplier searches a supplier catalog. ingest.AliExpressSearcher satisfies it.
type Supplier interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error)
	ProductDetails(ctx context.Context, id string) (models.Listing, error)
	Simulated() bool
}

const maxSupplierResults = 50

type supplierSearchRequest struct {
	Keyword string `json:"keyword"`
	Max     int    `json:"max"`
	Persist bool   `json:"persist"`
}

// handleSearchAliExpress runs a supplier search. With persist set, new
// listings are stored as products the same way discovery stores them.
func (s *Server) handleSearchAliExpress(c echo.Context) error {
	var req supplierSearchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "keyword is required"})
	}
	cfg := s.Settings.Load(c.Request().Context())
	if !cfg.Integrations.AliExpress.Enabled || s.Supplier == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "AliExpress integration is not enabled"})
	}
	limit := req.Max
	if limit <= 0 {
		limit = cfg.Crawler.MaxResults
	}
	limit = min(limit, maxSupplierResults)

	ctx, cancel := context.WithTimeout(c.Request().Context(), supplierTimeout(cfg))
	defer cancel()
	listings, err := s.Supplier.Search(ctx, req.Keyword, limit)
	if err != nil {
		log.WithField("keyword", req.Keyword).WithError(err).Warn("api: supplier search failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}

	filter := ingest.NewRelevanceFilter()
	for i := range listings {
		ingest.NormalizeListing(&listings[i], s.Now())
		rel := filter.Evaluate(listings[i], ingest.DefaultMinRelevance)
		listings[i].RelevanceScore = rel.Score
		listings[i].MatchReasons = rel.Signals
	}

	resp := map[string]any{
		"keyword":   req.Keyword,
		"simulated": s.Supplier.Simulated(),
		"count":     len(listings),
		"products":  listings,
	}
	if req.Persist {
		created := 0
		for _, l := range listings {
			_, isNew, err := s.Store.Save(c.Request().Context(), models.NewProduct(l))
			if err != nil {
				log.WithField("url", l.URL).WithError(err).Error("api: failed to save supplier product")
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
			}
			if isNew {
				created++
			}
		}
		resp["created"] = created
	}
	return c.JSON(http.StatusOK, resp)
}

func supplierTimeout(cfg settings.Settings) time.Duration {
	if cfg.Timeouts.Search <= 0 {
		return 15 * time.Second
	}
	return cfg.Timeouts.Search
}

func (s *Server) handleAliExpressProduct(c echo.Context) error {
	cfg := s.Settings.Load(c.Request().Context())
	if !cfg.Integrations.AliExpress.Enabled || s.Supplier == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "AliExpress integration is not enabled"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), supplierTimeout(cfg))
	defer cancel()
	l, err := s.Supplier.ProductDetails(ctx, c.Param("id"))
	if err != nil {
		log.WithField("product_id", c.Param("id")).WithError(err).Warn("api: supplier product lookup failed")
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	ingest.NormalizeListing(&l, s.Now())
	return c.JSON(http.StatusOK, map[string]any{"product": l})
}
