package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/db"
	"github.com/david/product-scout/internal/ingest"
	"github.com/david/product-scout/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (s *Server) handleListProducts(c echo.Context) error {
	params := db.ListParams{
		Status:         models.CatalogStatus(c.QueryParam("status")),
		Recommendation: models.Recommendation(c.QueryParam("recommendation")),
		Source:         models.Source(c.QueryParam("source")),
		Page:           1,
		Limit:          20,
	}
	if params.Status != "" && !params.Status.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid status filter"})
	}
	if params.Recommendation != "" && !params.Recommendation.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid recommendation filter"})
	}
	if params.Source != "" && !params.Source.Valid() {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid source filter"})
	}
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 0 {
		params.Page = p
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		params.Limit = l
	}

	res, err := s.Store.FindPaged(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

func parseID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

func (s *Server) handleGetProduct(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product id"})
	}
	p, err := s.Store.FindByID(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, p)
}

type createProductRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Query       string `json:"query"`
	ImageURL    string `json:"image_url"`
	Brand       string `json:"brand"`
	Supplier    string `json:"supplier"`
}

// handleCreateProduct stores an operator-submitted product. The relevance
// filter scores it for the record but does not reject it.
func (s *Server) handleCreateProduct(c echo.Context) error {
	var req createProductRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	req.URL = strings.TrimSpace(req.URL)
	u, err := url.Parse(req.URL)
	if req.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "A valid http(s) url is required"})
	}
	if strings.TrimSpace(req.Title) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "title is required"})
	}

	l := models.Listing{
		Title:       req.Title,
		Description: req.Description,
		URL:         req.URL,
		Query:       req.Query,
		Source:      models.SourceManual,
		Metadata: models.Metadata{
			ImageURL: req.ImageURL,
			Brand:    req.Brand,
			Supplier: req.Supplier,
		},
	}
	ingest.NormalizeListing(&l, s.Now())
	rel := ingest.NewRelevanceFilter().Evaluate(l, ingest.DefaultMinRelevance)
	l.RelevanceScore = rel.Score
	l.MatchReasons = rel.Signals

	p, created, err := s.Store.Save(c.Request().Context(), models.NewProduct(l))
	if err != nil {
		log.WithField("url", l.URL).WithError(err).Error("api: failed to save manual product")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	return c.JSON(status, map[string]any{"product": p, "created": created})
}

func (s *Server) handleDeleteProduct(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product id"})
	}
	err := s.Store.DeleteByID(c.Request().Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

type recommendationRequest struct {
	Recommendation models.Recommendation `json:"recommendation"`
}

// handleSetRecommendation lets an operator override the latest
// recommendation, typically with deindex to pull a product from the catalog
// on the next sync.
func (s *Server) handleSetRecommendation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid product id"})
	}
	var req recommendationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if !req.Recommendation.Valid() || req.Recommendation == models.RecommendError {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recommendation must be one of index, watch, skip, deindex"})
	}

	ctx := c.Request().Context()
	err := s.Store.SetRecommendation(ctx, id, req.Recommendation)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Product not found"})
	case errors.Is(err, db.ErrNotAnalyzed):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	p, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}
