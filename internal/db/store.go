package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/david/product-scout/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// ListParams filters the paged product listing. Zero values mean "any".
type ListParams struct {
	Status         models.CatalogStatus
	Recommendation models.Recommendation
	Source         models.Source
	Page           int
	Limit          int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// normalize clamps page to >= 1 and limit to [1, 100].
func (p ListParams) normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultPageLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

func (p ListParams) offset() int {
	return (p.Page - 1) * p.Limit
}

type ListResult struct {
	Products []models.Product `json:"products"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Pages    int              `json:"pages"`
}

func newListResult(products []models.Product, total int, p ListParams) ListResult {
	if products == nil {
		products = []models.Product{}
	}
	return ListResult{
		Products: products,
		Total:    total,
		Page:     p.Page,
		Limit:    p.Limit,
		Pages:    int(math.Ceil(float64(total) / float64(p.Limit))),
	}
}

var productCols = []string{
	"id", "title", "description", "url", "query", "domain", "source", "discovered_at",
	"relevance_score", "match_reasons", "metadata", "analyzed", "analysis",
	"catalog_status", "catalog_id", "indexed_at", "created_at", "updated_at",
}

func scanProduct(scan func(dest ...any) error) (models.Product, error) {
	var p models.Product
	var metadataRaw, analysisRaw []byte

	err := scan(
		&p.ID, &p.Title, &p.Description, &p.URL, &p.Query, &p.Domain, &p.Source, &p.DiscoveredAt,
		&p.RelevanceScore, &p.MatchReasons, &metadataRaw, &p.Analyzed, &analysisRaw,
		&p.CatalogStatus, &p.CatalogID, &p.IndexedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &p.Metadata); err != nil {
			return p, fmt.Errorf("decode metadata of %s: %w", p.ID, err)
		}
	}
	if len(analysisRaw) > 0 {
		var a models.Analysis
		if err := json.Unmarshal(analysisRaw, &a); err != nil {
			return p, fmt.Errorf("decode analysis of %s: %w", p.ID, err)
		}
		p.Analysis = &a
	}
	return p, nil
}

func (s *Store) queryProducts(ctx context.Context, b sq.SelectBuilder) ([]models.Product, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Product
	for rows.Next() {
		p, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) findOne(ctx context.Context, where sq.Sqlizer) (models.Product, error) {
	sql, args, err := psql.Select(productCols...).From("products").Where(where).ToSql()
	if err != nil {
		return models.Product{}, fmt.Errorf("build query: %w", err)
	}
	p, err := scanProduct(s.pool.QueryRow(ctx, sql, args...).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Product{}, ErrNotFound
	}
	return p, err
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (models.Product, error) {
	return s.findOne(ctx, sq.Eq{"id": id})
}

func (s *Store) FindByURL(ctx context.Context, url string) (models.Product, error) {
	return s.findOne(ctx, sq.Eq{"url": url})
}

// Save inserts p unless a product with the same URL exists, in which case
// the stored product is returned with created=false. Concurrent saves of one
// URL resolve to a single insert.
func (s *Store) Save(ctx context.Context, p models.Product) (models.Product, bool, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CatalogStatus == "" {
		p.CatalogStatus = models.CatalogNew
	}
	if p.MatchReasons == nil {
		p.MatchReasons = []string{}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return models.Product{}, false, fmt.Errorf("encode metadata: %w", err)
	}
	var analysis []byte
	if p.Analysis != nil {
		if analysis, err = json.Marshal(p.Analysis); err != nil {
			return models.Product{}, false, fmt.Errorf("encode analysis: %w", err)
		}
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx, `
		INSERT INTO products (
			id, title, description, url, query, domain, source, discovered_at,
			relevance_score, match_reasons, metadata, analyzed, analysis,
			catalog_status, catalog_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (url) DO NOTHING
		RETURNING id`,
		p.ID, p.Title, p.Description, p.URL, p.Query, p.Domain, p.Source, p.DiscoveredAt,
		p.RelevanceScore, p.MatchReasons, metadata, p.Analysis != nil, analysis,
		p.CatalogStatus, p.CatalogID, now,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, findErr := s.FindByURL(ctx, p.URL)
		if findErr != nil {
			return models.Product{}, false, fmt.Errorf("load existing product %s: %w", p.URL, findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return models.Product{}, false, fmt.Errorf("insert product %s: %w", p.URL, err)
	}
	p.Analyzed = p.Analysis != nil
	return p, true, nil
}

func (s *Store) FindUnanalyzed(ctx context.Context) ([]models.Product, error) {
	return s.queryProducts(ctx, psql.Select(productCols...).From("products").
		Where(sq.Eq{"analyzed": false}).
		OrderBy("discovered_at ASC"))
}

// buildRecommendationQuery selects products whose latest recommendation is
// rec, optionally restricted to some catalog states.
func buildRecommendationQuery(rec models.Recommendation, statuses []models.CatalogStatus) sq.SelectBuilder {
	b := psql.Select(productCols...).From("products").Where(sq.Eq{"recommendation": string(rec)})
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, st := range statuses {
			vals[i] = string(st)
		}
		b = b.Where(sq.Eq{"catalog_status": vals})
	}
	return b.OrderBy("score DESC", "discovered_at ASC")
}

func (s *Store) FindByRecommendation(ctx context.Context, rec models.Recommendation, statuses ...models.CatalogStatus) ([]models.Product, error) {
	return s.queryProducts(ctx, buildRecommendationQuery(rec, statuses))
}

// UpdateAnalysis replaces the stored analysis wholesale.
func (s *Store) UpdateAnalysis(ctx context.Context, id uuid.UUID, a models.Analysis) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET analysis = $2, analyzed = TRUE, updated_at = NOW() WHERE id = $1`,
		id, raw)
	if err != nil {
		return fmt.Errorf("update analysis of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCatalogStatus sets the catalog state. A nil catalogID keeps the
// stored reference. Entering indexed stamps indexed_at.
func (s *Store) UpdateCatalogStatus(ctx context.Context, id uuid.UUID, status models.CatalogStatus, catalogID *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET catalog_status = $2,
		    catalog_id = COALESCE($3, catalog_id),
		    indexed_at = CASE WHEN $2 = 'indexed' THEN NOW() ELSE indexed_at END,
		    updated_at = NOW()
		WHERE id = $1`,
		id, status, catalogID)
	if err != nil {
		return fmt.Errorf("update catalog status of %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRecommendation overrides the recommendation of an analyzed product.
func (s *Store) SetRecommendation(ctx context.Context, id uuid.UUID, rec models.Recommendation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE products
		SET analysis = jsonb_set(analysis, '{recommendation}', to_jsonb($2::text)), updated_at = NOW()
		WHERE id = $1 AND analysis IS NOT NULL`,
		id, string(rec))
	if err != nil {
		return fmt.Errorf("set recommendation of %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return ErrNotAnalyzed
}

func (s *Store) DeleteByID(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// buildPagedQueries returns the page query and the matching count query.
func buildPagedQueries(p ListParams) (sq.SelectBuilder, sq.SelectBuilder) {
	where := sq.And{}
	if p.Status != "" {
		where = append(where, sq.Eq{"catalog_status": string(p.Status)})
	}
	if p.Recommendation != "" {
		where = append(where, sq.Eq{"recommendation": string(p.Recommendation)})
	}
	if p.Source != "" {
		where = append(where, sq.Eq{"source": string(p.Source)})
	}

	page := psql.Select(productCols...).From("products")
	count := psql.Select("COUNT(*)").From("products")
	if len(where) > 0 {
		page = page.Where(where)
		count = count.Where(where)
	}
	page = page.OrderBy("discovered_at DESC", "id").
		Limit(uint64(p.Limit)).
		Offset(uint64(p.offset()))
	return page, count
}

func (s *Store) FindPaged(ctx context.Context, params ListParams) (ListResult, error) {
	params = params.normalize()
	pageQ, countQ := buildPagedQueries(params)

	sql, args, err := countQ.ToSql()
	if err != nil {
		return ListResult{}, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return ListResult{}, fmt.Errorf("count products: %w", err)
	}

	products, err := s.queryProducts(ctx, pageQ)
	if err != nil {
		return ListResult{}, fmt.Errorf("list products: %w", err)
	}
	return newListResult(products, total, params), nil
}

func (s *Store) Stats(ctx context.Context) (models.Stats, error) {
	stats := models.Stats{
		ByCatalogStatus:  map[models.CatalogStatus]int{},
		ByRecommendation: map[models.Recommendation]int{},
		BySource:         map[models.Source]int{},
	}

	var avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE analyzed), AVG(score) FROM products`,
	).Scan(&stats.Total, &stats.Analyzed, &avg)
	if err != nil {
		return stats, fmt.Errorf("product totals: %w", err)
	}
	if avg != nil {
		stats.AverageScore = math.Round(*avg*10) / 10
	}

	groups := []struct {
		column string
		add    func(key string, n int)
	}{
		{"catalog_status", func(k string, n int) { stats.ByCatalogStatus[models.CatalogStatus(k)] = n }},
		{"recommendation", func(k string, n int) { stats.ByRecommendation[models.Recommendation(k)] = n }},
		{"source", func(k string, n int) { stats.BySource[models.Source(k)] = n }},
	}
	for _, g := range groups {
		rows, err := s.pool.Query(ctx, fmt.Sprintf(
			`SELECT %[1]s, COUNT(*) FROM products WHERE %[1]s IS NOT NULL GROUP BY %[1]s`, g.column))
		if err != nil {
			return stats, fmt.Errorf("group by %s: %w", g.column, err)
		}
		for rows.Next() {
			var key string
			var n int
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return stats, err
			}
			g.add(key, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
