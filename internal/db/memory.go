package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/david/product-scout/internal/models"
	"github.com/google/uuid"
)

// MemoryStore is an in-process implementation of the Store methods, used by
// dry runs and tests. Returned products are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[uuid.UUID]models.Product
	byURL    map[string]uuid.UUID
	runs     map[uuid.UUID]models.PipelineRun
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		products: make(map[uuid.UUID]models.Product),
		byURL:    make(map[string]uuid.UUID),
		runs:     make(map[uuid.UUID]models.PipelineRun),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cloneProduct(p models.Product) models.Product {
	p.MatchReasons = append([]string(nil), p.MatchReasons...)
	if p.Analysis != nil {
		a := *p.Analysis
		a.Reasons = append([]string(nil), a.Reasons...)
		if a.PriceEstimate != nil {
			pe := *a.PriceEstimate
			a.PriceEstimate = &pe
		}
		p.Analysis = &a
	}
	if p.CatalogID != nil {
		id := *p.CatalogID
		p.CatalogID = &id
	}
	if p.IndexedAt != nil {
		at := *p.IndexedAt
		p.IndexedAt = &at
	}
	return p
}

func (m *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return models.Product{}, ErrNotFound
	}
	return cloneProduct(p), nil
}

func (m *MemoryStore) FindByURL(_ context.Context, url string) (models.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byURL[url]
	if !ok {
		return models.Product{}, ErrNotFound
	}
	return cloneProduct(m.products[id]), nil
}

func (m *MemoryStore) Save(_ context.Context, p models.Product) (models.Product, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byURL[p.URL]; ok {
		return cloneProduct(m.products[id]), false, nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CatalogStatus == "" {
		p.CatalogStatus = models.CatalogNew
	}
	if p.MatchReasons == nil {
		p.MatchReasons = []string{}
	}
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Analyzed = p.Analysis != nil
	p = cloneProduct(p)
	m.products[p.ID] = p
	m.byURL[p.URL] = p.ID
	return cloneProduct(p), true, nil
}

// selectProducts returns copies of matching products ordered by less.
func (m *MemoryStore) selectProducts(match func(models.Product) bool, less func(a, b models.Product) bool) []models.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Product
	for _, p := range m.products {
		if match(p) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func discoveredFirst(a, b models.Product) bool {
	if !a.DiscoveredAt.Equal(b.DiscoveredAt) {
		return a.DiscoveredAt.Before(b.DiscoveredAt)
	}
	return a.URL < b.URL
}

func (m *MemoryStore) FindUnanalyzed(_ context.Context) ([]models.Product, error) {
	return m.selectProducts(func(p models.Product) bool { return !p.Analyzed }, discoveredFirst), nil
}

func (m *MemoryStore) FindByRecommendation(_ context.Context, rec models.Recommendation, statuses ...models.CatalogStatus) ([]models.Product, error) {
	match := func(p models.Product) bool {
		if p.Recommendation() != rec {
			return false
		}
		if len(statuses) == 0 {
			return true
		}
		for _, st := range statuses {
			if p.CatalogStatus == st {
				return true
			}
		}
		return false
	}
	return m.selectProducts(match, func(a, b models.Product) bool {
		if a.Analysis.Score != b.Analysis.Score {
			return a.Analysis.Score > b.Analysis.Score
		}
		return discoveredFirst(a, b)
	}), nil
}

// update applies fn to the stored product under the write lock.
func (m *MemoryStore) update(id uuid.UUID, fn func(p *models.Product) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	p.UpdatedAt = m.now()
	m.products[id] = p
	return nil
}

func (m *MemoryStore) UpdateAnalysis(_ context.Context, id uuid.UUID, a models.Analysis) error {
	return m.update(id, func(p *models.Product) error {
		a.Reasons = append([]string(nil), a.Reasons...)
		p.Analysis = &a
		p.Analyzed = true
		return nil
	})
}

func (m *MemoryStore) UpdateCatalogStatus(_ context.Context, id uuid.UUID, status models.CatalogStatus, catalogID *string) error {
	return m.update(id, func(p *models.Product) error {
		p.CatalogStatus = status
		if status == models.CatalogIndexed {
			at := m.now()
			p.IndexedAt = &at
		}
		if catalogID != nil {
			ref := *catalogID
			p.CatalogID = &ref
		}
		return nil
	})
}

func (m *MemoryStore) SetRecommendation(_ context.Context, id uuid.UUID, rec models.Recommendation) error {
	return m.update(id, func(p *models.Product) error {
		if p.Analysis == nil {
			return ErrNotAnalyzed
		}
		a := *p.Analysis
		a.Recommendation = rec
		p.Analysis = &a
		return nil
	})
}

func (m *MemoryStore) DeleteByID(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.products, id)
	delete(m.byURL, p.URL)
	return nil
}

func (m *MemoryStore) FindPaged(_ context.Context, params ListParams) (ListResult, error) {
	params = params.normalize()
	all := m.selectProducts(func(p models.Product) bool {
		if params.Status != "" && p.CatalogStatus != params.Status {
			return false
		}
		if params.Recommendation != "" && p.Recommendation() != params.Recommendation {
			return false
		}
		if params.Source != "" && p.Source != params.Source {
			return false
		}
		return true
	}, func(a, b models.Product) bool {
		if !a.DiscoveredAt.Equal(b.DiscoveredAt) {
			return a.DiscoveredAt.After(b.DiscoveredAt)
		}
		return a.ID.String() < b.ID.String()
	})

	start := params.offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + params.Limit
	if end > len(all) {
		end = len(all)
	}
	return newListResult(all[start:end], len(all), params), nil
}

func (m *MemoryStore) Stats(_ context.Context) (models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := models.Stats{
		Total:            len(m.products),
		ByCatalogStatus:  map[models.CatalogStatus]int{},
		ByRecommendation: map[models.Recommendation]int{},
		BySource:         map[models.Source]int{},
	}
	sum := 0
	for _, p := range m.products {
		stats.ByCatalogStatus[p.CatalogStatus]++
		stats.BySource[p.Source]++
		if p.Analysis != nil {
			stats.Analyzed++
			sum += p.Analysis.Score
			stats.ByRecommendation[p.Analysis.Recommendation]++
		}
	}
	if stats.Analyzed > 0 {
		avg := float64(sum) / float64(stats.Analyzed)
		stats.AverageScore = float64(int(avg*10+0.5)) / 10
	}
	return stats, nil
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) CreateRun(_ context.Context, trigger string, stage models.Stage) (models.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := models.PipelineRun{
		ID:        uuid.New(),
		Trigger:   trigger,
		Stage:     stage,
		Status:    models.RunRunning,
		StartedAt: m.now(),
	}
	m.runs[run.ID] = run
	return run, nil
}

func (m *MemoryStore) FinishRun(_ context.Context, run models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	if run.FinishedAt == nil {
		finished := m.now()
		run.FinishedAt = &finished
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) ListRuns(_ context.Context, limit int) ([]models.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]models.PipelineRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *MemoryStore) GetRun(_ context.Context, id uuid.UUID) (models.PipelineRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return models.PipelineRun{}, ErrRunNotFound
	}
	return r, nil
}
