package analysis

import (
	"testing"
	"time"

	"github.com/david/product-scout/internal/knowledge"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
	"github.com/stretchr/testify/assert"
)

const testURL = "https://example.com/product/123"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestScorer_Popularity(t *testing.T) {
	now := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	s := NewScorer(nil, fixedClock(now))
	adj := hashAdjustment(testURL, popularityModulus)

	tests := []struct {
		name string
		p    models.Product
		base int
	}{
		{
			name: "manual listing without signals",
			p:    models.Product{URL: testURL, Title: "Desk lamp", Source: models.SourceManual},
			base: 50,
		},
		{
			name: "targeted trending search discovered three days ago",
			p: models.Product{
				URL: testURL, Title: "Viral lamp", Source: models.SourceBraveSearch,
				Query: "trending products", DiscoveredAt: now.Add(-3 * 24 * time.Hour),
			},
			base: 50 + 5 + 10 + 5 + 7,
		},
		{
			name: "targeted search without trend terms",
			p: models.Product{
				URL: testURL, Title: "Desk lamp", Source: models.SourceAliExpress,
				Query: "lamps", DiscoveredAt: now.Add(-12 * 24 * time.Hour),
			},
			base: 60,
		},
		{
			name: "discovered today",
			p:    models.Product{URL: testURL, Title: "Desk lamp", Source: models.SourceManual, DiscoveredAt: now},
			base: 60,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, clampScore(tt.base+adj), s.Popularity(tt.p))
		})
	}
}

func TestScorer_Profitability(t *testing.T) {
	s := NewScorer(nil, fixedClock(time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)))
	adj := hashAdjustment(testURL, profitabilityModulus)
	beauty := CategoryInfo{
		Category:   "beauty",
		Confidence: 0.5,
		Data:       &knowledge.Category{Name: "beauty", ProfitMargin: 0.5, TrendCycle: knowledge.CycleShort},
	}

	tests := []struct {
		name  string
		title string
		info  CategoryInfo
		base  int
	}{
		{"confident category seeds the score", "mirror", beauty, 45},
		{"low confidence keeps the neutral seed", "mirror", CategoryInfo{Category: "beauty", Confidence: 0.2, Data: beauty.Data}, 50},
		{"keyword bonuses and penalties", "compact luxury mirror", CategoryInfo{Category: UnknownCategory}, 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := models.Product{URL: testURL, Title: tt.title}
			assert.Equal(t, clampScore(tt.base+adj), s.Profitability(p, tt.info))
		})
	}
}

func TestScorer_Competition(t *testing.T) {
	s := NewScorer(nil, nil)
	adj := hashAdjustment(testURL, competitionModulus)
	info := CategoryInfo{
		Category:   "technology",
		Confidence: 0.5,
		Data:       &knowledge.Category{Name: "technology", CompetitionLevel: 0.8},
	}

	p := models.Product{URL: testURL, Title: "handmade gift pack"}

	assert.Equal(t, clampScore(20+5-4+adj), s.Competition(p, info))
	assert.Equal(t, clampScore(50+5-4+adj), s.Competition(p, CategoryInfo{Category: UnknownCategory}))
}

func TestScorer_Seasonality(t *testing.T) {
	adj := hashAdjustment(testURL, seasonalityModulus)

	tests := []struct {
		name  string
		now   time.Time
		title string
		base  int
	}{
		{"no seasonal match", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "desk lamp", 50},
		{"two active matches are averaged", time.Date(2026, time.December, 10, 0, 0, 0, 0, time.UTC), "christmas ski goggles", 50 + 28},
		{"inactive match dampens an active one", time.Date(2026, time.July, 15, 0, 0, 0, 0, time.UTC), "beach ski kit", 50 + 13},
		{"season two months ahead", time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC), "winter coat", 50 + 7},
		{"evergreen keywords", time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), "timeless everyday basics", 50 + 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(nil, fixedClock(tt.now))
			p := models.Product{URL: testURL, Title: tt.title}
			assert.Equal(t, clampScore(tt.base+adj), s.Seasonality(p))
		})
	}
}

func TestScorer_FactorsAreDeterministic(t *testing.T) {
	s := NewScorer(nil, fixedClock(time.Date(2026, time.May, 5, 0, 0, 0, 0, time.UTC)))
	info := NewClassifier(nil).Classify("Wireless bluetooth speaker gadget")
	p := models.Product{
		URL: "https://aliexpress.com/item/1005001.html", Title: "Wireless bluetooth speaker gadget",
		Source: models.SourceAliExpress, Query: "viral gadgets",
		DiscoveredAt: time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
	}

	first := s.Factors(p, info)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, s.Factors(p, info))
	}
	for _, v := range []int{first.Popularity, first.Profitability, first.Competition, first.Seasonality} {
		assert.GreaterOrEqual(t, v, 0)
		assert.LessOrEqual(t, v, 100)
	}
}

func TestFinalScore(t *testing.T) {
	f := models.FactorScores{Popularity: 80, Profitability: 60, Competition: 40, Seasonality: 20}

	tests := []struct {
		name string
		f    models.FactorScores
		w    settings.Weights
		want int
	}{
		{"default weights", f, settings.DefaultWeights(), 60},
		{"weights normalized by their sum", f, settings.Weights{Popularity: 2, Profitability: 1.5, Competition: 1, Seasonality: 0.5}, 60},
		{"zero weights fall back to defaults", f, settings.Weights{}, 60},
		{"only popularity counts", f, settings.Weights{Popularity: 1}, 80},
		{"upper bound", models.FactorScores{Popularity: 100, Profitability: 100, Competition: 100, Seasonality: 100}, settings.DefaultWeights(), 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalScore(tt.f, tt.w))
		})
	}
}

func TestMonthsUntil(t *testing.T) {
	winter := []time.Month{time.December, time.January, time.February}

	assert.Equal(t, 0, monthsUntil(time.January, winter))
	assert.Equal(t, 2, monthsUntil(time.October, winter))
	assert.Equal(t, 9, monthsUntil(time.March, winter))
	assert.Equal(t, time.January, addMonths(time.December, 1))
	assert.Equal(t, time.February, addMonths(time.December, 2))
}
