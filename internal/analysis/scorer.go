package analysis

import (
	"math"
	"strings"
	"time"

	"github.com/david/product-scout/internal/knowledge"
	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
)

// trendingQueryTerms mark a search query as trend-targeted.
var trendingQueryTerms = []string{"trending", "tendance", "viral"}

// Scorer computes the four factor scores and their weighted combination.
// It is pure apart from the clock, which callers pin for reproducible runs.
type Scorer struct {
	kb  *knowledge.Base
	now func() time.Time
}

func NewScorer(kb *knowledge.Base, now func() time.Time) *Scorer {
	if kb == nil {
		kb = knowledge.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{kb: kb, now: now}
}

// Popularity: base 50, keyword signals, targeted-search bonus, recency decay
// and the identity adjustment.
func (s *Scorer) Popularity(p models.Product) int {
	score := 50
	text := productText(p)

	score += 5 * knowledge.CountPresent(text, s.kb.Keywords.Popularity)

	if isTargetedSearch(p.Source) {
		score += 10
		if knowledge.ContainsAny(strings.ToLower(p.Query), trendingQueryTerms) {
			score += 5
		}
	}

	if !p.DiscoveredAt.IsZero() {
		days := int(math.Floor(s.now().Sub(p.DiscoveredAt).Hours() / 24))
		if days < 0 {
			days = 0
		}
		if days < 10 {
			score += 10 - days
		}
	}

	score += hashAdjustment(p.Identity(), popularityModulus)
	return clampScore(score)
}

func (s *Scorer) Profitability(p models.Product, info CategoryInfo) int {
	score := 50
	text := productText(p)

	if info.Known() && info.Confidence > 0.3 {
		score = int(math.Round(info.Data.ProfitMargin * 100))
		switch info.Data.TrendCycle {
		case knowledge.CycleShort:
			score -= 5
		case knowledge.CycleLong:
			score += 5
		}
	}

	k := s.kb.Keywords
	score += 5 * knowledge.CountPresent(text, k.Profitability)
	score -= 5 * knowledge.CountPresent(text, k.Luxury)
	score += 3 * knowledge.CountPresent(text, k.Compact)

	score += hashAdjustment(p.Identity(), profitabilityModulus)
	return clampScore(score)
}

// Competition is higher when the market is less crowded.
func (s *Scorer) Competition(p models.Product, info CategoryInfo) int {
	score := 50
	text := productText(p)

	if info.Known() && info.Confidence > 0.3 {
		score = int(math.Round((1 - info.Data.CompetitionLevel) * 100))
	}

	k := s.kb.Keywords
	score += 5 * knowledge.CountPresent(text, k.LowCompetition)
	score -= 3 * knowledge.CountPresent(text, k.HighCompetition)
	score -= 4 * knowledge.CountPresent(text, k.BulkSupply)

	score += hashAdjustment(p.Identity(), competitionModulus)
	return clampScore(score)
}

// Seasonality averages the boosts of every matched event and season, then
// adds evergreen bonuses and the identity adjustment.
func (s *Scorer) Seasonality(p models.Product) int {
	score := 50
	text := productText(p)
	current := s.now().Month()

	bonus, matches := 0, 0
	for _, e := range s.kb.Events {
		if !e.Matches(text) {
			continue
		}
		matches++
		switch {
		case e.ActiveIn(current):
			bonus += e.Boost
		case e.ActiveIn(addMonths(current, 1)):
			bonus += int(math.Floor(float64(e.Boost) * 0.7))
		case e.ActiveIn(addMonths(current, 2)):
			bonus += int(math.Floor(float64(e.Boost) * 0.3))
		}
	}
	for _, season := range s.kb.Seasons {
		if !season.Matches(text) {
			continue
		}
		matches++
		if season.ActiveIn(current) {
			bonus += season.Boost
			continue
		}
		if until := monthsUntil(current, season.Months); until <= 3 {
			bonus += int(math.Floor(float64(season.Boost) * (1 - float64(until)/4)))
		}
	}
	if matches > 0 {
		score += int(math.Round(float64(bonus) / float64(matches)))
	}

	score += 3 * knowledge.CountPresent(text, s.kb.Keywords.Evergreen)

	score += hashAdjustment(p.Identity(), seasonalityModulus)
	return clampScore(score)
}

// Factors runs all four scorers.
func (s *Scorer) Factors(p models.Product, info CategoryInfo) models.FactorScores {
	return models.FactorScores{
		Popularity:    s.Popularity(p),
		Profitability: s.Profitability(p, info),
		Competition:   s.Competition(p, info),
		Seasonality:   s.Seasonality(p),
	}
}

// Score computes the factor scores of p and their weighted combination.
func (s *Scorer) Score(p models.Product, info CategoryInfo, w settings.Weights) (models.FactorScores, int) {
	f := s.Factors(p, info)
	return f, FinalScore(f, w)
}

// FinalScore combines factor scores with weights normalized against their sum.
func FinalScore(f models.FactorScores, w settings.Weights) int {
	sum := w.Sum()
	if sum <= 0 || math.IsNaN(sum) {
		w = settings.DefaultWeights()
		sum = w.Sum()
	}
	weighted := float64(f.Popularity)*w.Popularity +
		float64(f.Profitability)*w.Profitability +
		float64(f.Competition)*w.Competition +
		float64(f.Seasonality)*w.Seasonality
	// Weights already summing to one are used as-is so rounding matches the
	// unnormalized historical scores.
	if math.Abs(sum-1) > 1e-9 {
		weighted /= sum
	}
	return clampScore(int(math.Round(weighted)))
}

func productText(p models.Product) string {
	return strings.ToLower(p.Title + " " + p.Description)
}

func isTargetedSearch(src models.Source) bool {
	return src == models.SourceBraveSearch || src == models.SourceAliExpress
}

func addMonths(m time.Month, n int) time.Month {
	return time.Month((int(m)-1+n)%12 + 1)
}

// monthsUntil is the smallest forward distance from current to any of months.
func monthsUntil(current time.Month, months []time.Month) int {
	best := 12
	for _, m := range months {
		d := (int(m) - int(current) + 12) % 12
		if d < best {
			best = d
		}
	}
	return best
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
