package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/david/product-scout/internal/models"
	"github.com/david/product-scout/internal/settings"
)

// Recommend maps a final score onto index, watch or skip.
func Recommend(score int, t settings.Thresholds) models.Recommendation {
	switch {
	case score >= t.MinScoreToIndex:
		return models.RecommendIndex
	case score >= t.MinScoreToWatch:
		return models.RecommendWatch
	default:
		return models.RecommendSkip
	}
}

// InterpretScore renders one factor score as a qualitative level.
func InterpretScore(score int, factor string) string {
	var level string
	switch {
	case score >= 80:
		level = "Excellent"
	case score >= 60:
		level = "Good"
	case score >= 40:
		level = "Average"
	case score >= 20:
		level = "Low"
	default:
		level = "Very low"
	}
	return fmt.Sprintf("%s level of %s (%d/100)", level, factor, score)
}

// Justify produces the ordered, human-readable reasons behind a recommendation.
func Justify(info CategoryInfo, f models.FactorScores, rec models.Recommendation) []string {
	reasons := make([]string, 0, 6)

	if info.Known() {
		reasons = append(reasons, fmt.Sprintf("Product detected in category %q (confidence: %d%%)",
			info.Category, int(math.Round(info.Confidence*100))))
	} else {
		reasons = append(reasons, "Product category could not be clearly identified")
	}

	reasons = append(reasons,
		"Popularity: "+InterpretScore(f.Popularity, "popularity"),
		"Profitability: "+InterpretScore(f.Profitability, "profitability"),
		"Competition: "+InterpretScore(f.Competition, "competition"),
		"Seasonality: "+InterpretScore(f.Seasonality, "seasonality"),
	)

	switch rec {
	case models.RecommendIndex:
		reasons = append(reasons, "This product shows excellent potential and should be added to the catalog.")
	case models.RecommendWatch:
		reasons = append(reasons, "This product shows interesting potential but needs more observation before it is added.")
	case models.RecommendSkip:
		reasons = append(reasons, "This product does not currently show enough potential to be added to the catalog.")
	}
	return reasons
}

// failedAnalysis is the terminal record stored when scoring a product fails.
func failedAnalysis(err error, at time.Time) models.Analysis {
	return models.Analysis{
		Score:          0,
		Recommendation: models.RecommendError,
		Category:       UnknownCategory,
		Reasons:        []string{fmt.Sprintf("Analysis error: %v", err)},
		AnalyzedAt:     at,
	}
}
