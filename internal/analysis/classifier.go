package analysis

import (
	"math"
	"strings"

	"github.com/david/product-scout/internal/knowledge"
)

const UnknownCategory = "unknown"

// CategoryInfo is the outcome of one classification call.
type CategoryInfo struct {
	Category   string              `json:"category"`
	Confidence float64             `json:"confidence"`
	Data       *knowledge.Category `json:"-"`
	Hits       map[string]int      `json:"hits"`
}

func (i CategoryInfo) Known() bool {
	return i.Data != nil
}

type Classifier struct {
	kb *knowledge.Base
}

func NewClassifier(kb *knowledge.Base) *Classifier {
	if kb == nil {
		kb = knowledge.Default()
	}
	return &Classifier{kb: kb}
}

// Classify picks the category with the most keywords contained in text.
// Ties go to the category declared first in the knowledge base.
func (c *Classifier) Classify(text string) CategoryInfo {
	text = strings.ToLower(text)
	hits := make(map[string]int, len(c.kb.Categories))

	best, bestCount := -1, 0
	for i := range c.kb.Categories {
		cat := &c.kb.Categories[i]
		n := knowledge.CountPresent(text, cat.Keywords)
		hits[cat.Name] = n
		if n > bestCount {
			best, bestCount = i, n
		}
	}

	if best < 0 {
		return CategoryInfo{Category: UnknownCategory, Hits: hits}
	}

	confidence := 0.0
	if total := c.kb.TotalKeywords(); total > 0 {
		confidence = math.Min(1, float64(bestCount)/(float64(total)*0.1))
	}
	return CategoryInfo{
		Category:   c.kb.Categories[best].Name,
		Confidence: confidence,
		Data:       &c.kb.Categories[best],
		Hits:       hits,
	}
}
