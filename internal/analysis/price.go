package analysis

import (
	"math"

	"github.com/david/product-scout/internal/knowledge"
	"github.com/david/product-scout/internal/models"
	"github.com/shopspring/decimal"
)

// EstimatePrice suggests wholesale and retail prices from the detected
// category. Premium wording selects the higher wholesale tier.
func EstimatePrice(p models.Product, info CategoryInfo, kb *knowledge.Base) models.PriceEstimate {
	if kb == nil {
		kb = knowledge.Default()
	}
	wholesale := decimal.NewFromFloat(kb.Pricing.DefaultWholesale)
	retail := decimal.NewFromFloat(kb.Pricing.DefaultRetail)
	margin := kb.Pricing.DefaultMargin

	if info.Known() {
		margin = info.Data.ProfitMargin
		if tiers := info.Data.Wholesale; tiers != nil {
			if knowledge.ContainsAny(productText(p), kb.Keywords.Premium) {
				wholesale = decimal.NewFromFloat(tiers.Premium)
			} else {
				wholesale = decimal.NewFromFloat(tiers.Standard)
			}
		}
		retail = wholesale.Div(decimal.NewFromFloat(1 - margin)).Round(0)
	}

	return models.PriceEstimate{
		WholesalePrice:   wholesale,
		RetailPrice:      retail,
		MarginPercentage: int(math.Round(margin * 100)),
		ProfitPerUnit:    retail.Sub(wholesale),
	}
}
