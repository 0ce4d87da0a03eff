package ingest

import (
	"testing"

	"github.com/david/product-scout/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestRelevanceFilter_ProductPageScenario(t *testing.T) {
	l := models.Listing{
		Title:       "Phone case",
		Description: "Only $29.99, perfect for dropshipping",
		URL:         "https://www.aliexpress.com/product/123",
	}

	res := NewRelevanceFilter().Evaluate(l, DefaultMinRelevance)

	assert.True(t, res.Accepted)
	assert.GreaterOrEqual(t, res.Score, 85)
	// "dropshipping" also contains the transactional keyword "shipping".
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, []string{
		SignalProductURL, SignalCommerceDomain, SignalTransactional, SignalPrice,
		"topic:dropshipping", SignalDropshipping,
	}, res.Signals)
}

func TestRelevanceFilter_ThresholdBoundary(t *testing.T) {
	l := models.Listing{
		Title: "product sale vente",
		URL:   "https://blog.example.org/post",
	}
	f := NewRelevanceFilter()

	at := f.Evaluate(l, 30)
	assert.Equal(t, 30, at.Score)
	assert.True(t, at.Accepted)

	above := f.Evaluate(l, 31)
	assert.False(t, above.Accepted)
}

func TestRelevanceFilter_Signals(t *testing.T) {
	tests := []struct {
		name    string
		listing models.Listing
		score   int
		signals []string
	}{
		{
			name:    "nothing matches",
			listing: models.Listing{Title: "Weather report", URL: "https://news.example.org/article"},
			score:   0,
		},
		{
			name:    "localized shop page",
			listing: models.Listing{Description: "Livraison gratuite, 24,90 €", URL: "https://shop.example.fr/p/abc123"},
			score:   50,
			signals: []string{SignalProductURL, SignalTransactional, SignalPrice},
		},
		{
			name:    "transactional keyword counts once",
			listing: models.Listing{Title: "Buy now, free shipping, add to cart", URL: "https://example.org/"},
			score:   5,
			signals: []string{SignalTransactional},
		},
		{
			name:    "topic keywords accumulate",
			listing: models.Listing{Title: "Trending popular fashion", URL: "https://example.org/"},
			score:   10 + 10 + 10 + 15 + 15,
			signals: []string{"topic:trending", "topic:popular", "topic:fashion", SignalTrending, SignalPopular},
		},
		{
			name:    "numeric id page on a regional marketplace",
			listing: models.Listing{Title: "Desk organizer", URL: "https://www.amazon.co.uk/organizer-123456.html"},
			score:   45,
			signals: []string{SignalProductURL, SignalCommerceDomain},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewRelevanceFilter().Evaluate(tt.listing, DefaultMinRelevance)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.signals, res.Signals)
			assert.Equal(t, tt.score >= DefaultMinRelevance, res.Accepted)
		})
	}
}

func TestRelevanceFilter_Deterministic(t *testing.T) {
	l := models.Listing{Title: "Viral LED lamp", Description: "$19.99 buy now", URL: "https://www.temu.com/item/77.html"}
	f := NewRelevanceFilter()

	assert.Equal(t, f.Evaluate(l, 30), f.Evaluate(l, 30))
}

func TestIsCommerceDomain(t *testing.T) {
	assert.True(t, IsCommerceDomain("aliexpress.com"))
	assert.True(t, IsCommerceDomain("amazon.co.uk"))
	assert.True(t, IsCommerceDomain("www.etsy.com"))
	assert.False(t, IsCommerceDomain("myblog.com"))
	assert.False(t, IsCommerceDomain(""))
}
