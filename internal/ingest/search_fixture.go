package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/david/product-scout/internal/models"
)

type fixtureItem struct {
	title       string
	description string
}

var fixtureItems = []fixtureItem{
	{"Wireless Bluetooth Earbuds", "Trending gadget with free shipping. Price: $29.99. Popular with dropshipping stores."},
	{"LED Sunset Projection Lamp", "Viral home décoration lamp for bedroom and living room, 24,90 €. Buy now."},
	{"Posture Corrector Belt", "Best-seller fitness accessory, adjustable, ships worldwide. USD 15.50."},
	{"Silicone Pet Grooming Glove", "Popular pet product for dog owners. Free shipping over $20."},
	{"Portable Mini Blender", "Compact kitchen gadget, USB rechargeable, £19.99. Trending on social media."},
	{"Magnetic Phone Car Mount", "Universal smartphone holder, pack of 2, $12.99 at checkout."},
	{"Kids Montessori Busy Board", "Educational toy for toddlers, handmade wood, 32 EUR. Add to cart."},
	{"Heatless Hair Curling Rod", "Beauty skincare trend: heatless curls overnight, $9.99. A dropshipping favorite."},
}

// FixtureSearcher returns synthetic listings labeled with the mock_data
// source. Output depends only on the query and the clock, so repeated runs
// dedupe onto the same URLs.
type FixtureSearcher struct {
	now func() time.Time
}

func NewFixtureSearcher(now func() time.Time) *FixtureSearcher {
	if now == nil {
		now = time.Now
	}
	return &FixtureSearcher{now: now}
}

func (f *FixtureSearcher) Name() string { return string(models.SourceMockData) }

func (f *FixtureSearcher) Search(ctx context.Context, query string, maxResults int) ([]models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(fixtureItems)
	if maxResults > 0 && maxResults < n {
		n = maxResults
	}

	h := fnv.New32a()
	h.Write([]byte(query))
	seed := h.Sum32()%900000 + 100000
	slug := slugify(query)
	now := f.now().UTC()

	out := make([]models.Listing, 0, n)
	for i := 0; i < n; i++ {
		item := fixtureItems[(int(seed)+i)%len(fixtureItems)]
		var u string
		if i%2 == 0 {
			u = fmt.Sprintf("https://www.aliexpress.com/item/100500%d%02d.html", seed, i)
		} else {
			u = fmt.Sprintf("https://example.com/product/%s-%s-%d", slugify(item.title), slug, i)
		}
		out = append(out, models.Listing{
			Title:        item.title,
			Description:  item.description,
			URL:          u,
			Query:        query,
			Source:       models.SourceMockData,
			DiscoveredAt: now,
		})
	}
	return out, nil
}
