package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/david/product-scout/internal/models"
	"github.com/gocolly/colly/v2"
)

// PageEnricher visits a listing's page with colly and copies Open Graph and
// product meta tags into fields that are still empty.
type PageEnricher struct {
	RequestTimeout time.Duration
	DomainDelay    time.Duration
	MaxBodySize    int
	// Transport defaults to NewSafeTransport.
	Transport http.RoundTripper
}

func NewPageEnricher() *PageEnricher {
	return &PageEnricher{
		RequestTimeout: 15 * time.Second,
		DomainDelay:    time.Second,
		MaxBodySize:    5 * 1024 * 1024,
	}
}

func (e *PageEnricher) collector(timeout time.Duration) *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.MaxBodySize(e.MaxBodySize),
		colly.DetectCharset(),
		colly.AllowURLRevisit(),
	)
	rt := e.Transport
	if rt == nil {
		rt = NewSafeTransport()
	}
	c.WithTransport(rt)
	c.SetRequestTimeout(timeout)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       e.DomainDelay,
	})
	return c
}

// Enrich fetches l.URL once. Fields already set on l are never overwritten.
func (e *PageEnricher) Enrich(ctx context.Context, l *models.Listing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := e.RequestTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout || timeout <= 0 {
			timeout = left
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	meta := make(map[string]string)
	var pageTitle string
	c := e.collector(timeout)
	c.OnHTML("meta", func(el *colly.HTMLElement) {
		key := el.Attr("property")
		if key == "" {
			key = el.Attr("name")
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return
		}
		if _, seen := meta[key]; !seen {
			meta[key] = strings.TrimSpace(el.Attr("content"))
		}
	})
	c.OnHTML("title", func(el *colly.HTMLElement) {
		if pageTitle == "" {
			pageTitle = normalizeSpace(el.Text)
		}
	})

	if err := c.Visit(l.URL); err != nil {
		return fmt.Errorf("enrich %s: %w", l.URL, err)
	}

	applyPageMeta(l, meta, pageTitle)
	log.WithFields(log.Fields{"url": l.URL, "tags": len(meta)}).Debug("enrich: page read")
	return nil
}

func applyPageMeta(l *models.Listing, meta map[string]string, pageTitle string) {
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := meta[k]; v != "" {
				return v
			}
		}
		return ""
	}

	if l.Title == "" {
		l.Title = CleanSnippet(first("og:title", "twitter:title"))
		if l.Title == "" {
			l.Title = pageTitle
		}
	}
	if l.Description == "" {
		l.Description = CleanSnippet(first("og:description", "description", "twitter:description"))
	}

	md := &l.Metadata
	if md.ImageURL == "" {
		md.ImageURL = first("og:image", "og:image:url", "twitter:image")
	}
	if md.Brand == "" {
		md.Brand = first("product:brand", "og:brand")
	}
	if md.Category == "" {
		md.Category = first("product:category")
	}
	if md.Supplier == "" {
		md.Supplier = first("og:site_name")
	}
	if md.Price == nil {
		if d, ok := parseAmount(first("product:price:amount", "og:price:amount")); ok {
			md.Price = &d
			md.Currency = strings.ToUpper(first("product:price:currency", "og:price:currency"))
		}
	}
}
