package ingest

import (
	"html"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/david/product-scout/internal/models"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/publicsuffix"
)

var snippetPolicy = bluemonday.StrictPolicy()

// TruncateText cuts a string to at most maxLen bytes, appending an ellipsis
// if truncated. The cut never splits a rune.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	suffix := ""
	if maxLen > 3 {
		maxLen -= 3
		suffix = "..."
	}
	for maxLen > 0 && !utf8.RuneStart(text[maxLen]) {
		maxLen--
	}
	return text[:maxLen] + suffix
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return normalizeSpace(doc)
	}
	return normalizeSpace(d.Text())
}

// CleanSnippet strips markup from a search snippet (search engines wrap
// matches in <strong>) and decodes entities.
func CleanSnippet(s string) string {
	return normalizeSpace(html.UnescapeString(snippetPolicy.Sanitize(s)))
}

// ExtractDomain returns the registrable domain of rawURL (shop.example.co.uk
// -> example.co.uk). Hosts without a public suffix are returned as-is.
func ExtractDomain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if net.ParseIP(host) != nil {
		return host
	}
	if domain, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return domain
	}
	return strings.TrimPrefix(host, "www.")
}

// NormalizeListing cleans text fields and fills in missing defaults in place.
func NormalizeListing(l *models.Listing, now time.Time) {
	l.Title = TruncateText(CleanSnippet(l.Title), 500)
	l.Description = TruncateText(CleanSnippet(l.Description), 2000)
	l.URL = strings.TrimSpace(l.URL)
	l.Query = normalizeSpace(l.Query)
	if l.Domain == "" {
		l.Domain = ExtractDomain(l.URL)
	}
	if !l.Source.Valid() {
		l.Source = models.SourceManual
	}
	if l.DiscoveredAt.IsZero() {
		l.DiscoveredAt = now.UTC()
	}
	if l.Metadata.Price == nil {
		if price, currency, ok := ParsePrice(l.Title + " " + l.Description); ok {
			l.Metadata.Price = &price
			l.Metadata.Currency = currency
		}
	}
}
