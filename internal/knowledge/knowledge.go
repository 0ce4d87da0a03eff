// Package knowledge holds the static product knowledge base: category
// economics, seasonal calendars and the keyword lists used by scoring.
//
// A Base is loaded once and shared read-only between goroutines. Callers must
// not mutate the slices it exposes.
package knowledge

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed data/knowledge.yaml
var embeddedYAML []byte

type TrendCycle string

const (
	CycleShort  TrendCycle = "short"
	CycleMedium TrendCycle = "medium"
	CycleLong   TrendCycle = "long"
)

type WholesalePrices struct {
	Standard float64 `yaml:"standard"`
	Premium  float64 `yaml:"premium"`
}

type Category struct {
	Name             string           `yaml:"name"`
	ProfitMargin     float64          `yaml:"profit_margin"`
	CompetitionLevel float64          `yaml:"competition_level"`
	TrendCycle       TrendCycle       `yaml:"trend_cycle"`
	Wholesale        *WholesalePrices `yaml:"wholesale,omitempty"`
	Keywords         []string         `yaml:"keywords"`
}

// SeasonalEntry is an event or a season with the months it is active in.
type SeasonalEntry struct {
	Name     string       `yaml:"name"`
	Keywords []string     `yaml:"keywords"`
	Months   []time.Month `yaml:"months"`
	Boost    int          `yaml:"boost"`
}

// Matches reports whether any of the entry keywords occurs in text.
// text is expected to be lowercased already.
func (e SeasonalEntry) Matches(text string) bool {
	return ContainsAny(text, e.Keywords)
}

func (e SeasonalEntry) ActiveIn(m time.Month) bool {
	for _, month := range e.Months {
		if month == m {
			return true
		}
	}
	return false
}

type Keywords struct {
	Popularity      []string `yaml:"popularity"`
	Profitability   []string `yaml:"profitability"`
	Luxury          []string `yaml:"luxury"`
	Compact         []string `yaml:"compact"`
	LowCompetition  []string `yaml:"low_competition"`
	HighCompetition []string `yaml:"high_competition"`
	BulkSupply      []string `yaml:"bulk_supply"`
	Evergreen       []string `yaml:"evergreen"`
	Premium         []string `yaml:"premium"`
}

type Pricing struct {
	DefaultWholesale float64 `yaml:"default_wholesale"`
	DefaultRetail    float64 `yaml:"default_retail"`
	DefaultMargin    float64 `yaml:"default_margin"`
}

type Base struct {
	Version    string          `yaml:"version"`
	Pricing    Pricing         `yaml:"pricing"`
	Categories []Category      `yaml:"categories"`
	Events     []SeasonalEntry `yaml:"events"`
	Seasons    []SeasonalEntry `yaml:"seasons"`
	Keywords   Keywords        `yaml:"keywords"`

	totalKeywords int
	byName        map[string]int
}

var (
	defaultOnce sync.Once
	defaultBase *Base
	defaultErr  error
)

// Default returns the knowledge base compiled into the binary.
func Default() *Base {
	defaultOnce.Do(func() {
		defaultBase, defaultErr = Parse(embeddedYAML)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("knowledge: embedded asset is invalid: %v", defaultErr))
	}
	return defaultBase
}

// Load reads a knowledge base from path, or returns Default when path is empty.
func Load(path string) (*Base, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read knowledge base %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML knowledge base. Keywords are lowercased.
func Parse(data []byte) (*Base, error) {
	var b Base
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base: %w", err)
	}
	if err := b.init(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Base) init() error {
	if len(b.Categories) == 0 {
		return fmt.Errorf("knowledge base has no categories")
	}
	if b.Pricing.DefaultMargin <= 0 || b.Pricing.DefaultMargin >= 1 {
		return fmt.Errorf("default margin %.2f out of range (0,1)", b.Pricing.DefaultMargin)
	}

	b.byName = make(map[string]int, len(b.Categories))
	b.totalKeywords = 0
	for i := range b.Categories {
		c := &b.Categories[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if _, dup := b.byName[c.Name]; dup {
			return fmt.Errorf("duplicate category %q", c.Name)
		}
		if c.ProfitMargin < 0 || c.ProfitMargin >= 1 {
			return fmt.Errorf("category %q: profit margin %.2f out of range [0,1)", c.Name, c.ProfitMargin)
		}
		if c.CompetitionLevel < 0 || c.CompetitionLevel > 1 {
			return fmt.Errorf("category %q: competition level %.2f out of range [0,1]", c.Name, c.CompetitionLevel)
		}
		switch c.TrendCycle {
		case CycleShort, CycleMedium, CycleLong:
		default:
			return fmt.Errorf("category %q: unknown trend cycle %q", c.Name, c.TrendCycle)
		}
		c.Keywords = lowerAll(c.Keywords)
		b.byName[c.Name] = i
		b.totalKeywords += len(c.Keywords)
	}

	for _, group := range [][]SeasonalEntry{b.Events, b.Seasons} {
		for i := range group {
			e := &group[i]
			if len(e.Months) == 0 {
				return fmt.Errorf("seasonal entry %q has no months", e.Name)
			}
			for _, m := range e.Months {
				if m < time.January || m > time.December {
					return fmt.Errorf("seasonal entry %q: month %d out of range", e.Name, m)
				}
			}
			e.Keywords = lowerAll(e.Keywords)
		}
	}

	k := &b.Keywords
	for _, list := range []*[]string{
		&k.Popularity, &k.Profitability, &k.Luxury, &k.Compact, &k.LowCompetition,
		&k.HighCompetition, &k.BulkSupply, &k.Evergreen, &k.Premium,
	} {
		*list = lowerAll(*list)
	}
	return nil
}

// TotalKeywords is the number of category keywords across all categories.
func (b *Base) TotalKeywords() int {
	return b.totalKeywords
}

// Category looks a category up by name.
func (b *Base) Category(name string) (*Category, bool) {
	i, ok := b.byName[name]
	if !ok {
		return nil, false
	}
	return &b.Categories[i], true
}

// ContainsAny reports whether any keyword is a substring of text.
func ContainsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// CountPresent counts how many distinct keywords occur in text.
func CountPresent(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
