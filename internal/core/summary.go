package core

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// TopN caps both ranked groupings of a summary.
	TopN = 8
	// RecurringThreshold is the minimum in-window count for a recurring merchant.
	RecurringThreshold = 3
	// DefaultWindowDays is used when a caller does not choose a window.
	DefaultWindowDays = 30

	UncategorizedLabel = "Uncategorized"
	UnknownMerchant    = "Unknown"
)

// CategorySpend is one entry of the category ranking.
type CategorySpend struct {
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
}

// MerchantSpend is one entry of the merchant ranking.
type MerchantSpend struct {
	Merchant string  `json:"merchant"`
	Count    int     `json:"count"`
	Total    float64 `json:"total"`
}

// SpendSummary is the result of a windowed spend aggregation.
type SpendSummary struct {
	WindowDays         int             `json:"window_days"`
	TotalSpend         float64         `json:"total_spend"`
	TopCategories      []CategorySpend `json:"top_categories"`
	TopMerchants       []MerchantSpend `json:"top_merchants"`
	RecurringMerchants []MerchantSpend `json:"recurring_merchants"`
}

// WindowCutoff returns the first calendar day included in a trailing window
// ending on now's date. Windows shorter than one day are widened to one.
func WindowCutoff(now time.Time, windowDays int) string {
	days := max(1, windowDays)
	y, m, d := now.Date()
	return time.Date(y, m, d-days, 0, 0, 0, 0, now.Location()).Format(time.DateOnly)
}

// CategoryLabel returns the first segment of a comma-joined category.
func CategoryLabel(category *string) string {
	if category == nil {
		return UncategorizedLabel
	}
	label, _, _ := strings.Cut(*category, ",")
	if label = strings.TrimSpace(label); label == "" {
		return UncategorizedLabel
	}
	return label
}

// MerchantLabel returns the merchant name or the unknown placeholder.
func MerchantLabel(name *string) string {
	if name == nil || *name == "" {
		return UnknownMerchant
	}
	return *name
}

// Summarize aggregates rows already filtered to the window and to positive
// amounts. Rows are ranked in the order given, which breaks ties between
// equal totals.
func Summarize(windowDays int, rows []SpendRow) SpendSummary {
	categories := newTally()
	merchants := newTally()
	total := decimal.Zero

	for _, r := range rows {
		amount := decimal.NewFromFloat(r.Amount)
		total = total.Add(amount)
		categories.add(CategoryLabel(r.Category), amount)
		merchants.add(MerchantLabel(r.Name), amount)
	}

	summary := SpendSummary{
		WindowDays:         windowDays,
		TotalSpend:         round2(total),
		TopCategories:      []CategorySpend{},
		TopMerchants:       []MerchantSpend{},
		RecurringMerchants: []MerchantSpend{},
	}
	for _, b := range categories.top(TopN) {
		summary.TopCategories = append(summary.TopCategories, CategorySpend{
			Category: b.label,
			Count:    b.count,
			Total:    round2(b.total),
		})
	}
	for _, b := range merchants.top(TopN) {
		summary.TopMerchants = append(summary.TopMerchants, MerchantSpend{
			Merchant: b.label,
			Count:    b.count,
			Total:    round2(b.total),
		})
	}
	// Recurring merchants are drawn from the truncated ranking only.
	for _, m := range summary.TopMerchants {
		if m.Count >= RecurringThreshold {
			summary.RecurringMerchants = append(summary.RecurringMerchants, m)
		}
	}
	return summary
}

type bucket struct {
	label string
	count int
	total decimal.Decimal
}

type tally struct {
	order []*bucket
	index map[string]*bucket
}

func newTally() *tally {
	return &tally{index: make(map[string]*bucket)}
}

func (t *tally) add(label string, amount decimal.Decimal) {
	b, ok := t.index[label]
	if !ok {
		b = &bucket{label: label}
		t.index[label] = b
		t.order = append(t.order, b)
	}
	b.count++
	b.total = b.total.Add(amount)
}

func (t *tally) top(n int) []*bucket {
	ranked := make([]*bucket, len(t.order))
	copy(ranked, t.order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].total.GreaterThan(ranked[j].total)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func round2(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
