package domain

import (
	"sort"
	"time"
)

const unknownMonth = "unknown"

type UsageRecord struct {
	ReferralCode string
	PlanType     string
	PlanID       string
	CreatedAt    time.Time
	Commission   int
}

type ProductStats struct {
	Count      int `json:"count"`
	Commission int `json:"commission"`
}

type MonthlyStats struct {
	Month           string                  `json:"month"`
	Count           int                     `json:"count"`
	TotalCommission int                     `json:"totalCommission"`
	ByProduct       map[string]ProductStats `json:"byProduct"`
}

type ReferrerStats struct {
	ReferralCode    string                  `json:"referral_code"`
	TotalCount      int                     `json:"totalCount"`
	TotalCommission int                     `json:"totalCommission"`
	MonthlyStats    []MonthlyStats          `json:"monthlyStats"`
	ByProduct       map[string]ProductStats `json:"byProduct"`
}

// Aggregate folds usage records into per-referrer totals. Referrers come out in
// first-seen order; months are sorted descending as plain strings.
func Aggregate(records []UsageRecord) []ReferrerStats {
	order := make([]string, 0)
	byCode := make(map[string]*referrerAccumulator)

	for _, record := range records {
		acc, ok := byCode[record.ReferralCode]
		if !ok {
			acc = &referrerAccumulator{
				stats: ReferrerStats{
					ReferralCode: record.ReferralCode,
					ByProduct:    map[string]ProductStats{},
				},
				months: map[string]*MonthlyStats{},
			}
			byCode[record.ReferralCode] = acc
			order = append(order, record.ReferralCode)
		}
		acc.add(record)
	}

	out := make([]ReferrerStats, 0, len(order))
	for _, code := range order {
		out = append(out, byCode[code].build())
	}
	return out
}

// MonthKey buckets a timestamp by UTC year-month.
func MonthKey(t time.Time) string {
	if t.IsZero() {
		return unknownMonth
	}
	return t.UTC().Format("2006-01")
}

type referrerAccumulator struct {
	stats  ReferrerStats
	months map[string]*MonthlyStats
}

func (a *referrerAccumulator) add(record UsageRecord) {
	a.stats.TotalCount++
	a.stats.TotalCommission += record.Commission
	addProduct(a.stats.ByProduct, record)

	key := MonthKey(record.CreatedAt)
	month, ok := a.months[key]
	if !ok {
		month = &MonthlyStats{Month: key, ByProduct: map[string]ProductStats{}}
		a.months[key] = month
	}
	month.Count++
	month.TotalCommission += record.Commission
	addProduct(month.ByProduct, record)
}

func (a *referrerAccumulator) build() ReferrerStats {
	stats := a.stats
	stats.MonthlyStats = make([]MonthlyStats, 0, len(a.months))
	for _, month := range a.months {
		stats.MonthlyStats = append(stats.MonthlyStats, *month)
	}
	sort.Slice(stats.MonthlyStats, func(i, j int) bool {
		return stats.MonthlyStats[i].Month > stats.MonthlyStats[j].Month
	})
	return stats
}

func addProduct(products map[string]ProductStats, record UsageRecord) {
	product := products[record.PlanType]
	product.Count++
	product.Commission += record.Commission
	products[record.PlanType] = product
}
