package core

import "sort"

type (
	Totals struct {
		Income    float64 `json:"total_income"`
		Expense   float64 `json:"total_expense"`
		Net       float64 `json:"net"`
		MarginPct float64 `json:"margin_pct"`
	}

	// CategoryStat sums every aggregated entry sharing one category.
	CategoryStat struct {
		Category        string  `json:"category"`
		IncomeTotal     float64 `json:"income_total"`
		ExpenseTotal    float64 `json:"expense_total"`
		IncomeSharePct  float64 `json:"income_share_pct"`
		ExpenseSharePct float64 `json:"expense_share_pct"`
		Count           int     `json:"count"`
	}

	CategoryRankEntry struct {
		Rank             int     `json:"rank"`
		Category         string  `json:"category"`
		ExpenseValue     float64 `json:"expense_value"`
		ExpenseSharePct  float64 `json:"expense_share_pct"`
		TransactionCount int     `json:"transaction_count"`
	}

	Analysis struct {
		Totals        Totals              `json:"totals"`
		CategoryStats []CategoryStat      `json:"category_stats"`
		Ranking       []CategoryRankEntry `json:"ranking"`
		TopCategory   CategoryRankEntry   `json:"top_category"`
	}
)

// NoCategoryEntry is the top category reported when nothing was spent.
func NoCategoryEntry() CategoryRankEntry {
	return CategoryRankEntry{Rank: 1, Category: NoCategoryLabel}
}

// Analyze derives totals, per-category statistics and the expense ranking
// from an aggregated series. TopCategory is never the zero value.
func Analyze(aggregated []AggregatedRecord) Analysis {
	var a Analysis
	index := make(map[string]int)
	for _, r := range aggregated {
		a.Totals.Income += r.Income
		a.Totals.Expense += r.Expense

		i, ok := index[r.Category]
		if !ok {
			i = len(a.CategoryStats)
			index[r.Category] = i
			a.CategoryStats = append(a.CategoryStats, CategoryStat{Category: r.Category})
		}
		st := &a.CategoryStats[i]
		st.IncomeTotal += r.Income
		st.ExpenseTotal += r.Expense
		st.Count++
	}

	a.Totals.Net = a.Totals.Income - a.Totals.Expense
	a.Totals.MarginPct = percent(a.Totals.Net, a.Totals.Income)

	for i := range a.CategoryStats {
		st := &a.CategoryStats[i]
		st.IncomeSharePct = percent(st.IncomeTotal, a.Totals.Income)
		st.ExpenseSharePct = percent(st.ExpenseTotal, a.Totals.Expense)
	}
	if a.CategoryStats == nil {
		a.CategoryStats = []CategoryStat{}
	}

	a.Ranking = Rank(a.CategoryStats)
	a.TopCategory = NoCategoryEntry()
	if len(a.Ranking) > 0 {
		a.TopCategory = a.Ranking[0]
	}
	return a
}

// Rank orders categories with spending by expense, descending. Ties keep the
// order of stats.
func Rank(stats []CategoryStat) []CategoryRankEntry {
	spent := make([]CategoryStat, 0, len(stats))
	for _, st := range stats {
		if st.ExpenseTotal > 0 {
			spent = append(spent, st)
		}
	}
	sort.SliceStable(spent, func(i, j int) bool { return spent[i].ExpenseTotal > spent[j].ExpenseTotal })

	out := make([]CategoryRankEntry, len(spent))
	for i, st := range spent {
		out[i] = CategoryRankEntry{
			Rank:             i + 1,
			Category:         st.Category,
			ExpenseValue:     st.ExpenseTotal,
			ExpenseSharePct:  st.ExpenseSharePct,
			TransactionCount: st.Count,
		}
	}
	return out
}

// TopN returns at most n leading entries of the ranking.
func (a Analysis) TopN(n int) []CategoryRankEntry {
	if n < 0 || n >= len(a.Ranking) {
		return a.Ranking
	}
	return a.Ranking[:n]
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}
