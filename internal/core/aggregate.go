package core

import (
	"sort"
	"strings"
)

// Aggregate merges record batches (one per source) into one entry per
// (period, category) key, or per (period, category, source) in PerSource
// mode. Amounts of equal keys are summed. The result is sorted by period;
// entries of the same period keep first-seen order.
func Aggregate(batches [][]FinancialRecord, mode AggregationMode) []AggregatedRecord {
	index := make(map[string]int)
	var out []AggregatedRecord
	for _, batch := range batches {
		for _, r := range batch {
			key := aggregateKey(r, mode)
			if i, ok := index[key]; ok {
				out[i].Income += r.Income
				out[i].Expense += r.Expense
				continue
			}
			entry := AggregatedRecord{
				Period:   r.Period,
				Category: r.Category,
				Income:   r.Income,
				Expense:  r.Expense,
			}
			if mode == PerSource {
				entry.SourceID = r.SourceID
			}
			index[key] = len(out)
			out = append(out, entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	if out == nil {
		out = []AggregatedRecord{}
	}
	return out
}

func aggregateKey(r FinancialRecord, mode AggregationMode) string {
	parts := []string{r.Period, r.Category}
	if mode == PerSource {
		parts = append(parts, r.SourceID)
	}
	return strings.Join(parts, "\x00")
}

// FilterRecords keeps records matching the view's source and period bounds.
func FilterRecords(records []FinancialRecord, v View) []FinancialRecord {
	if v.SourceID == "" && v.From == "" && v.To == "" {
		return records
	}
	out := make([]FinancialRecord, 0, len(records))
	for _, r := range records {
		if v.SourceID != "" && r.SourceID != v.SourceID {
			continue
		}
		if v.From != "" && r.Period < v.From {
			continue
		}
		if v.To != "" && r.Period > v.To {
			continue
		}
		out = append(out, r)
	}
	return out
}
