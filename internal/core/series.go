package core

// PeriodTotal is one point of the monthly income/expense chart.
type PeriodTotal struct {
	Period  string  `json:"period"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Net     float64 `json:"net"`
}

// MonthlySeries collapses aggregated entries into one point per period,
// in period order.
func MonthlySeries(aggregated []AggregatedRecord) []PeriodTotal {
	out := []PeriodTotal{}
	for _, r := range aggregated {
		n := len(out)
		if n == 0 || out[n-1].Period != r.Period {
			out = append(out, PeriodTotal{Period: r.Period})
			n++
		}
		p := &out[n-1]
		p.Income += r.Income
		p.Expense += r.Expense
		p.Net = p.Income - p.Expense
	}
	return out
}
