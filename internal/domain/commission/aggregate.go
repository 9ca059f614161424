package commission

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/pkg/dates"
)

// Window is a half-month payout window.
type Window struct {
	Start   civil.Date
	End     civil.Date
	Payment civil.Date
}

// Windows splits month into the 1st-15th window, paid on the 15th, and the
// 16th-last day window, paid on the last day.
func Windows(month civil.Date) [2]Window {
	first := dates.FirstOfMonth(month)
	mid := civil.Date{Year: first.Year, Month: first.Month, Day: 15}
	last := dates.LastOfMonth(month)
	return [2]Window{
		{Start: first, End: mid, Payment: mid},
		{Start: mid.AddDays(1), End: last, Payment: last},
	}
}

// IsWindow reports whether start..end is one of the windows of its month.
func IsWindow(start, end civil.Date) bool {
	for _, w := range Windows(start) {
		if w.Start == start && w.End == end {
			return true
		}
	}
	return false
}

// Aggregate groups rows by sales rep name into the windows of month. Rows
// without a reference date, or outside the month, belong to no period;
// empty windows are dropped. Periods come back latest payment first, then
// by rep name.
func Aggregate(rows []ReportRow, month civil.Date) []Period {
	windows := Windows(month)

	type key struct {
		rep string
		w   int
	}
	byKey := make(map[key]*Period)
	for _, r := range rows {
		ref := r.ReferenceDate()
		if ref == nil {
			continue
		}
		for i, w := range windows {
			if !dates.Between(*ref, w.Start, w.End) {
				continue
			}
			k := key{rep: r.SalesRepName, w: i}
			p, ok := byKey[k]
			if !ok {
				p = &Period{
					SalesRepID:      r.SalesRepID,
					SalesRepName:    r.SalesRepName,
					PeriodStart:     w.Start,
					PeriodEnd:       w.End,
					PaymentDate:     w.Payment,
					TotalCommission: decimal.Zero,
				}
				byKey[k] = p
			}
			p.TotalCommission = p.TotalCommission.Add(r.CommissionAmount)
			p.InvoiceCount++
			p.Rows = append(p.Rows, r)
			break
		}
	}

	out := make([]Period, 0, len(byKey))
	for _, p := range byKey {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PaymentDate != out[j].PaymentDate {
			return out[i].PaymentDate.After(out[j].PaymentDate)
		}
		return out[i].SalesRepName < out[j].SalesRepName
	})
	return out
}
