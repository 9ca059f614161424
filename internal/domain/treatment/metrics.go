package treatment

import (
	"math"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/pkg/dates"
)

// Metrics are the dashboard receivables figures.
type Metrics struct {
	Today            civil.Date      `json:"today"`
	TreatmentCount   int             `json:"treatmentCount"`
	OutstandingTotal decimal.Decimal `json:"outstandingTotal"`
	OutstandingCount int             `json:"outstandingCount"`
	OverdueAmount    decimal.Decimal `json:"overdueAmount"`
	OverdueCount     int             `json:"overdueCount"`
	PaidThisMonth    decimal.Decimal `json:"paidThisMonth"`
	// AverageDaysToPayment is the mean of today minus payable date over
	// closed treatments, so it keeps growing after payment.
	AverageDaysToPayment float64 `json:"averageDaysToPayment"`
	// AverageDaysToSettle is the mean of payment date minus payable date.
	AverageDaysToSettle float64        `json:"averageDaysToSettle"`
	CountByStatus       map[string]int `json:"countByStatus"`
}

// IsOverdue reports a payable date before today on an invoice that is not
// closed.
func IsOverdue(t *Treatment, today civil.Date) bool {
	return t.InvoiceStatus != StatusClosed && t.PayableDate != nil && t.PayableDate.Before(today)
}

// ComputeMetrics aggregates ts as of today. When from or to is set only
// treatments with an invoice date inside the range count.
func ComputeMetrics(ts []*Treatment, today, from, to civil.Date) Metrics {
	m := Metrics{
		Today:            today,
		OutstandingTotal: decimal.Zero,
		OverdueAmount:    decimal.Zero,
		PaidThisMonth:    decimal.Zero,
		CountByStatus:    map[string]int{StatusOpen: 0, StatusPayable: 0, StatusClosed: 0},
	}
	filtered := from.IsValid() || to.IsValid()

	var (
		paymentDays, settleDays int
		paymentN, settleN       int
	)
	for _, t := range ts {
		if filtered && (t.InvoiceDate == nil || !dates.Between(*t.InvoiceDate, from, to)) {
			continue
		}
		m.TreatmentCount++
		m.CountByStatus[t.InvoiceStatus]++

		switch t.InvoiceStatus {
		case StatusOpen, StatusPayable:
			m.OutstandingTotal = m.OutstandingTotal.Add(t.InvoiceTotal)
			m.OutstandingCount++
		case StatusClosed:
			if t.InvoiceDate != nil && dates.SameMonth(*t.InvoiceDate, today) {
				m.PaidThisMonth = m.PaidThisMonth.Add(t.InvoiceTotal)
			}
			if t.PayableDate != nil {
				paymentDays += today.DaysSince(*t.PayableDate)
				paymentN++
				if t.PaymentDate != nil {
					settleDays += t.PaymentDate.DaysSince(*t.PayableDate)
					settleN++
				}
			}
		}
		if IsOverdue(t, today) {
			m.OverdueAmount = m.OverdueAmount.Add(t.InvoiceTotal)
			m.OverdueCount++
		}
	}
	m.AverageDaysToPayment = mean(paymentDays, paymentN)
	m.AverageDaysToSettle = mean(settleDays, settleN)
	return m
}

// mean rounds to one decimal place; zero samples give 0.
func mean(sum, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(n)*10) / 10
}
