package treatment

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/pkg/money"
)

var (
	invoiceShare = decimal.RequireFromString("0.6")
	poolShare    = decimal.RequireFromString("0.3")
)

// PayableTermDays is the default gap between invoice and payable date.
const PayableTermDays = 30

// Derive recomputes every derived amount from wound size, unit price and
// the assignment rates. Each step rounds to cents before the next uses it.
func Derive(t *Treatment) {
	t.TotalRevenue = money.Round(t.WoundSizeSqCm.Mul(t.PricePerSqCm))
	t.InvoiceTotal = money.Round(t.TotalRevenue.Mul(invoiceShare))
	t.TotalCommissionPool = money.Round(t.InvoiceTotal.Mul(poolShare))

	paid := decimal.Zero
	for i := range t.Commissions {
		a := &t.Commissions[i]
		a.CommissionAmount = money.Percent(t.InvoiceTotal, a.CommissionRate)
		paid = paid.Add(a.CommissionAmount)
	}
	// Negative when the rates exceed the pool; reported as is.
	t.ClinicCommission = t.TotalCommissionPool.Sub(paid)
}

// DefaultPayable returns invoiceDate + PayableTermDays.
func DefaultPayable(invoiceDate civil.Date) civil.Date {
	return invoiceDate.AddDays(PayableTermDays)
}
