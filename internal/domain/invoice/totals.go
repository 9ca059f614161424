package invoice

import (
	"github.com/shopspring/decimal"

	"github.com/woundcare/clinic/pkg/money"
)

// Compute fills the derived amounts: each line is round(quantity × unit
// price), tax is round(subtotal × taxRate / 100).
func Compute(inv *Invoice) {
	subtotal := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Position = i + 1
		it.Amount = money.Round(it.Quantity.Mul(it.UnitPrice))
		subtotal = subtotal.Add(it.Amount)
	}
	inv.Subtotal = subtotal
	inv.TaxAmount = money.Percent(subtotal, inv.TaxRate)
	inv.Total = subtotal.Add(inv.TaxAmount)
}
