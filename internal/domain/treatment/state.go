package treatment

import (
	"cloud.google.com/go/civil"

	"github.com/woundcare/clinic/internal/platform/httperr"
)

// ErrPaymentDateRequired is returned when closing without a payment date.
var ErrPaymentDateRequired = httperr.Invalid("paymentDate", "paymentDate is required when closing an invoice")

// Transition moves t to status. Closing needs a payment date; any other
// status clears it. Re-opening a closed invoice is allowed.
func Transition(t *Treatment, status string, paymentDate *civil.Date) error {
	if !ValidStatus(status) {
		return httperr.Invalid("invoiceStatus", "must be one of open, payable, closed")
	}
	if status == StatusClosed {
		if paymentDate == nil {
			return ErrPaymentDateRequired
		}
		d := *paymentDate
		t.PaymentDate = &d
	} else {
		t.PaymentDate = nil
	}
	t.InvoiceStatus = status
	return nil
}
