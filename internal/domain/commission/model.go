package commission

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ReportRow is one sales rep's commission on one treatment.
type ReportRow struct {
	TreatmentID      int64           `json:"treatmentId"`
	PatientID        int64           `json:"patientId"`
	PatientName      string          `json:"patientName"`
	SalesRepID       int64           `json:"salesRepId"`
	SalesRepName     string          `json:"salesRepName"`
	TreatmentNumber  int             `json:"treatmentNumber"`
	TreatmentDate    *civil.Date     `json:"treatmentDate,omitempty"`
	InvoiceNumber    *string         `json:"invoiceNumber,omitempty"`
	InvoiceDate      *civil.Date     `json:"invoiceDate,omitempty"`
	InvoiceStatus    string          `json:"invoiceStatus"`
	InvoiceTotal     decimal.Decimal `json:"invoiceTotal"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
}

// ReferenceDate is the invoice date, else the treatment date.
func (r *ReportRow) ReferenceDate() *civil.Date {
	if r.InvoiceDate != nil {
		return r.InvoiceDate
	}
	return r.TreatmentDate
}

// Period is one rep's half-month payout, derived on every read.
type Period struct {
	SalesRepID      int64           `json:"salesRepId"`
	SalesRepName    string          `json:"salesRepName"`
	PeriodStart     civil.Date      `json:"periodStart"`
	PeriodEnd       civil.Date      `json:"periodEnd"`
	PaymentDate     civil.Date      `json:"paymentDate"`
	TotalCommission decimal.Decimal `json:"totalCommission"`
	InvoiceCount    int             `json:"invoiceCount"`
	Rows            []ReportRow     `json:"rows"`
	DatePaid        *civil.Date     `json:"datePaid,omitempty"`
	Reference       *string         `json:"reference,omitempty"`
}

// Payout records that a period was paid out to a rep.
type Payout struct {
	ID          int64      `json:"id"`
	SalesRepID  int64      `json:"salesRepId"`
	PeriodStart civil.Date `json:"periodStart"`
	PeriodEnd   civil.Date `json:"periodEnd"`
	DatePaid    civil.Date `json:"datePaid"`
	Reference   *string    `json:"reference,omitempty"`
	RecordedBy  string     `json:"recordedBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type PayoutRequest struct {
	SalesRepID  int64       `json:"salesRepId" validate:"required,gt=0"`
	PeriodStart *civil.Date `json:"periodStart" validate:"required"`
	PeriodEnd   *civil.Date `json:"periodEnd" validate:"required"`
	DatePaid    *civil.Date `json:"datePaid" validate:"required"`
	Reference   *string     `json:"reference" validate:"omitempty,max=200"`
}

// PayoutKey identifies a payout for deletion.
type PayoutKey struct {
	SalesRepID  int64
	PeriodStart civil.Date
	PeriodEnd   civil.Date
}

type Filter struct {
	SalesRepID *int64
	Status     string
	// From and To bound the reference date. Zero values are open.
	From civil.Date
	To   civil.Date
}
