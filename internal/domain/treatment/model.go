package treatment

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Invoice lifecycle states.
const (
	StatusOpen    = "open"
	StatusPayable = "payable"
	StatusClosed  = "closed"
)

func ValidStatus(s string) bool {
	return s == StatusOpen || s == StatusPayable || s == StatusClosed
}

// Assignment is one sales rep's share of a treatment's commission.
type Assignment struct {
	ID               int64           `json:"id,omitempty"`
	TreatmentID      int64           `json:"treatmentId,omitempty"`
	SalesRepID       int64           `json:"salesRepId"`
	SalesRepName     string          `json:"salesRepName"`
	CommissionRate   decimal.Decimal `json:"commissionRate"`
	CommissionAmount decimal.Decimal `json:"commissionAmount"`
}

type Treatment struct {
	ID              int64           `json:"id"`
	PatientID       int64           `json:"patientId"`
	PatientName     string          `json:"patientName,omitempty"`
	TreatmentNumber int             `json:"treatmentNumber"`
	TreatmentDate   *civil.Date     `json:"treatmentDate,omitempty"`
	GraftType       string          `json:"graftType"`
	QCode           string          `json:"qCode"`
	WoundSizeSqCm   decimal.Decimal `json:"woundSizeSqCm"`
	PricePerSqCm    decimal.Decimal `json:"pricePerSqCm"`

	TotalRevenue        decimal.Decimal `json:"totalRevenue"`
	InvoiceTotal        decimal.Decimal `json:"invoiceTotal"`
	TotalCommissionPool decimal.Decimal `json:"totalCommissionPool"`
	ClinicCommission    decimal.Decimal `json:"clinicCommission"`

	InvoiceStatus string      `json:"invoiceStatus"`
	InvoiceDate   *civil.Date `json:"invoiceDate,omitempty"`
	InvoiceNumber *string     `json:"invoiceNumber,omitempty"`
	PayableDate   *civil.Date `json:"payableDate,omitempty"`
	PaymentDate   *civil.Date `json:"paymentDate,omitempty"`

	// Single-rep fields kept for records that predate multi-rep assignments.
	SalesRepID             *int64           `json:"salesRepId,omitempty"`
	SalesRepCommissionRate *decimal.Decimal `json:"salesRepCommissionRate,omitempty"`

	Commissions []Assignment `json:"commissions"`
	Notes       *string      `json:"notes,omitempty"`
	IsOverdue   bool         `json:"isOverdue"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

type AssignmentRequest struct {
	SalesRepID int64 `json:"salesRepId" validate:"required,gt=0"`
	// CommissionRate defaults to the rep's default rate.
	CommissionRate *decimal.Decimal `json:"commissionRate"`
}

// Request is the create and full-update body. Derived amounts are never
// read from the client.
type Request struct {
	PatientID              int64               `json:"patientId" validate:"required,gt=0"`
	TreatmentNumber        int                 `json:"treatmentNumber" validate:"gte=0"`
	TreatmentDate          *civil.Date         `json:"treatmentDate"`
	GraftType              string              `json:"graftType" validate:"required,max=100"`
	QCode                  string              `json:"qCode" validate:"required,max=20"`
	WoundSizeSqCm          decimal.Decimal     `json:"woundSizeSqCm"`
	PricePerSqCm           decimal.Decimal     `json:"pricePerSqCm"`
	InvoiceStatus          string              `json:"invoiceStatus" validate:"omitempty,oneof=open payable closed"`
	InvoiceDate            *civil.Date         `json:"invoiceDate"`
	InvoiceNumber          *string             `json:"invoiceNumber" validate:"omitempty,max=50"`
	PayableDate            *civil.Date         `json:"payableDate"`
	PaymentDate            *civil.Date         `json:"paymentDate"`
	SalesRepID             *int64              `json:"salesRepId" validate:"omitempty,gt=0"`
	SalesRepCommissionRate *decimal.Decimal    `json:"salesRepCommissionRate"`
	Commissions            []AssignmentRequest `json:"commissions" validate:"omitempty,dive"`
	Notes                  *string             `json:"notes"`
}

// StatusRequest is the body of PATCH /treatments/:id/invoice-status.
type StatusRequest struct {
	InvoiceStatus string      `json:"invoiceStatus" validate:"required"`
	PaymentDate   *civil.Date `json:"paymentDate"`
}

type Filter struct {
	PatientID  *int64
	SalesRepID *int64
	Status     string
	// From and To bound the invoice date. Zero values are open.
	From civil.Date
	To   civil.Date
}
