package invoice

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	StatusDraft = "draft"
	StatusSent  = "sent"
	StatusPaid  = "paid"
	StatusVoid  = "void"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusVoid:
		return true
	}
	return false
}

// Invoice is a manually billed invoice, separate from the invoice fields
// carried on a treatment. It never feeds commissions or dashboard metrics.
type Invoice struct {
	ID            int64           `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	PatientID     *int64          `json:"patientId,omitempty"`
	BillTo        string          `json:"billTo"`
	InvoiceDate   civil.Date      `json:"invoiceDate"`
	DueDate       *civil.Date     `json:"dueDate,omitempty"`
	Status        string          `json:"status"`
	Items         []Item          `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxRate       decimal.Decimal `json:"taxRate"`
	TaxAmount     decimal.Decimal `json:"taxAmount"`
	Total         decimal.Decimal `json:"total"`
	Notes         *string         `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type Item struct {
	ID          int64           `json:"id"`
	InvoiceID   int64           `json:"invoiceId"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Amount      decimal.Decimal `json:"amount"`
}

type ItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// Request is the create and update body. An empty invoiceNumber is
// assigned on create.
type Request struct {
	InvoiceNumber string           `json:"invoiceNumber" validate:"omitempty,max=50"`
	PatientID     *int64           `json:"patientId" validate:"omitempty,gt=0"`
	BillTo        string           `json:"billTo" validate:"required,max=500"`
	InvoiceDate   *civil.Date      `json:"invoiceDate" validate:"required"`
	DueDate       *civil.Date      `json:"dueDate"`
	Status        string           `json:"status" validate:"omitempty,oneof=draft sent paid void"`
	Items         []ItemRequest    `json:"items" validate:"required,min=1,dive"`
	TaxRate       *decimal.Decimal `json:"taxRate"`
	Notes         *string          `json:"notes" validate:"omitempty,max=2000"`
}

type Filter struct {
	Status    string
	PatientID *int64
	Search    string
}
