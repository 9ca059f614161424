package salesrep

import (
	"time"

	"github.com/shopspring/decimal"
)

// SalesRep is a representative who earns commission on treatments.
type SalesRep struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Email                 *string         `json:"email,omitempty"`
	Phone                 *string         `json:"phone,omitempty"`
	DefaultCommissionRate decimal.Decimal `json:"defaultCommissionRate"`
	Active                bool            `json:"active"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// Request is the create and update body. Omitted optional fields keep
// their defaults on create.
type Request struct {
	Name                  string           `json:"name" validate:"required,max=200"`
	Email                 *string          `json:"email" validate:"omitempty,email"`
	Phone                 *string          `json:"phone" validate:"omitempty,max=40,phone"`
	DefaultCommissionRate *decimal.Decimal `json:"defaultCommissionRate"`
	Active                *bool            `json:"active"`
}

type Filter struct {
	Search string
	Active *bool
}
