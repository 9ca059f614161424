package patient

import (
	"time"

	"cloud.google.com/go/civil"
)

// IVR (insurance verification request) states.
const (
	IVRPending   = "pending"
	IVRSubmitted = "submitted"
	IVRApproved  = "approved"
	IVRDenied    = "denied"
)

func ValidIVRStatus(s string) bool {
	switch s {
	case IVRPending, IVRSubmitted, IVRApproved, IVRDenied:
		return true
	}
	return false
}

type Patient struct {
	ID                int64       `json:"id"`
	FirstName         string      `json:"firstName"`
	LastName          string      `json:"lastName"`
	DateOfBirth       *civil.Date `json:"dateOfBirth,omitempty"`
	Phone             *string     `json:"phone,omitempty"`
	Email             *string     `json:"email,omitempty"`
	InsurancePrimary  *string     `json:"insurancePrimary,omitempty"`
	InsuranceMemberID *string     `json:"insuranceMemberId,omitempty"`
	WoundType         *string     `json:"woundType,omitempty"`
	WoundLocation     *string     `json:"woundLocation,omitempty"`
	ReferralSource    *string     `json:"referralSource,omitempty"`
	SalesRepID        *int64      `json:"salesRepId,omitempty"`
	SalesRepName      *string     `json:"salesRepName,omitempty"`
	IVRStatus         string      `json:"ivrStatus"`
	IVRSubmittedDate  *civil.Date `json:"ivrSubmittedDate,omitempty"`
	IVRApprovedDate   *civil.Date `json:"ivrApprovedDate,omitempty"`
	Notes             *string     `json:"notes,omitempty"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// FullName is "First Last".
func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

type Request struct {
	FirstName         string      `json:"firstName" validate:"required,max=100"`
	LastName          string      `json:"lastName" validate:"required,max=100"`
	DateOfBirth       *civil.Date `json:"dateOfBirth"`
	Phone             *string     `json:"phone" validate:"omitempty,max=40,phone"`
	Email             *string     `json:"email" validate:"omitempty,email"`
	InsurancePrimary  *string     `json:"insurancePrimary" validate:"omitempty,max=200"`
	InsuranceMemberID *string     `json:"insuranceMemberId" validate:"omitempty,max=100"`
	WoundType         *string     `json:"woundType" validate:"omitempty,max=100"`
	WoundLocation     *string     `json:"woundLocation" validate:"omitempty,max=100"`
	ReferralSource    *string     `json:"referralSource" validate:"omitempty,max=200"`
	SalesRepID        *int64      `json:"salesRepId" validate:"omitempty,gt=0"`
	IVRStatus         string      `json:"ivrStatus" validate:"omitempty,oneof=pending submitted approved denied"`
	Notes             *string     `json:"notes"`
}

// IVRRequest is the body of PATCH /patients/:id/ivr-status. Date defaults to
// today for the submitted and approved states.
type IVRRequest struct {
	IVRStatus string      `json:"ivrStatus" validate:"required,oneof=pending submitted approved denied"`
	Date      *civil.Date `json:"date"`
}

type Filter struct {
	Search     string
	IVRStatus  string
	SalesRepID *int64
}
