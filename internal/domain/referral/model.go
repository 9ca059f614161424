package referral

import (
	"time"

	"cloud.google.com/go/civil"
)

const (
	StatusNew          = "new"
	StatusContacted    = "contacted"
	StatusIVRSubmitted = "ivr_submitted"
	StatusApproved     = "approved"
	StatusScheduled    = "scheduled"
	StatusDeclined     = "declined"
)

// Statuses lists the board columns left to right.
var Statuses = []string{StatusNew, StatusContacted, StatusIVRSubmitted, StatusApproved, StatusScheduled, StatusDeclined}

func ValidStatus(s string) bool {
	for _, st := range Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// Referral is one card on the intake board.
type Referral struct {
	ID                int64     `json:"id"`
	PatientName       string    `json:"patientName"`
	ReferringProvider *string   `json:"referringProvider,omitempty"`
	Facility          *string   `json:"facility,omitempty"`
	WoundType         *string   `json:"woundType,omitempty"`
	Insurance         *string   `json:"insurance,omitempty"`
	SalesRepID        *int64    `json:"salesRepId,omitempty"`
	SalesRepName      *string   `json:"salesRepName,omitempty"`
	Status            string    `json:"status"`
	Position          int       `json:"position"`
	Notes             *string   `json:"notes,omitempty"`
	PatientID         *int64    `json:"patientId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type Request struct {
	PatientName       string  `json:"patientName" validate:"required,max=200"`
	ReferringProvider *string `json:"referringProvider" validate:"omitempty,max=200"`
	Facility          *string `json:"facility" validate:"omitempty,max=200"`
	WoundType         *string `json:"woundType" validate:"omitempty,max=100"`
	Insurance         *string `json:"insurance" validate:"omitempty,max=200"`
	SalesRepID        *int64  `json:"salesRepId" validate:"omitempty,gt=0"`
	Status            string  `json:"status" validate:"omitempty,oneof=new contacted ivr_submitted approved scheduled declined"`
	Notes             *string `json:"notes"`
}

// MoveRequest places a card at Position (0-based) within the Status column.
type MoveRequest struct {
	Status   string `json:"status" validate:"required,oneof=new contacted ivr_submitted approved scheduled declined"`
	Position int    `json:"position" validate:"gte=0"`
}

// ConvertRequest overrides the name split and adds details the card lacks.
type ConvertRequest struct {
	FirstName   string      `json:"firstName" validate:"omitempty,max=100"`
	LastName    string      `json:"lastName" validate:"omitempty,max=100"`
	DateOfBirth *civil.Date `json:"dateOfBirth"`
}

type Column struct {
	Status    string      `json:"status"`
	Referrals []*Referral `json:"referrals"`
}

type Filter struct {
	Status     string
	SalesRepID *int64
	Search     string
}
