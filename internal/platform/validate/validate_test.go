package validate

import (
	"errors"
	"testing"

	"github.com/woundcare/clinic/internal/platform/httperr"
)

type line struct {
	Rate float64 `json:"commissionRate" validate:"gte=0,lte=100"`
}

type sample struct {
	Name   string  `json:"name" validate:"required"`
	Email  string  `json:"email" validate:"omitempty,email"`
	Phone  *string `json:"phone" validate:"omitempty,phone"`
	Status string  `json:"status" validate:"omitempty,oneof=open payable closed"`
	Lines  []line  `json:"commissions" validate:"dive"`
}

func TestValidate_OK(t *testing.T) {
	v := New()
	if err := v.Validate(&sample{Name: "Ana", Status: "open", Lines: []line{{Rate: 5}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_FieldErrors(t *testing.T) {
	v := New()
	bad := "12"
	err := v.Validate(&sample{Email: "nope", Phone: &bad, Status: "void", Lines: []line{{Rate: 120}}})
	var ve *httperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	want := map[string]string{
		"name":                          "is required",
		"email":                         "must be a valid email address",
		"phone":                         "must be a valid phone number",
		"status":                        "must be one of: open payable closed",
		"commissions[0].commissionRate": "must be at most 100",
	}
	for field, msg := range want {
		if ve.Fields[field] != msg {
			t.Errorf("field %s: expected %q, got %q", field, msg, ve.Fields[field])
		}
	}
}

func TestValidPhone(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"(650) 253-0000", true},
		{"+44 20 7031 3000", true},
		{"12", false},
		{"call me", false},
	}
	for _, tt := range tests {
		if got := ValidPhone(tt.raw); got != tt.want {
			t.Errorf("ValidPhone(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
