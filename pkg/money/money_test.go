package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRound_HalfAwayFromZero(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"-1.005", "-1.01"},
		{"2.675", "2.68"},
		{"600", "600"},
	}
	for _, tt := range tests {
		if got := Round(dec(tt.in)); !got.Equal(dec(tt.want)) {
			t.Errorf("Round(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPercent(t *testing.T) {
	if got := Percent(dec("600"), dec("5")); !got.Equal(dec("30")) {
		t.Errorf("expected 30, got %s", got)
	}
	if got := Percent(dec("333.33"), dec("7.5")); !got.Equal(dec("25")) {
		t.Errorf("expected 25.00, got %s", got)
	}
}

func TestHasCents(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"12", true},
		{"12.5", true},
		{"12.50", true},
		{"0.01", true},
		{"1.234", false},
		{"100.005", false},
		{"-3.001", false},
	}
	for _, tt := range tests {
		if got := HasCents(dec(tt.in)); got != tt.want {
			t.Errorf("HasCents(%s) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSum(t *testing.T) {
	if got := Sum(dec("0.1"), dec("0.2")); !got.Equal(dec("0.3")) {
		t.Errorf("expected exact 0.3, got %s", got)
	}
	if !Sum().IsZero() {
		t.Error("expected zero for empty sum")
	}
}

func TestUSD(t *testing.T) {
	tests := []struct{ in, want string }{
		{"100", "$100.00"},
		{"250.5", "$250.50"},
		{"0", "$0.00"},
		{"-1", "-$1.00"},
		{"1234.567", "$1234.57"},
	}
	for _, tt := range tests {
		if got := USD(dec(tt.in)); got != tt.want {
			t.Errorf("USD(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPercentString(t *testing.T) {
	if got := PercentString(dec("12.5")); got != "12.50%" {
		t.Errorf("expected 12.50%%, got %s", got)
	}
}
