package commission

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func day(y, m, d int) *civil.Date {
	return &civil.Date{Year: y, Month: time.Month(m), Day: d}
}

func row(rep string, invoiced, treated *civil.Date, amount string) ReportRow {
	return ReportRow{
		SalesRepID:       int64(len(rep)),
		SalesRepName:     rep,
		InvoiceDate:      invoiced,
		TreatmentDate:    treated,
		InvoiceStatus:    "open",
		CommissionAmount: decimal.RequireFromString(amount),
	}
}

func TestWindows(t *testing.T) {
	tests := []struct {
		month             civil.Date
		firstEnd, lastEnd string
	}{
		{*day(2024, 3, 1), "2024-03-15", "2024-03-31"},
		{*day(2024, 2, 20), "2024-02-15", "2024-02-29"},
		{*day(2023, 2, 1), "2023-02-15", "2023-02-28"},
		{*day(2024, 4, 30), "2024-04-15", "2024-04-30"},
	}
	for _, tt := range tests {
		w := Windows(tt.month)
		if w[0].Start.Day != 1 || w[0].End.String() != tt.firstEnd || w[0].Payment != w[0].End {
			t.Errorf("%v: unexpected first window %+v", tt.month, w[0])
		}
		if w[1].Start.Day != 16 || w[1].End.String() != tt.lastEnd || w[1].Payment != w[1].End {
			t.Errorf("%v: unexpected second window %+v", tt.month, w[1])
		}
	}
}

func TestIsWindow(t *testing.T) {
	tests := []struct {
		start, end *civil.Date
		want       bool
	}{
		{day(2024, 3, 1), day(2024, 3, 15), true},
		{day(2024, 2, 16), day(2024, 2, 29), true},
		{day(2024, 2, 16), day(2024, 2, 28), false},
		{day(2024, 3, 2), day(2024, 3, 15), false},
		{day(2024, 3, 1), day(2024, 3, 31), false},
	}
	for _, tt := range tests {
		if got := IsWindow(*tt.start, *tt.end); got != tt.want {
			t.Errorf("IsWindow(%v, %v) = %v, want %v", tt.start, tt.end, got, tt.want)
		}
	}
}

func TestAggregate_SplitsMonthIntoHalves(t *testing.T) {
	rows := []ReportRow{
		row("Dana", day(2024, 3, 10), nil, "90.00"),
		row("Dana", day(2024, 3, 16), nil, "45.50"),
	}
	periods := Aggregate(rows, *day(2024, 3, 1))
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	// latest payment first
	second, first := periods[0], periods[1]
	if second.PaymentDate.String() != "2024-03-31" || second.PeriodStart.String() != "2024-03-16" {
		t.Errorf("unexpected second-half period %+v", second)
	}
	if !second.TotalCommission.Equal(decimal.RequireFromString("45.50")) || second.InvoiceCount != 1 {
		t.Errorf("unexpected second-half totals %+v", second)
	}
	if first.PaymentDate.String() != "2024-03-15" || first.PeriodStart.String() != "2024-03-01" {
		t.Errorf("unexpected first-half period %+v", first)
	}
	if !first.TotalCommission.Equal(decimal.RequireFromString("90")) || first.InvoiceCount != 1 {
		t.Errorf("unexpected first-half totals %+v", first)
	}
}

func TestAggregate_Boundaries(t *testing.T) {
	rows := []ReportRow{
		row("Dana", day(2024, 2, 15), nil, "1"),
		row("Dana", day(2024, 2, 16), nil, "2"),
		row("Dana", day(2024, 2, 29), nil, "4"),
		row("Dana", day(2024, 2, 1), nil, "8"),
	}
	periods := Aggregate(rows, *day(2024, 2, 1))
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	if !periods[0].TotalCommission.Equal(decimal.NewFromInt(6)) || periods[0].PaymentDate.String() != "2024-02-29" {
		t.Errorf("16th and last day belong to the second window, got %+v", periods[0])
	}
	if !periods[1].TotalCommission.Equal(decimal.NewFromInt(9)) || periods[1].InvoiceCount != 2 {
		t.Errorf("1st and 15th belong to the first window, got %+v", periods[1])
	}
}

func TestAggregate_ReferenceDate(t *testing.T) {
	rows := []ReportRow{
		// invoice date wins over treatment date
		row("Dana", day(2024, 3, 20), day(2024, 3, 2), "10"),
		// treatment date when no invoice date
		row("Dana", nil, day(2024, 3, 3), "20"),
		// neither: excluded
		row("Dana", nil, nil, "40"),
		// outside the month
		row("Dana", day(2024, 4, 1), nil, "80"),
	}
	periods := Aggregate(rows, *day(2024, 3, 1))
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %+v", periods)
	}
	if !periods[0].TotalCommission.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected invoice-dated row in second half, got %+v", periods[0])
	}
	if !periods[1].TotalCommission.Equal(decimal.NewFromInt(20)) {
		t.Errorf("expected treatment-dated row in first half, got %+v", periods[1])
	}
}

func TestAggregate_GroupsByRepAndSortsByName(t *testing.T) {
	rows := []ReportRow{
		row("Morgan", day(2024, 3, 5), nil, "5"),
		row("Avery", day(2024, 3, 6), nil, "7"),
		row("Morgan", day(2024, 3, 7), nil, "5"),
	}
	periods := Aggregate(rows, *day(2024, 3, 1))
	if len(periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(periods))
	}
	if periods[0].SalesRepName != "Avery" || periods[1].SalesRepName != "Morgan" {
		t.Errorf("expected ties broken by rep name, got %s, %s", periods[0].SalesRepName, periods[1].SalesRepName)
	}
	if periods[1].InvoiceCount != 2 || !periods[1].TotalCommission.Equal(decimal.NewFromInt(10)) || len(periods[1].Rows) != 2 {
		t.Errorf("unexpected Morgan period %+v", periods[1])
	}
}

func TestAggregate_Empty(t *testing.T) {
	if got := Aggregate(nil, *day(2024, 3, 1)); len(got) != 0 {
		t.Errorf("expected no periods, got %+v", got)
	}
}
