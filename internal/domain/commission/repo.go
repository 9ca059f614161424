package commission

import (
	"context"

	"cloud.google.com/go/civil"
)

type Repository interface {
	// Rows returns report rows ordered by reference date, then rep name.
	Rows(ctx context.Context, f Filter) ([]ReportRow, error)
	UpsertPayout(ctx context.Context, p *Payout) error
	DeletePayout(ctx context.Context, k PayoutKey) error
	// Payouts lists payouts whose period starts within [from, to].
	Payouts(ctx context.Context, from, to civil.Date) ([]*Payout, error)
}
