package invoice

import "context"

type Repository interface {
	// Create and Update write the invoice row only; lines go through
	// ReplaceItems.
	Create(ctx context.Context, inv *Invoice) error
	GetByID(ctx context.Context, id int64) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	Delete(ctx context.Context, id int64) error
	// List returns invoices without their items. A limit of 0 returns all.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Invoice, int, error)
	ReplaceItems(ctx context.Context, invoiceID int64, items []Item) error
	// NextNumber returns the next free sequence for numbers starting with prefix.
	NextNumber(ctx context.Context, prefix string) (int, error)
}
