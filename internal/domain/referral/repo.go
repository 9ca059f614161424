package referral

import "context"

type Repository interface {
	// Create appends the card to the end of its column.
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id int64) (*Referral, error)
	// Update writes the card's fields but not its status or position.
	Update(ctx context.Context, r *Referral) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Referral, int, error)
	// Board returns every card ordered by column, then position.
	Board(ctx context.Context) ([]*Referral, error)
	// ColumnIDs locks and returns a column's card ids in board order.
	ColumnIDs(ctx context.Context, status string) ([]int64, error)
	// SetColumn rewrites the column so ids[i] sits at position i.
	SetColumn(ctx context.Context, status string, ids []int64) error
	SetPatient(ctx context.Context, id, patientID int64) error
}
