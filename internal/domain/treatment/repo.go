package treatment

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

type Repository interface {
	// Create and Update write the treatment row only; assignments go
	// through ReplaceCommissions.
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id int64) (*Treatment, error)
	Update(ctx context.Context, t *Treatment) error
	// UpdateStatus writes status and payment date in one statement.
	UpdateStatus(ctx context.Context, t *Treatment) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Treatment, int, error)
	ReplaceCommissions(ctx context.Context, treatmentID int64, as []Assignment) error
	NextNumber(ctx context.Context, patientID int64) (int, error)
	// Overdue counts and sums invoices past their payable date.
	Overdue(ctx context.Context, today civil.Date) (int, decimal.Decimal, error)
}
