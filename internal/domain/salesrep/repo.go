package salesrep

import "context"

type Repository interface {
	Create(ctx context.Context, r *SalesRep) error
	GetByID(ctx context.Context, id int64) (*SalesRep, error)
	Update(ctx context.Context, r *SalesRep) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*SalesRep, int, error)
}
