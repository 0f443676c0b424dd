package resource

import (
	"context"

	"github.com/harms/harms/internal/platform/apperror"
)

var ErrNotFound = apperror.NotFound("resource not found")

type ResourceRepository interface {
	Create(ctx context.Context, r *Resource) error
	GetByID(ctx context.Context, id int64) (*Resource, error)
	// GetForUpdate locks the row for the rest of the unit of work.
	GetForUpdate(ctx context.Context, id int64) (*Resource, error)
	Update(ctx context.Context, r *Resource) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Resource, int, error)
	// FindLowStock returns active resources with available <= threshold.
	FindLowStock(ctx context.Context) ([]*Resource, error)
	// FindExpiredMedicines returns active medicines expiring before today.
	FindExpiredMedicines(ctx context.Context, today string) ([]*Resource, error)
	// Stats counts every resource, active or not. Occupancy rate is left zero.
	Stats(ctx context.Context, today string) (*Summary, error)
}

type TransactionRepository interface {
	CreateTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, resourceID int64, limit, offset int) ([]*Transaction, int, error)
	// LedgerNet sums the signed quantities of a resource's transactions.
	LedgerNet(ctx context.Context, resourceID int64) (net, count int, err error)
}
