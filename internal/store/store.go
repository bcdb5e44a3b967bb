package store

import (
	"context"
	"errors"

	"offlinepos/client/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNotOpen is returned by every operation on a store that was never
	// opened or has been closed.
	ErrNotOpen      = errors.New("store is not open")
	ErrSchemaTooNew = errors.New("store schema is newer than this client supports")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Repository is the local durable cache and pending-sale queue.
//
// ReplaceMasterData clears and repopulates customers, products, accounts and
// committed sales in one atomic unit: readers observe either the previous
// contents or the new contents, never a mix or an empty intermediate.
type Repository interface {
	ReplaceMasterData(ctx context.Context, data domain.MasterData) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	PutCustomer(ctx context.Context, customer domain.Customer) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	ListAccounts(ctx context.Context) ([]domain.Account, error)
	ListAccountsByKind(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error)

	ListCommittedSales(ctx context.Context) ([]domain.CommittedSale, error)

	AppendPendingSale(ctx context.Context, sale domain.PendingSale) (int64, error)
	GetPendingSale(ctx context.Context, id int64) (*domain.PendingSale, error)
	ListPendingSales(ctx context.Context) ([]domain.PendingSale, error)
	DeletePendingSale(ctx context.Context, id int64) error
	CountPendingSales(ctx context.Context) (int, error)

	Stats(ctx context.Context) (domain.CollectionStats, error)
	Close() error
}
