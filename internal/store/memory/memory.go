package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/store"
)

// Store is an in-process Repository. It loses everything on exit. Tests use
// it, and the client selects it when the database path is ":memory:".
type Store struct {
	mu             sync.RWMutex
	closed         bool
	customers      map[int64]domain.Customer
	products       map[int64]domain.Product
	accounts       map[string]domain.Account
	committedSales map[int64]domain.CommittedSale
	pending        map[int64]domain.PendingSale
	pendingKeys    map[string]int64
	nextPendingID  int64
}

func New() *Store {
	return &Store{
		customers:      make(map[int64]domain.Customer),
		products:       make(map[int64]domain.Product),
		accounts:       make(map[string]domain.Account),
		committedSales: make(map[int64]domain.CommittedSale),
		pending:        make(map[int64]domain.PendingSale),
		pendingKeys:    make(map[string]int64),
		nextPendingID:  1,
	}
}

// NewSeeded returns a store preloaded with the given master data.
func NewSeeded(data domain.MasterData) *Store {
	s := New()
	if err := s.ReplaceMasterData(context.Background(), data); err != nil {
		panic(fmt.Sprintf("memory store seed: %v", err))
	}
	return s
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrNotOpen
	}
	s.closed = true
	return nil
}

// ReplaceMasterData builds the new collections off to the side and swaps them
// in under the write lock.
func (s *Store) ReplaceMasterData(_ context.Context, data domain.MasterData) error {
	customers := make(map[int64]domain.Customer, len(data.Customers))
	for _, c := range data.Customers {
		if _, dup := customers[c.ID]; dup {
			return fmt.Errorf("%w: customer %d", store.ErrDuplicateKey, c.ID)
		}
		customers[c.ID] = c
	}
	products := make(map[int64]domain.Product, len(data.Products))
	for _, p := range data.Products {
		if _, dup := products[p.ID]; dup {
			return fmt.Errorf("%w: product %d", store.ErrDuplicateKey, p.ID)
		}
		products[p.ID] = p
	}
	accounts := make(map[string]domain.Account, len(data.Accounts))
	for _, a := range data.Accounts {
		if _, dup := accounts[a.Key()]; dup {
			return fmt.Errorf("%w: account %s", store.ErrDuplicateKey, a.Key())
		}
		accounts[a.Key()] = a
	}
	committed := make(map[int64]domain.CommittedSale, len(data.CommittedSales))
	for _, sale := range data.CommittedSales {
		if _, dup := committed[sale.ID]; dup {
			return fmt.Errorf("%w: online sale %d", store.ErrDuplicateKey, sale.ID)
		}
		committed[sale.ID] = sale
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrNotOpen
	}
	s.customers = customers
	s.products = products
	s.accounts = accounts
	s.committedSales = committed
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) PutCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrNotOpen
	}
	s.customers[customer.ID] = customer
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	return s.filterAccounts(func(domain.Account) bool { return true })
}

func (s *Store) ListAccountsByKind(_ context.Context, kind domain.AccountKind) ([]domain.Account, error) {
	return s.filterAccounts(func(a domain.Account) bool { return a.Kind == kind })
}

func (s *Store) filterAccounts(keep func(domain.Account) bool) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	accounts := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if keep(a) {
			accounts = append(accounts, a)
		}
	}
	slices.SortFunc(accounts, func(a, b domain.Account) int {
		return cmp.Or(
			cmp.Compare(a.Kind, b.Kind),
			cmp.Compare(a.Label, b.Label),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return accounts, nil
}

func (s *Store) ListCommittedSales(_ context.Context) ([]domain.CommittedSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	sales := make([]domain.CommittedSale, 0, len(s.committedSales))
	for _, sale := range s.committedSales {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.CommittedSale) int {
		return cmp.Or(cmp.Compare(b.Date, a.Date), cmp.Compare(b.ID, a.ID))
	})
	return sales, nil
}

func (s *Store) AppendPendingSale(_ context.Context, sale domain.PendingSale) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrNotOpen
	}

	if _, dup := s.pendingKeys[sale.IdempotencyKey]; dup {
		return 0, fmt.Errorf("%w: idempotency key %s", store.ErrDuplicateKey, sale.IdempotencyKey)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.ID = s.nextPendingID
	sale.Products = slices.Clone(sale.Products)
	s.nextPendingID++
	s.pending[sale.ID] = sale
	s.pendingKeys[sale.IdempotencyKey] = sale.ID
	return sale.ID, nil
}

func (s *Store) GetPendingSale(_ context.Context, id int64) (*domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	sale, ok := s.pending[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Products = slices.Clone(sale.Products)
	return &sale, nil
}

func (s *Store) ListPendingSales(_ context.Context) ([]domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrNotOpen
	}

	sales := make([]domain.PendingSale, 0, len(s.pending))
	for _, sale := range s.pending {
		sale.Products = slices.Clone(sale.Products)
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.PendingSale) int { return cmp.Compare(a.ID, b.ID) })
	return sales, nil
}

func (s *Store) DeletePendingSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrNotOpen
	}

	sale, ok := s.pending[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.pending, id)
	delete(s.pendingKeys, sale.IdempotencyKey)
	return nil
}

func (s *Store) CountPendingSales(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrNotOpen
	}
	return len(s.pending), nil
}

func (s *Store) Stats(_ context.Context) (domain.CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.CollectionStats{}, store.ErrNotOpen
	}
	return domain.CollectionStats{
		Customers:      len(s.customers),
		Products:       len(s.products),
		Accounts:       len(s.accounts),
		CommittedSales: len(s.committedSales),
		PendingSales:   len(s.pending),
	}, nil
}
