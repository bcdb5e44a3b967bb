package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/notify"
	"offlinepos/client/internal/store/memory"
	"offlinepos/client/internal/syncerr"
)

type fakeBackend struct {
	mu sync.Mutex

	customers []domain.Customer
	products  []domain.Product
	cash      []domain.CashAccount
	banks     []domain.BankAccount
	mobiles   []domain.MobileAccount
	sales     []domain.CommittedSale

	// fetchErr fails the named read endpoint.
	fetchErr map[string]error
	// submit decides the outcome of each create-sale call.
	submit func(sale domain.PendingSale) error

	calls     int
	submitted []domain.PendingSale
	created   []domain.NewCustomer
	nextID    int64
	fetchGate chan struct{}
}

func (f *fakeBackend) read(endpoint string) error {
	f.mu.Lock()
	f.calls++
	err := f.fetchErr[endpoint]
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return err
}

func (f *fakeBackend) FetchCustomers(context.Context) ([]domain.Customer, error) {
	if err := f.read("customers"); err != nil {
		return nil, err
	}
	return f.customers, nil
}

func (f *fakeBackend) FetchProducts(context.Context) ([]domain.Product, error) {
	if err := f.read("products"); err != nil {
		return nil, err
	}
	return f.products, nil
}

func (f *fakeBackend) FetchCashAccounts(context.Context) ([]domain.CashAccount, error) {
	if err := f.read("cash"); err != nil {
		return nil, err
	}
	return f.cash, nil
}

func (f *fakeBackend) FetchBankAccounts(context.Context) ([]domain.BankAccount, error) {
	if err := f.read("bank"); err != nil {
		return nil, err
	}
	return f.banks, nil
}

func (f *fakeBackend) FetchMobileAccounts(context.Context) ([]domain.MobileAccount, error) {
	if err := f.read("mobile"); err != nil {
		return nil, err
	}
	return f.mobiles, nil
}

func (f *fakeBackend) FetchCommittedSales(context.Context) ([]domain.CommittedSale, error) {
	if err := f.read("sales"); err != nil {
		return nil, err
	}
	return f.sales, nil
}

func (f *fakeBackend) SubmitSale(_ context.Context, sale domain.PendingSale) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.submitted = append(f.submitted, sale)
	if f.submit != nil {
		return f.submit(sale)
	}
	return nil
}

func (f *fakeBackend) CreateCustomer(_ context.Context, req domain.NewCustomer, _ domain.User) (domain.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.created = append(f.created, req)
	f.nextID++
	return domain.Customer{ID: 1000 + f.nextID, Name: req.Name, Mobile: req.Mobile, Email: req.Email, Address: req.Address}, nil
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeBackend) submissions() []domain.PendingSale {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PendingSale(nil), f.submitted...)
}

type staticIdentity struct {
	user domain.User
	err  error
}

func (i staticIdentity) User() (domain.User, error) { return i.user, i.err }

var cashier = domain.User{UserID: 9, CompanyID: 4, CompanyName: "Corner Shop"}

func loggedIn() Identity { return staticIdentity{user: cashier} }

func loggedOut() Identity {
	return staticIdentity{err: syncerr.New(syncerr.Precondition, "session", "no active session")}
}

type harness struct {
	svc      *Service
	repo     *memory.Store
	backend  *fakeBackend
	recorder *notify.Recorder
}

func newHarness(identity Identity) *harness {
	repo := memory.New()
	backend := &fakeBackend{}
	recorder := &notify.Recorder{}
	clock := func() time.Time { return time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC) }
	svc := New(repo, backend, identity, WithNotifier(recorder), WithClock(clock))
	return &harness{svc: svc, repo: repo, backend: backend, recorder: recorder}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleSale(total, paid string) (domain.SaleHeader, []domain.LineItem) {
	header := domain.SaleHeader{
		Date:        "2026-10-17",
		CustomerID:  1,
		Total:       dec(total),
		Paid:        dec(paid),
		Due:         dec(total).Sub(dec(paid)),
		AccountKind: domain.AccountCash,
		AccountID:   1,
	}
	items := []domain.LineItem{
		{ProductID: 10, Quantity: dec("2"), UnitPrice: dec("150"), LineTotal: dec("300")},
		{ProductID: 11, Quantity: dec("1"), UnitPrice: dec("200"), LineTotal: dec("200")},
	}
	return header, items
}
