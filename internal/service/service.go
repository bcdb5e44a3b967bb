package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/notify"
	"offlinepos/client/internal/store"
	"offlinepos/client/internal/syncerr"
)

var (
	// ErrBusy is returned when a refresh or drain is already running.
	ErrBusy = errors.New("operation already in progress")
	// ErrDownloadFailed is the single user-facing condition for any refresh
	// failure. The underlying cause stays in the error chain.
	ErrDownloadFailed = errors.New("download failed")
)

// Gateway is the remote backend as the sync core sees it.
type Gateway interface {
	FetchCustomers(ctx context.Context) ([]domain.Customer, error)
	FetchProducts(ctx context.Context) ([]domain.Product, error)
	FetchCashAccounts(ctx context.Context) ([]domain.CashAccount, error)
	FetchBankAccounts(ctx context.Context) ([]domain.BankAccount, error)
	FetchMobileAccounts(ctx context.Context) ([]domain.MobileAccount, error)
	FetchCommittedSales(ctx context.Context) ([]domain.CommittedSale, error)
	SubmitSale(ctx context.Context, sale domain.PendingSale) error
	CreateCustomer(ctx context.Context, req domain.NewCustomer, user domain.User) (domain.Customer, error)
}

// Identity supplies the logged-in operator used to attribute local writes.
type Identity interface {
	User() (domain.User, error)
}

type Service struct {
	repo     store.Repository
	remote   Gateway
	identity Identity
	notifier notify.Notifier
	logger   *zap.Logger
	validate *validator.Validate
	now      func() time.Time

	refreshing sync.Mutex
	draining   sync.Mutex
	busyDrain  atomic.Bool
	busyFetch  atomic.Bool

	statusMu    sync.RWMutex
	lastRefresh *domain.RefreshResult
	lastDrain   *domain.DrainReport
	lastDrainAt *time.Time
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, remote Gateway, identity Identity, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		remote:   remote,
		identity: identity,
		notifier: notify.Noop{},
		logger:   zap.NewNop(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("service")
	return s
}

func (s *Service) Status(ctx context.Context) (domain.SyncStatus, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return domain.SyncStatus{}, storageErr("status", err)
	}

	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return domain.SyncStatus{
		Pending:     stats.PendingSales,
		Collections: stats,
		LastRefresh: s.lastRefresh,
		LastDrain:   s.lastDrain,
		LastDrainAt: s.lastDrainAt,
		Draining:    s.busyDrain.Load(),
		Refreshing:  s.busyFetch.Load(),
	}, nil
}

func (s *Service) currentUser(op string) (domain.User, error) {
	if s.identity == nil {
		return domain.User{}, syncerr.New(syncerr.Precondition, op, "no user context")
	}
	user, err := s.identity.User()
	if err != nil {
		if syncerr.KindOf(err) != "" {
			return domain.User{}, err
		}
		return domain.User{}, syncerr.Wrap(syncerr.Precondition, op, err)
	}
	return user, nil
}

func (s *Service) emit(ctx context.Context, signal notify.Signal) {
	if signal.At.IsZero() {
		signal.At = s.now().UTC()
	}
	s.notifier.Emit(ctx, signal)
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if syncerr.KindOf(err) != "" {
		return err
	}
	return syncerr.Wrap(syncerr.Storage, op, err)
}
