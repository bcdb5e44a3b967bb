package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/notify"
	"offlinepos/client/internal/syncerr"
)

// Refresh downloads all reference data and replaces the local cache in one
// transaction. Any failure leaves the cache exactly as it was.
func (s *Service) Refresh(ctx context.Context) (domain.RefreshResult, error) {
	if !s.refreshing.TryLock() {
		return domain.RefreshResult{}, ErrBusy
	}
	defer s.refreshing.Unlock()
	s.busyFetch.Store(true)
	defer s.busyFetch.Store(false)

	s.emit(ctx, notify.Signal{Kind: notify.RefreshStarted})

	data, err := s.download(ctx)
	if err == nil {
		err = storageErr("refresh", s.repo.ReplaceMasterData(ctx, data))
	}
	if err != nil {
		s.logger.Warn("master data refresh failed", zap.String("kind", string(syncerr.KindOf(err))), zap.Error(err))
		s.emit(ctx, notify.Signal{Kind: notify.RefreshFailed, Reason: err.Error()})
		return domain.RefreshResult{}, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}

	result := domain.RefreshResult{
		Customers:      len(data.Customers),
		Products:       len(data.Products),
		Accounts:       len(data.Accounts),
		CommittedSales: len(data.CommittedSales),
		CompletedAt:    s.now().UTC(),
	}
	s.statusMu.Lock()
	s.lastRefresh = &result
	s.statusMu.Unlock()

	s.logger.Info("master data refreshed",
		zap.Int("customers", result.Customers),
		zap.Int("products", result.Products),
		zap.Int("accounts", result.Accounts),
		zap.Int("online_sales", result.CommittedSales),
	)
	s.emit(ctx, notify.Signal{Kind: notify.RefreshSucceeded, Counts: map[string]int{
		"customers":    result.Customers,
		"products":     result.Products,
		"accounts":     result.Accounts,
		"online_sales": result.CommittedSales,
	}})
	return result, nil
}

// download fetches the six reference endpoints concurrently. Nothing is
// written until every fetch has succeeded.
func (s *Service) download(ctx context.Context) (domain.MasterData, error) {
	var (
		customers []domain.Customer
		products  []domain.Product
		cash      []domain.CashAccount
		banks     []domain.BankAccount
		mobiles   []domain.MobileAccount
		sales     []domain.CommittedSale
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		customers, err = s.remote.FetchCustomers(gctx)
		return err
	})
	g.Go(func() (err error) {
		products, err = s.remote.FetchProducts(gctx)
		return err
	})
	g.Go(func() (err error) {
		cash, err = s.remote.FetchCashAccounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		banks, err = s.remote.FetchBankAccounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		mobiles, err = s.remote.FetchMobileAccounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		sales, err = s.remote.FetchCommittedSales(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MasterData{}, err
	}

	sources := make([]domain.AccountSource, 0, len(cash)+len(banks)+len(mobiles))
	for _, a := range cash {
		sources = append(sources, a)
	}
	for _, a := range banks {
		sources = append(sources, a)
	}
	for _, a := range mobiles {
		sources = append(sources, a)
	}
	accounts, err := domain.MergeAccounts(sources)
	if err != nil {
		return domain.MasterData{}, syncerr.Wrap(syncerr.Validation, "refresh.accounts", err)
	}

	return domain.MasterData{
		Customers:      customers,
		Products:       products,
		Accounts:       accounts,
		CommittedSales: sales,
	}, nil
}
