package service

import (
	"context"
	"fmt"
	"strconv"

	"offlinepos/client/internal/domain"
)

func (s *Service) Customers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, storageErr("customers", err)
	}
	return customers, nil
}

// CustomerOptions decorates customers as "name (mobile)".
func (s *Service) CustomerOptions(ctx context.Context) ([]domain.Option, error) {
	customers, err := s.Customers(ctx)
	if err != nil {
		return nil, err
	}
	options := make([]domain.Option, 0, len(customers))
	for _, c := range customers {
		options = append(options, domain.Option{
			Value: strconv.FormatInt(c.ID, 10),
			Label: fmt.Sprintf("%s (%s)", c.Name, c.Mobile),
		})
	}
	return options, nil
}

func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, storageErr("products", err)
	}
	return products, nil
}

// ProductOptions decorates products as "name - Stock: N".
func (s *Service) ProductOptions(ctx context.Context) ([]domain.Option, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	options := make([]domain.Option, 0, len(products))
	for _, p := range products {
		options = append(options, domain.Option{
			Value: strconv.FormatInt(p.ID, 10),
			Label: fmt.Sprintf("%s - Stock: %s", p.Name, p.Stock.String()),
		})
	}
	return options, nil
}

// AccountOptions lists the accounts of one kind. The option value is the
// source id, unique only within the kind.
func (s *Service) AccountOptions(ctx context.Context, kind domain.AccountKind) ([]domain.Option, error) {
	accounts, err := s.repo.ListAccountsByKind(ctx, kind)
	if err != nil {
		return nil, storageErr("accounts", err)
	}
	options := make([]domain.Option, 0, len(accounts))
	for _, a := range accounts {
		options = append(options, domain.Option{
			Value: strconv.FormatInt(a.ID, 10),
			Label: a.Label,
		})
	}
	return options, nil
}

func (s *Service) Accounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, storageErr("accounts", err)
	}
	return accounts, nil
}

// SalesList merges committed sales with the pending queue. Committed rows come
// first; pending rows have no invoice number and resolve the customer name
// from the cache.
func (s *Service) SalesList(ctx context.Context) ([]domain.SaleRow, error) {
	committed, err := s.repo.ListCommittedSales(ctx)
	if err != nil {
		return nil, storageErr("sales", err)
	}
	pending, err := s.repo.ListPendingSales(ctx)
	if err != nil {
		return nil, storageErr("sales", err)
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, storageErr("sales", err)
	}
	names := make(map[int64]string, len(customers))
	for _, c := range customers {
		names[c.ID] = c.Name
	}

	rows := make([]domain.SaleRow, 0, len(committed)+len(pending))
	for _, sale := range committed {
		rows = append(rows, domain.SaleRow{
			InvoiceNo:    sale.InvoiceNo,
			Date:         sale.Date,
			CustomerName: sale.CustomerName,
			Total:        sale.Total,
			Paid:         sale.Paid,
			Due:          sale.Due,
			Status:       domain.SaleStatusOnline,
		})
	}
	for _, sale := range pending {
		name, ok := names[sale.Sale.CustomerID]
		if !ok || sale.Sale.CustomerID == 0 {
			name = "-"
		}
		rows = append(rows, domain.SaleRow{
			PendingID:    sale.ID,
			Date:         sale.Sale.Date,
			CustomerName: name,
			Total:        sale.Sale.Total,
			Paid:         sale.Sale.Paid,
			Due:          sale.Sale.Due,
			Status:       domain.SaleStatusPending,
		})
	}
	return rows, nil
}

func (s *Service) StockList(ctx context.Context) ([]domain.StockRow, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.StockRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, domain.StockRow{
			Code:     p.Code,
			Name:     p.Name,
			Category: p.Category,
			Stock:    p.Stock.String(),
			Price:    p.SalePrice.StringFixed(2),
		})
	}
	return rows, nil
}

func (s *Service) PendingSales(ctx context.Context) ([]domain.PendingSale, error) {
	sales, err := s.repo.ListPendingSales(ctx)
	if err != nil {
		return nil, storageErr("pending_sales", err)
	}
	return sales, nil
}

// PendingSale returns one queued sale with its line items as they were
// enqueued. A missing id wraps store.ErrNotFound.
func (s *Service) PendingSale(ctx context.Context, id int64) (domain.PendingSale, error) {
	sale, err := s.repo.GetPendingSale(ctx, id)
	if err != nil {
		return domain.PendingSale{}, storageErr("pending_sale", err)
	}
	return *sale, nil
}
