package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/syncerr"
)

const (
	timeout = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func TestOptionsDecoration(t *testing.T) {
	h := newHarness(loggedIn())
	seedBackend(h.backend, "v1")
	ctx := context.Background()
	_, err := h.svc.Refresh(ctx)
	require.NoError(t, err)

	customers, err := h.svc.CustomerOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Option{{Value: "1", Label: "Rahim v1 (01711)"}}, customers)

	products, err := h.svc.ProductOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Option{{Value: "10", Label: "Rice v1 - Stock: 25"}}, products)

	banks, err := h.svc.AccountOptions(ctx, domain.AccountBank)
	require.NoError(t, err)
	assert.Equal(t, []domain.Option{{Value: "1", Label: "ABC Main Shop"}}, banks)

	stock, err := h.svc.StockList(ctx)
	require.NoError(t, err)
	assert.Equal(t, "62.50", stock[0].Price)
}

func TestSalesListMergesCommittedAndPending(t *testing.T) {
	h := newHarness(loggedIn())
	seedBackend(h.backend, "v1")
	ctx := context.Background()
	_, err := h.svc.Refresh(ctx)
	require.NoError(t, err)

	header, items := sampleSale("500", "300")
	known, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)
	header.CustomerID = 0
	walkIn, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)

	rows, err := h.svc.SalesList(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, domain.SaleStatusOnline, rows[0].Status)
	assert.Equal(t, "INV-100", rows[0].InvoiceNo)

	assert.Equal(t, domain.SaleStatusPending, rows[1].Status)
	assert.Empty(t, rows[1].InvoiceNo)
	assert.Equal(t, known.ID, rows[1].PendingID)
	assert.Equal(t, "Rahim v1", rows[1].CustomerName)
	assert.True(t, rows[1].Due.Equal(dec("200")))

	assert.Equal(t, walkIn.ID, rows[2].PendingID)
	assert.Equal(t, "-", rows[2].CustomerName)
}

func TestCreateCustomerCachesResult(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()

	customer, err := h.svc.CreateCustomer(ctx, domain.NewCustomer{Name: "  Nadia ", Mobile: "019"})
	require.NoError(t, err)
	assert.Equal(t, "Nadia", customer.Name)

	cached, err := h.svc.Customers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Customer{customer}, cached)
}

func TestCreateCustomerValidation(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()

	_, err := h.svc.CreateCustomer(ctx, domain.NewCustomer{Name: "Nadia"})
	assert.True(t, syncerr.IsValidation(err))
	_, err = h.svc.CreateCustomer(ctx, domain.NewCustomer{Name: "Nadia", Mobile: "019", Email: "not-mail"})
	assert.True(t, syncerr.IsValidation(err))
	assert.Zero(t, h.backend.callCount())

	out := newHarness(loggedOut())
	_, err = out.svc.CreateCustomer(ctx, domain.NewCustomer{Name: "Nadia", Mobile: "019"})
	assert.True(t, syncerr.IsPrecondition(err))
}
