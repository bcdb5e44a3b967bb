package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/notify"
	"offlinepos/client/internal/session"
	"offlinepos/client/internal/store"
	"offlinepos/client/internal/syncerr"
)

func TestEnqueueWhileOfflineNeverCallsBackend(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		header, items := sampleSale("500", "300")
		_, err := h.svc.Enqueue(ctx, header, items)
		require.NoError(t, err)
	}

	count, err := h.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Zero(t, h.backend.callCount())
}

func TestEnqueueAttributesAndKeysEachSale(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()

	header, items := sampleSale("500", "300")
	header.Date = ""
	first, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)
	second, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)

	assert.Equal(t, "2026-10-17", first.Sale.Date)
	assert.Equal(t, cashier.UserID, first.Sale.UserID)
	assert.Equal(t, cashier.CompanyID, first.Sale.CompanyID)
	assert.Equal(t, cashier.CompanyName, first.Sale.CompanyName)
	assert.NotEmpty(t, first.IdempotencyKey)
	assert.NotEqual(t, first.IdempotencyKey, second.IdempotencyKey)
	assert.Greater(t, second.ID, first.ID)

	signals := h.recorder.Signals()
	require.Len(t, signals, 2)
	assert.Equal(t, notify.EnqueueSucceeded, signals[1].Kind)
	assert.Equal(t, second.ID, signals[1].PendingID)
	assert.Equal(t, 2, *signals[1].Remaining)
}

func TestEnqueueRejectsInvalidSalesBeforeWriting(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.SaleHeader, *[]domain.LineItem)
	}{
		{name: "no line items", mutate: func(_ *domain.SaleHeader, items *[]domain.LineItem) { *items = nil }},
		{name: "zero quantity", mutate: func(_ *domain.SaleHeader, items *[]domain.LineItem) { (*items)[0].Quantity = dec("0") }},
		{name: "negative price", mutate: func(_ *domain.SaleHeader, items *[]domain.LineItem) { (*items)[1].UnitPrice = dec("-1") }},
		{name: "missing product", mutate: func(_ *domain.SaleHeader, items *[]domain.LineItem) { (*items)[0].ProductID = 0 }},
		{name: "bad date", mutate: func(h *domain.SaleHeader, _ *[]domain.LineItem) { h.Date = "17/10/2026" }},
		{name: "unknown account kind", mutate: func(h *domain.SaleHeader, _ *[]domain.LineItem) { h.AccountKind = "Cheque" }},
		{name: "negative paid", mutate: func(h *domain.SaleHeader, _ *[]domain.LineItem) { h.Paid = dec("-5") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(loggedIn())
			header, items := sampleSale("500", "300")
			tt.mutate(&header, &items)

			_, err := h.svc.Enqueue(context.Background(), header, items)
			require.Error(t, err)
			assert.True(t, syncerr.IsValidation(err), err)

			count, err := h.svc.PendingCount(context.Background())
			require.NoError(t, err)
			assert.Zero(t, count)
			assert.Equal(t, []notify.Kind{notify.EnqueueRejected}, h.recorder.Kinds())
		})
	}
}

func TestEnqueueWithExpiredTokenStaysLocal(t *testing.T) {
	sessions, err := session.NewManager("")
	require.NoError(t, err)
	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("backend-secret"))
	require.NoError(t, err)
	_, err = sessions.Set(expired, cashier)
	require.NoError(t, err)
	require.True(t, sessions.Expired())

	h := newHarness(sessions)
	header, items := sampleSale("500", "300")
	sale, err := h.svc.Enqueue(context.Background(), header, items)
	require.NoError(t, err)
	assert.Equal(t, cashier.UserID, sale.Sale.UserID)
	assert.Zero(t, h.backend.callCount())

	count, err := h.svc.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnqueueWithoutSessionIsPrecondition(t *testing.T) {
	h := newHarness(loggedOut())
	header, items := sampleSale("500", "300")

	_, err := h.svc.Enqueue(context.Background(), header, items)
	assert.True(t, syncerr.IsPrecondition(err))
}

func TestDrainIsIdempotentOnSuccess(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		header, items := sampleSale("500", "300")
		_, err := h.svc.Enqueue(ctx, header, items)
		require.NoError(t, err)
	}

	report, err := h.svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DrainReport{Attempted: 3, Accepted: 3, Remaining: 0}, report)

	report, err = h.svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DrainReport{}, report)
	assert.Len(t, h.backend.submissions(), 3)
}

func TestDrainSubmitsInQueueOrder(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	var keys []string
	for _, total := range []string{"100", "200", "300"} {
		header, items := sampleSale(total, "0")
		sale, err := h.svc.Enqueue(ctx, header, items)
		require.NoError(t, err)
		keys = append(keys, sale.IdempotencyKey)
	}

	_, err := h.svc.Drain(ctx)
	require.NoError(t, err)

	var submitted []string
	for _, sale := range h.backend.submissions() {
		submitted = append(submitted, sale.IdempotencyKey)
	}
	assert.Equal(t, keys, submitted)
}

func TestDrainKeepsOnlyRejectedEntries(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()

	headerA, items := sampleSale("100", "100")
	a, err := h.svc.Enqueue(ctx, headerA, items)
	require.NoError(t, err)
	headerB, items := sampleSale("200", "0")
	b, err := h.svc.Enqueue(ctx, headerB, items)
	require.NoError(t, err)

	h.backend.submit = func(sale domain.PendingSale) error {
		if sale.ID == b.ID {
			return &syncerr.Error{Kind: syncerr.ServerRejection, Op: "Sale/save_sale", Status: 500, Message: "stock unavailable"}
		}
		return nil
	}

	report, err := h.svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 1, report.Accepted)
	assert.Equal(t, 1, report.Remaining)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, b.ID, report.Failures[0].PendingID)
	assert.Equal(t, string(syncerr.ServerRejection), report.Failures[0].Kind)

	pending, err := h.svc.PendingSales(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)
	_, err = h.svc.PendingSale(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	count, err := h.svc.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDrainScenarioSingleSale(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		h := newHarness(loggedIn())
		header, items := sampleSale("500", "300")
		_, err := h.svc.Enqueue(context.Background(), header, items)
		require.NoError(t, err)

		report, err := h.svc.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, report.Remaining)
	})

	t.Run("server error keeps and retries the entry", func(t *testing.T) {
		h := newHarness(loggedIn())
		header, items := sampleSale("500", "300")
		sale, err := h.svc.Enqueue(context.Background(), header, items)
		require.NoError(t, err)
		h.backend.submit = func(domain.PendingSale) error {
			return &syncerr.Error{Kind: syncerr.ServerRejection, Status: 500, Message: "Internal Server Error"}
		}

		report, err := h.svc.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Remaining)

		report, err = h.svc.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, report.Remaining)

		submitted := h.backend.submissions()
		require.Len(t, submitted, 2)
		assert.Equal(t, sale.ID, submitted[1].ID)
		assert.Equal(t, sale.IdempotencyKey, submitted[1].IdempotencyKey)
		assert.True(t, submitted[1].Sale.Total.Equal(dec("500")))
		assert.True(t, submitted[1].Sale.Paid.Equal(dec("300")))
	})
}

func TestDrainNetworkFailureIsScopedToEntry(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		header, items := sampleSale("10", "10")
		_, err := h.svc.Enqueue(ctx, header, items)
		require.NoError(t, err)
	}
	attempts := 0
	h.backend.submit = func(domain.PendingSale) error {
		attempts++
		if attempts == 1 {
			return syncerr.Wrap(syncerr.Network, "Sale/save_sale", errors.New("connection reset"))
		}
		return nil
	}

	report, err := h.svc.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 1, report.Remaining)
}

func TestDrainStopsOnCredentialFailure(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		header, items := sampleSale("10", "10")
		_, err := h.svc.Enqueue(ctx, header, items)
		require.NoError(t, err)
	}
	h.backend.submit = func(domain.PendingSale) error {
		return &syncerr.Error{Kind: syncerr.Unauthorized, Status: 401, Message: "token expired"}
	}

	report, err := h.svc.Drain(ctx)
	require.Error(t, err)
	assert.True(t, syncerr.RequiresLogin(err))
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 3, report.Remaining)
	assert.Len(t, h.backend.submissions(), 1)
}

func TestDrainSignals(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		header, items := sampleSale("10", "10")
		_, err := h.svc.Enqueue(ctx, header, items)
		require.NoError(t, err)
	}
	h.recorder = &notify.Recorder{}
	h.svc.notifier = h.recorder

	_, err := h.svc.Drain(ctx)
	require.NoError(t, err)

	signals := h.recorder.Signals()
	require.Len(t, signals, 4)
	var remaining []int
	for _, s := range signals {
		remaining = append(remaining, *s.Remaining)
	}
	assert.Equal(t, []notify.Kind{notify.DrainStarted, notify.DrainProgress, notify.DrainProgress, notify.DrainFinished}, h.recorder.Kinds())
	assert.Equal(t, []int{2, 1, 0, 0}, remaining)
}

func TestConcurrentDrainIsBusy(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	header, items := sampleSale("10", "10")
	_, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.submit = func(domain.PendingSale) error {
		close(entered)
		<-release
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = h.svc.Drain(ctx)
	}()
	<-entered

	_, err = h.svc.Drain(ctx)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = h.svc.DiscardPendingSale(ctx, 1)
	assert.ErrorIs(t, err, ErrBusy)

	status, err := h.svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Draining)

	close(release)
	wg.Wait()
}

func TestDiscardPendingSale(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	header, items := sampleSale("10", "10")
	sale, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)

	discarded, err := h.svc.DiscardPendingSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.IdempotencyKey, discarded.IdempotencyKey)

	_, err = h.svc.DiscardPendingSale(ctx, sale.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, h.backend.callCount())
}

func TestCheckoutComputesTotals(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	require.NoError(t, h.repo.ReplaceMasterData(ctx, domain.MasterData{
		Products: []domain.Product{{ID: 10, Name: "Rice", SalePrice: dec("150")}},
	}))

	sale, err := h.svc.Checkout(ctx, domain.CheckoutRequest{
		CustomerID:  1,
		AccountKind: domain.AccountCash,
		AccountID:   1,
		Shipping:    dec("40"),
		VATPercent:  dec("5"),
		Discount:    dec("5"),
		Paid:        dec("300"),
		Lines: []domain.CheckoutLine{
			{ProductID: 10, Quantity: dec("2")},
		},
	})
	require.NoError(t, err)

	require.Len(t, sale.Products, 1)
	assert.True(t, sale.Products[0].UnitPrice.Equal(dec("150")))
	assert.True(t, sale.Products[0].LineTotal.Equal(dec("300")))
	assert.True(t, sale.Sale.Total.Equal(dec("350")), sale.Sale.Total.String())
	assert.True(t, sale.Sale.Due.Equal(dec("50")), sale.Sale.Due.String())
}

func TestCheckoutKeepsExplicitZeroPrice(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	require.NoError(t, h.repo.ReplaceMasterData(ctx, domain.MasterData{
		Products: []domain.Product{{ID: 10, Name: "Rice", SalePrice: dec("150")}},
	}))

	sale, err := h.svc.Checkout(ctx, domain.CheckoutRequest{
		Lines: []domain.CheckoutLine{
			{ProductID: 10, Quantity: dec("1"), UnitPrice: decimal.NewNullDecimal(decimal.Zero)},
			{ProductID: 10, Quantity: dec("1")},
		},
	})
	require.NoError(t, err)
	require.Len(t, sale.Products, 2)
	assert.True(t, sale.Products[0].UnitPrice.IsZero())
	assert.True(t, sale.Products[0].LineTotal.IsZero())
	assert.True(t, sale.Products[1].UnitPrice.Equal(dec("150")))
	assert.True(t, sale.Sale.Total.Equal(dec("150")), sale.Sale.Total.String())
}

func TestCheckoutRejectsUnknownProduct(t *testing.T) {
	h := newHarness(loggedIn())
	_, err := h.svc.Checkout(context.Background(), domain.CheckoutRequest{
		Lines: []domain.CheckoutLine{{ProductID: 99, Quantity: dec("1")}},
	})
	assert.True(t, syncerr.IsValidation(err))
}

func TestPendingSaleRoundTripsThroughProjections(t *testing.T) {
	h := newHarness(loggedIn())
	ctx := context.Background()
	header, items := sampleSale("500", "300")

	sale, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)

	got, err := h.svc.PendingSale(ctx, sale.ID)
	require.NoError(t, err)
	require.Len(t, got.Products, 2)
	for i := range items {
		assert.Equal(t, items[i].ProductID, got.Products[i].ProductID)
		assert.True(t, items[i].Quantity.Equal(got.Products[i].Quantity))
		assert.True(t, items[i].LineTotal.Equal(got.Products[i].LineTotal))
	}
	assert.True(t, got.Sale.Total.Equal(dec("500")))
	assert.True(t, got.Sale.Paid.Equal(dec("300")))
}

func TestRunAutoSyncDrainsAndStops(t *testing.T) {
	h := newHarness(loggedIn())
	ctx, cancel := context.WithCancel(context.Background())
	header, items := sampleSale("10", "10")
	_, err := h.svc.Enqueue(ctx, header, items)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		h.svc.RunAutoSync(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		n, err := h.svc.PendingCount(context.Background())
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)

	// An accepted drain is followed by a refresh.
	require.Eventually(t, func() bool {
		status, err := h.svc.Status(context.Background())
		return err == nil && status.LastRefresh != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("auto sync did not stop")
	}
}
