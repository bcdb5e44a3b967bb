package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/notify"
	"offlinepos/client/internal/store"
	"offlinepos/client/internal/syncerr"
	"offlinepos/client/internal/xid"
)

const dateLayout = "2006-01-02"

// Enqueue validates a sale and appends it to the local pending queue. It
// never touches the network.
func (s *Service) Enqueue(ctx context.Context, header domain.SaleHeader, items []domain.LineItem) (domain.PendingSale, error) {
	sale, err := s.enqueue(ctx, header, items)
	if err != nil {
		s.emit(ctx, notify.Signal{Kind: notify.EnqueueRejected, Reason: err.Error()})
		return domain.PendingSale{}, err
	}
	return sale, nil
}

func (s *Service) enqueue(ctx context.Context, header domain.SaleHeader, items []domain.LineItem) (domain.PendingSale, error) {
	user, err := s.currentUser("enqueue")
	if err != nil {
		return domain.PendingSale{}, err
	}

	header.Date = strings.TrimSpace(header.Date)
	if header.Date == "" {
		header.Date = s.now().Format(dateLayout)
	}
	header.Note = strings.TrimSpace(header.Note)
	header.CompanyID = user.CompanyID
	header.CompanyName = user.CompanyName
	header.UserID = user.UserID

	if err := s.validateSale(header, items); err != nil {
		return domain.PendingSale{}, err
	}

	sale := domain.PendingSale{
		IdempotencyKey: xid.New("sale"),
		Sale:           header,
		Products:       slices.Clone(items),
		CreatedAt:      s.now().UTC(),
	}
	id, err := s.repo.AppendPendingSale(ctx, sale)
	if err != nil {
		return domain.PendingSale{}, storageErr("enqueue", err)
	}
	sale.ID = id

	remaining, err := s.repo.CountPendingSales(ctx)
	if err != nil {
		s.logger.Warn("count pending sales failed", zap.Error(err))
	}
	s.logger.Info("sale queued",
		zap.Int64("pending_id", id),
		zap.String("total", header.Total.String()),
		zap.Int("lines", len(items)),
	)
	s.emit(ctx, notify.Signal{Kind: notify.EnqueueSucceeded, PendingID: id}.WithRemaining(remaining))
	return sale, nil
}

func (s *Service) validateSale(header domain.SaleHeader, items []domain.LineItem) error {
	if len(items) == 0 {
		return syncerr.New(syncerr.Validation, "enqueue", "sale has no line items")
	}
	if err := s.validate.Struct(header); err != nil {
		return syncerr.New(syncerr.Validation, "enqueue", describeValidation(err))
	}
	if header.AccountID > 0 && header.AccountKind == "" {
		return syncerr.New(syncerr.Validation, "enqueue", "account type is required when an account is selected")
	}
	if header.Total.IsNegative() || header.Paid.IsNegative() {
		return syncerr.New(syncerr.Validation, "enqueue", "total and paid must not be negative")
	}
	for i, item := range items {
		if err := s.validate.Struct(item); err != nil {
			return syncerr.New(syncerr.Validation, "enqueue", fmt.Sprintf("line %d: %s", i+1, describeValidation(err)))
		}
		if !item.Quantity.IsPositive() {
			return syncerr.New(syncerr.Validation, "enqueue", fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if item.UnitPrice.IsNegative() || item.LineTotal.IsNegative() {
			return syncerr.New(syncerr.Validation, "enqueue", fmt.Sprintf("line %d: price must not be negative", i+1))
		}
	}
	return nil
}

// Checkout prices a cart the way the sale form does and queues the result.
// Lines without a unit price take the cached product's sale price.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.PendingSale, error) {
	lines := make([]domain.CheckoutLine, 0, len(req.Lines))
	for i, line := range req.Lines {
		if !line.UnitPrice.Valid && line.ProductID > 0 {
			product, err := s.repo.GetProduct(ctx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				err = syncerr.New(syncerr.Validation, "checkout", fmt.Sprintf("line %d: unknown product %d", i+1, line.ProductID))
				s.emit(ctx, notify.Signal{Kind: notify.EnqueueRejected, Reason: err.Error()})
				return domain.PendingSale{}, err
			}
			if err != nil {
				return domain.PendingSale{}, storageErr("checkout", err)
			}
			line.UnitPrice = decimal.NewNullDecimal(product.SalePrice)
		}
		lines = append(lines, line)
	}

	for _, amount := range []decimal.Decimal{req.Shipping, req.VATPercent, req.Discount, req.Paid} {
		if amount.IsNegative() {
			err := syncerr.New(syncerr.Validation, "checkout", "shipping, vat, discount and paid must not be negative")
			s.emit(ctx, notify.Signal{Kind: notify.EnqueueRejected, Reason: err.Error()})
			return domain.PendingSale{}, err
		}
	}

	items := domain.LineItems(lines)
	totals := domain.ComputeTotals(items, req.Shipping, req.VATPercent, req.Discount, req.Paid)
	header := domain.SaleHeader{
		Date:        req.Date,
		CustomerID:  req.CustomerID,
		Total:       totals.Grand,
		Paid:        req.Paid,
		Due:         totals.Due,
		AccountKind: req.AccountKind,
		AccountID:   req.AccountID,
		Note:        req.Note,
	}
	return s.Enqueue(ctx, header, items)
}

// Drain submits every pending sale in queue order. Accepted sales are removed;
// rejected or unreachable ones stay queued for the next pass. A credential
// failure stops the pass.
func (s *Service) Drain(ctx context.Context) (domain.DrainReport, error) {
	if !s.draining.TryLock() {
		return domain.DrainReport{}, ErrBusy
	}
	defer s.draining.Unlock()
	s.busyDrain.Store(true)
	defer s.busyDrain.Store(false)

	pending, err := s.repo.ListPendingSales(ctx)
	if err != nil {
		return domain.DrainReport{}, storageErr("drain", err)
	}

	remaining := len(pending)
	s.emit(ctx, notify.Signal{Kind: notify.DrainStarted}.WithRemaining(remaining))

	var (
		report   domain.DrainReport
		abortErr error
	)
	for _, sale := range pending {
		if err := ctx.Err(); err != nil {
			abortErr = err
			break
		}

		report.Attempted++
		err := s.remote.SubmitSale(ctx, sale)
		if err != nil {
			if syncerr.RequiresLogin(err) {
				abortErr = err
				break
			}
			report.Failures = append(report.Failures, domain.DrainFailure{
				PendingID: sale.ID,
				Kind:      string(syncerr.KindOf(err)),
				Reason:    err.Error(),
			})
			s.logger.Warn("pending sale not accepted",
				zap.Int64("pending_id", sale.ID),
				zap.String("idempotency_key", sale.IdempotencyKey),
				zap.Error(err),
			)
			s.emit(ctx, notify.Signal{Kind: notify.DrainProgress, PendingID: sale.ID, Reason: err.Error()}.WithRemaining(remaining))
			continue
		}

		if err := s.repo.DeletePendingSale(ctx, sale.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			// The backend has the sale; the idempotency key covers the resend.
			abortErr = storageErr("drain", err)
			break
		}
		report.Accepted++
		remaining--
		s.emit(ctx, notify.Signal{Kind: notify.DrainProgress, PendingID: sale.ID}.WithRemaining(remaining))
	}

	count, err := s.repo.CountPendingSales(ctx)
	if err != nil {
		count = remaining
		if abortErr == nil {
			abortErr = storageErr("drain", err)
		}
	}
	report.Remaining = count

	now := s.now().UTC()
	s.statusMu.Lock()
	s.lastDrain = &report
	s.lastDrainAt = &now
	s.statusMu.Unlock()

	s.logger.Info("drain finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("accepted", report.Accepted),
		zap.Int("remaining", report.Remaining),
		zap.Bool("aborted", abortErr != nil),
	)
	finished := notify.Signal{Kind: notify.DrainFinished}.WithRemaining(report.Remaining)
	if abortErr != nil {
		finished.Reason = abortErr.Error()
	}
	s.emit(ctx, finished)
	return report, abortErr
}

func (s *Service) PendingCount(ctx context.Context) (int, error) {
	n, err := s.repo.CountPendingSales(ctx)
	if err != nil {
		return 0, storageErr("pending_count", err)
	}
	return n, nil
}

// DiscardPendingSale drops a queued sale without submitting it. It is the only
// way a pending sale leaves the queue other than backend acceptance.
func (s *Service) DiscardPendingSale(ctx context.Context, id int64) (domain.PendingSale, error) {
	if !s.draining.TryLock() {
		return domain.PendingSale{}, ErrBusy
	}
	defer s.draining.Unlock()

	sale, err := s.repo.GetPendingSale(ctx, id)
	if err != nil {
		return domain.PendingSale{}, storageErr("discard", err)
	}
	if err := s.repo.DeletePendingSale(ctx, id); err != nil {
		return domain.PendingSale{}, storageErr("discard", err)
	}
	s.logger.Warn("pending sale discarded by operator",
		zap.Int64("pending_id", sale.ID),
		zap.String("idempotency_key", sale.IdempotencyKey),
		zap.String("total", sale.Sale.Total.String()),
	)
	return *sale, nil
}

// RunAutoSync drains the queue every interval while it is non-empty and
// refreshes the cache after any drain that got sales accepted. It returns
// when ctx is cancelled.
func (s *Service) RunAutoSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.autoSyncOnce(ctx)
		}
	}
}

func (s *Service) autoSyncOnce(ctx context.Context) {
	count, err := s.repo.CountPendingSales(ctx)
	if err != nil || count == 0 {
		return
	}

	report, err := s.Drain(ctx)
	switch {
	case errors.Is(err, ErrBusy), errors.Is(err, context.Canceled):
		return
	case syncerr.RequiresLogin(err):
		s.logger.Warn("auto sync paused until login", zap.Error(err))
		return
	case err != nil:
		s.logger.Warn("auto sync drain failed", zap.Error(err))
		return
	}

	if report.Accepted > 0 {
		if _, err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrBusy) {
			s.logger.Warn("refresh after auto sync failed", zap.Error(err))
		}
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "datetime":
		return field + " must be a date in YYYY-MM-DD form"
	case "oneof":
		return field + " must be one of " + fe.Param()
	case "email":
		return field + " must be a valid email address"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
