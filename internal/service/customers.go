package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/syncerr"
)

// CreateCustomer registers a customer with the backend and, once it has an
// id, adds it to the local cache so it can be picked at checkout right away.
// It needs connectivity.
func (s *Service) CreateCustomer(ctx context.Context, req domain.NewCustomer) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Company = strings.TrimSpace(req.Company)
	req.Mobile = strings.TrimSpace(req.Mobile)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	if err := s.validate.Struct(req); err != nil {
		return domain.Customer{}, syncerr.New(syncerr.Validation, "create_customer", describeValidation(err))
	}

	user, err := s.currentUser("create_customer")
	if err != nil {
		return domain.Customer{}, err
	}

	customer, err := s.remote.CreateCustomer(ctx, req, user)
	if err != nil {
		return domain.Customer{}, err
	}
	if err := s.repo.PutCustomer(ctx, customer); err != nil {
		s.logger.Error("cache new customer failed", zap.Int64("customer_id", customer.ID), zap.Error(err))
		return customer, storageErr("create_customer", err)
	}

	s.logger.Info("customer created", zap.Int64("customer_id", customer.ID))
	return customer, nil
}
