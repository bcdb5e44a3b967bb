// Package gateway is the HTTP client for the backend of record. It performs
// authenticated requests, decodes `{data: [...]}` payloads into domain types,
// and classifies every failure with a syncerr.Kind. It never touches the
// local store.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/syncerr"
)

const (
	pathCustomers      = "Customer/customers"
	pathProducts       = "Product/products"
	pathCashAccounts   = "CashAccount/cashaccount"
	pathBankAccounts   = "BankAccount/bankaccount"
	pathMobileAccounts = "MobileAccount/mobileaccount"
	pathSales          = "Sale/sales"
	pathSaveSale       = "Sale/save_sale"
	pathSaveCustomer   = "Customer/save_customer"

	maxResponseBytes = 32 << 20
)

// TokenSource returns the bearer credential for the current session, or an
// error when there is none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client. A zero timeout falls back to 15s: a request that never
// resolves would otherwise hang a refresh or drain forever.
func New(baseURL string, timeout time.Duration, tokens TokenSource, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) FetchCustomers(ctx context.Context) ([]domain.Customer, error) {
	var env envelope[customerDTO]
	if err := c.get(ctx, pathCustomers, &env); err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toDomain())
	}
	return out, nil
}

func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	var env envelope[productDTO]
	if err := c.get(ctx, pathProducts, &env); err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toDomain())
	}
	return out, nil
}

func (c *Client) FetchCashAccounts(ctx context.Context) ([]domain.CashAccount, error) {
	var env envelope[cashAccountDTO]
	if err := c.get(ctx, pathCashAccounts, &env); err != nil {
		return nil, err
	}
	out := make([]domain.CashAccount, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toDomain())
	}
	return out, nil
}

func (c *Client) FetchBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	var env envelope[bankAccountDTO]
	if err := c.get(ctx, pathBankAccounts, &env); err != nil {
		return nil, err
	}
	out := make([]domain.BankAccount, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toDomain())
	}
	return out, nil
}

func (c *Client) FetchMobileAccounts(ctx context.Context) ([]domain.MobileAccount, error) {
	var env envelope[mobileAccountDTO]
	if err := c.get(ctx, pathMobileAccounts, &env); err != nil {
		return nil, err
	}
	out := make([]domain.MobileAccount, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toDomain())
	}
	return out, nil
}

func (c *Client) FetchCommittedSales(ctx context.Context) ([]domain.CommittedSale, error) {
	var env envelope[committedSaleDTO]
	if err := c.get(ctx, pathSales, &env); err != nil {
		return nil, err
	}
	out := make([]domain.CommittedSale, 0, len(env.Data))
	for _, dto := range env.Data {
		out = append(out, dto.toDomain())
	}
	return out, nil
}

// SubmitSale posts one pending sale. A nil error means the backend confirmed
// acceptance with a 2xx status.
func (c *Client) SubmitSale(ctx context.Context, sale domain.PendingSale) error {
	headers := map[string]string{}
	if sale.IdempotencyKey != "" {
		headers["Idempotency-Key"] = sale.IdempotencyKey
	}
	return c.post(ctx, pathSaveSale, newSaleRequest(sale), headers, nil)
}

// CreateCustomer registers a customer and returns it with the backend-assigned id.
func (c *Client) CreateCustomer(ctx context.Context, req domain.NewCustomer, user domain.User) (domain.Customer, error) {
	body := customerRequest{
		CustName:    req.Name,
		CustCompany: req.Company,
		CustMobile:  req.Mobile,
		CustEmail:   req.Email,
		CustAddress: req.Address,
		OpBalance:   "0",
		CompanyID:   user.CompanyID,
		RegBy:       user.UserID,
		CompanyName: user.CompanyName,
	}

	var resp customerResponse
	if err := c.post(ctx, pathSaveCustomer, body, nil, &resp); err != nil {
		return domain.Customer{}, err
	}
	if resp.Data.CustomerID <= 0 {
		return domain.Customer{}, syncerr.New(syncerr.ServerRejection, pathSaveCustomer, "response carried no customer id")
	}
	return domain.Customer{
		ID:      int64(resp.Data.CustomerID),
		Name:    req.Name,
		Mobile:  req.Mobile,
		Email:   req.Email,
		Address: req.Address,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	return c.do(ctx, http.MethodGet, path, nil, nil, dest)
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return syncerr.Wrap(syncerr.Validation, path, err)
	}
	return c.do(ctx, http.MethodPost, path, payload, headers, dest)
}

func (c *Client) do(ctx context.Context, method string, path string, payload []byte, headers map[string]string, dest any) error {
	if c.tokens == nil {
		return syncerr.New(syncerr.Precondition, path, "no credential source configured")
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return syncerr.Wrap(syncerr.Precondition, path, err)
	}
	if strings.TrimSpace(token) == "" {
		return syncerr.New(syncerr.Precondition, path, "missing bearer token")
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return syncerr.Wrap(syncerr.Validation, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	startedAt := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return syncerr.Wrap(syncerr.Network, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return syncerr.Wrap(syncerr.Network, path, fmt.Errorf("read response: %w", err))
	}
	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(startedAt)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(path, resp.StatusCode, raw)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &syncerr.Error{
			Kind:    syncerr.ServerRejection,
			Op:      path,
			Status:  resp.StatusCode,
			Message: "malformed response body",
			Err:     err,
		}
	}
	return nil
}

func classifyStatus(path string, status int, raw []byte) error {
	kind := syncerr.ServerRejection
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		kind = syncerr.Unauthorized
	}

	message := http.StatusText(status)
	var body messageResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.text() != "" {
		message = body.text()
	} else if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 256 && !strings.HasPrefix(text, "<") {
		message = text
	}
	return &syncerr.Error{Kind: kind, Op: path, Status: status, Message: message}
}

// IsTimeout reports whether err came from the client timeout or a context deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
