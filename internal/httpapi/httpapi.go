// Package httpapi is the loopback JSON API the point-of-sale screen uses to
// drive the sync core.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/service"
	"offlinepos/client/internal/session"
	"offlinepos/client/internal/store"
	"offlinepos/client/internal/syncerr"
)

type Sessions interface {
	Set(token string, user domain.User) (session.Session, error)
	Clear() error
	Current() (session.Session, error)
}

type API struct {
	service       *service.Service
	sessions      Sessions
	pin           *ManagerPIN
	allowedOrigin string
	pinLimiter    *attemptLimiter
	csrf          *csrfGuard
	logger        *zap.Logger
}

func New(svc *service.Service, sessions Sessions, pin *ManagerPIN, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		sessions:      sessions,
		pin:           pin,
		allowedOrigin: allowedOrigin,
		pinLimiter:    newAttemptLimiter(5, time.Minute),
		csrf:          newCSRFGuard(),
		logger:        logger.Named("httpapi"),
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/csrf-token", a.handleCSRFToken)
	mux.HandleFunc("/api/v1/session", a.handleSession)

	mux.HandleFunc("/api/v1/master-data/refresh", a.requireSession(a.handleRefresh))
	mux.HandleFunc("/api/v1/customers", a.requireSession(a.handleCustomers))
	mux.HandleFunc("/api/v1/products", a.requireSession(a.handleProducts))
	mux.HandleFunc("/api/v1/accounts", a.requireSession(a.handleAccounts))
	mux.HandleFunc("/api/v1/sales", a.requireSession(a.handleSales))
	mux.HandleFunc("/api/v1/sales/pending", a.requireSession(a.handlePendingSales))
	mux.HandleFunc("/api/v1/sales/pending/", a.requireSession(a.handlePendingSaleActions))
	mux.HandleFunc("/api/v1/sync/drain", a.requireSession(a.handleDrain))
	mux.HandleFunc("/api/v1/sync/status", a.requireSession(a.handleSyncStatus))

	return a.withMiddleware(mux)
}

func (a *API) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.sessions.Current(); err != nil {
			writeLoginRequired(w, err)
			return
		}
		next(w, r)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCSRFToken returns a token the screen must echo in X-CSRF-Token on
// every mutating request.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"csrf_token": a.csrf.Issue()})
}

type sessionRequest struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type sessionView struct {
	User      domain.User `json:"user"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	Expired   bool        `json:"expired"`
	StartedAt time.Time   `json:"started_at"`
}

func toSessionView(s session.Session) sessionView {
	return sessionView{
		User:      s.User,
		ExpiresAt: s.ExpiresAt,
		Expired:   s.ExpiresAt != nil && !time.Now().Before(*s.ExpiresAt),
		StartedAt: s.StartedAt,
	}
}

func (a *API) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s, err := a.sessions.Current()
		if err != nil {
			writeLoginRequired(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSessionView(s))
	case http.MethodPut:
		var req sessionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s, err := a.sessions.Set(req.Token, req.User)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		a.logger.Info("session started", zap.Int64("user_id", s.User.UserID), zap.Int64("company_id", s.User.CompanyID))
		writeJSON(w, http.StatusOK, toSessionView(s))
	case http.MethodDelete:
		if err := a.sessions.Clear(); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	result, err := a.service.Refresh(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("view") == "options" {
			options, err := a.service.CustomerOptions(r.Context())
			if err != nil {
				a.writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, options)
			return
		}
		customers, err := a.service.Customers(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, customers)
	case http.MethodPost:
		var req domain.NewCustomer
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		customer, err := a.service.CreateCustomer(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, customer)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	var (
		payload any
		err     error
	)
	switch view := r.URL.Query().Get("view"); view {
	case "options":
		payload, err = a.service.ProductOptions(r.Context())
	case "stock":
		payload, err = a.service.StockList(r.Context())
	case "":
		payload, err = a.service.Products(r.Context())
	default:
		writeError(w, http.StatusBadRequest, errors.New("view must be options or stock"))
		return
	}
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("type"))
	if raw == "" {
		accounts, err := a.service.Accounts(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accounts)
		return
	}

	kind, err := domain.ParseAccountKind(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	options, err := a.service.AccountOptions(r.Context(), kind)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rows, err := a.service.SalesList(r.Context())
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rows)
	case http.MethodPost:
		var req domain.CheckoutRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.AccountKind != "" {
			kind, err := domain.ParseAccountKind(string(req.AccountKind))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			req.AccountKind = kind
		}
		sale, err := a.service.Checkout(r.Context(), req)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, sale)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handlePendingSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	sales, err := a.service.PendingSales(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sales)
}

func (a *API) handlePendingSaleActions(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/sales/pending/"), "/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, errors.New("pending sale id must be a positive integer"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		sale, err := a.service.PendingSale(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	case http.MethodDelete:
		if !a.pinLimiter.Allow("pin:discard:" + clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many manager pin attempts"))
			return
		}
		if !a.pin.Validate(r.Header.Get("X-Manager-PIN")) {
			writeError(w, http.StatusForbidden, errors.New("invalid manager pin"))
			return
		}
		sale, err := a.service.DiscardPendingSale(r.Context(), id)
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sale)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	report, err := a.service.Drain(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	status, err := a.service.Status(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token, X-Manager-PIN")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if isMutating(r.Method) && !a.csrf.Valid(strings.TrimSpace(r.Header.Get("X-CSRF-Token"))) {
			writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Duration("elapsed", time.Since(startedAt)))
	})
}

// writeServiceError maps sync-core failures to HTTP statuses.
func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case syncerr.RequiresLogin(err):
		writeLoginRequired(w, err)
		return
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}

	status := http.StatusInternalServerError
	switch syncerr.KindOf(err) {
	case syncerr.Validation:
		status = http.StatusBadRequest
	case syncerr.Network:
		status = http.StatusServiceUnavailable
	case syncerr.ServerRejection:
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err)
}

func writeLoginRequired(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error":   errLoginRequired.Error(),
		"message": err.Error(),
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// writeError hides the detail of 500s; backend and connectivity failures
// (502/503) keep their message so the screen can show it.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
