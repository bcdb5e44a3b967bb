package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        int64           `json:"product_id"`
	Name      string          `json:"name"`
	Code      string          `json:"code"`
	Category  string          `json:"category"`
	Stock     decimal.Decimal `json:"stock"`
	SalePrice decimal.Decimal `json:"sale_price"`
}

type Customer struct {
	ID      int64  `json:"customer_id"`
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type NewCustomer struct {
	Name    string `json:"name" validate:"required"`
	Company string `json:"company,omitempty"`
	Mobile  string `json:"mobile" validate:"required"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Address string `json:"address,omitempty"`
}

// CommittedSale mirrors a sale the backend has already accepted.
type CommittedSale struct {
	ID           int64           `json:"sale_id"`
	InvoiceNo    string          `json:"invoice_no"`
	Date         string          `json:"date"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Due          decimal.Decimal `json:"due"`
}

type SaleHeader struct {
	Date        string          `json:"date" validate:"required,datetime=2006-01-02"`
	CustomerID  int64           `json:"customer_id" validate:"gte=0"`
	Total       decimal.Decimal `json:"total"`
	Paid        decimal.Decimal `json:"paid"`
	Due         decimal.Decimal `json:"due"`
	AccountKind AccountKind     `json:"account_kind" validate:"omitempty,oneof=Cash Bank Mobile"`
	AccountID   int64           `json:"account_id" validate:"gte=0"`
	Note        string          `json:"note,omitempty"`
	CompanyID   int64           `json:"company_id"`
	CompanyName string          `json:"company_name"`
	UserID      int64           `json:"user_id"`
}

type LineItem struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// PendingSale is a queued sale awaiting backend confirmation. ID is local
// and unrelated to the invoice number the backend eventually assigns.
type PendingSale struct {
	ID             int64      `json:"id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Sale           SaleHeader `json:"sale"`
	Products       []LineItem `json:"products"`
	CreatedAt      time.Time  `json:"created_at"`
}

type MasterData struct {
	Customers      []Customer
	Products       []Product
	Accounts       []Account
	CommittedSales []CommittedSale
}

type CollectionStats struct {
	Customers      int `json:"customers"`
	Products       int `json:"products"`
	Accounts       int `json:"accounts"`
	CommittedSales int `json:"online_sales"`
	PendingSales   int `json:"pending_sales"`
}

// User is the operator identity captured at login. Sales and customers
// created locally are attributed to it.
type User struct {
	UserID      int64  `json:"uid"`
	CompanyID   int64  `json:"compid"`
	CompanyName string `json:"compname"`
}

// CheckoutLine is one cart line. A missing or null UnitPrice takes the cached
// catalog price; an explicit zero is kept.
type CheckoutLine struct {
	ProductID int64               `json:"product_id"`
	Quantity  decimal.Decimal     `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
}

type CheckoutRequest struct {
	Date        string          `json:"date,omitempty"`
	CustomerID  int64           `json:"customer_id"`
	AccountKind AccountKind     `json:"account_kind"`
	AccountID   int64           `json:"account_id"`
	Shipping    decimal.Decimal `json:"shipping"`
	VATPercent  decimal.Decimal `json:"vat_percent"`
	Discount    decimal.Decimal `json:"discount"`
	Paid        decimal.Decimal `json:"paid"`
	Note        string          `json:"note,omitempty"`
	Lines       []CheckoutLine  `json:"lines"`
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

const (
	SaleStatusOnline  = "Online"
	SaleStatusPending = "Pending"
)

// SaleRow is one line of the merged sales list. Pending rows carry the local
// queue id and no invoice number.
type SaleRow struct {
	InvoiceNo    string          `json:"invoice_no"`
	PendingID    int64           `json:"pending_id,omitempty"`
	Date         string          `json:"date"`
	CustomerName string          `json:"customer_name"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Due          decimal.Decimal `json:"due"`
	Status       string          `json:"status"`
}

type StockRow struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Stock    string `json:"stock"`
	Price    string `json:"price"`
}

type RefreshResult struct {
	Customers      int       `json:"customers"`
	Products       int       `json:"products"`
	Accounts       int       `json:"accounts"`
	CommittedSales int       `json:"online_sales"`
	CompletedAt    time.Time `json:"completed_at"`
}

type DrainFailure struct {
	PendingID int64  `json:"pending_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

type DrainReport struct {
	Attempted int            `json:"attempted"`
	Accepted  int            `json:"accepted"`
	Remaining int            `json:"remaining"`
	Failures  []DrainFailure `json:"failures,omitempty"`
}

// SyncStatus summarizes the local cache and queue for the "sync now"
// affordance.
type SyncStatus struct {
	Pending     int             `json:"pending"`
	Collections CollectionStats `json:"collections"`
	LastRefresh *RefreshResult  `json:"last_refresh,omitempty"`
	LastDrain   *DrainReport    `json:"last_drain,omitempty"`
	LastDrainAt *time.Time      `json:"last_drain_at,omitempty"`
	Draining    bool            `json:"draining"`
	Refreshing  bool            `json:"refreshing"`
}
