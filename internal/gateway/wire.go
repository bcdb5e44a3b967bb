package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"offlinepos/client/internal/domain"
)

// flexInt accepts a JSON number, a numeric string, an empty string or null.
// The backend sends most identities as text.
type flexInt int64

func (f *flexInt) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*f = 0
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return err
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// Some deployments render ids as "12.0".
		d, derr := decimal.NewFromString(text)
		if derr != nil || !d.IsInteger() {
			return fmt.Errorf("invalid integer %q", text)
		}
		n = d.IntPart()
	}
	*f = flexInt(n)
	return nil
}

// flexDecimal accepts numbers, numeric strings, "" and null (as zero).
type flexDecimal decimal.Decimal

func (f *flexDecimal) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		*f = flexDecimal(decimal.Zero)
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(raw); err != nil {
		return err
	}
	*f = flexDecimal(d)
	return nil
}

func (f flexDecimal) Decimal() decimal.Decimal {
	return decimal.Decimal(f)
}

type envelope[T any] struct {
	Data []T `json:"data"`
}

type customerDTO struct {
	CustomerID   flexInt `json:"customerID"`
	CustomerName string  `json:"customerName"`
	Mobile       string  `json:"mobile"`
	Email        string  `json:"email"`
	Address      string  `json:"address"`
}

func (d customerDTO) toDomain() domain.Customer {
	return domain.Customer{
		ID:      int64(d.CustomerID),
		Name:    d.CustomerName,
		Mobile:  d.Mobile,
		Email:   d.Email,
		Address: d.Address,
	}
}

type productDTO struct {
	ProductID     flexInt     `json:"productID"`
	ProductName   string      `json:"productName"`
	ProductCode   string      `json:"productcode"`
	CategoryName  string      `json:"categoryName"`
	StockQuantity flexDecimal `json:"stock_quantity"`
	SalePrice     flexDecimal `json:"sprice"`
}

func (d productDTO) toDomain() domain.Product {
	return domain.Product{
		ID:        int64(d.ProductID),
		Name:      d.ProductName,
		Code:      d.ProductCode,
		Category:  d.CategoryName,
		Stock:     d.StockQuantity.Decimal(),
		SalePrice: d.SalePrice.Decimal(),
	}
}

type cashAccountDTO struct {
	ID       flexInt `json:"ca_id"`
	CashName string  `json:"cashName"`
}

func (d cashAccountDTO) toDomain() domain.CashAccount {
	return domain.CashAccount{ID: int64(d.ID), Name: d.CashName}
}

type bankAccountDTO struct {
	ID          flexInt `json:"ba_id"`
	BankName    string  `json:"bankName"`
	BranchName  string  `json:"branchName"`
	AccountName string  `json:"accountName"`
	AccountNo   string  `json:"accountNo"`
}

func (d bankAccountDTO) toDomain() domain.BankAccount {
	return domain.BankAccount{
		ID:            int64(d.ID),
		BankName:      d.BankName,
		BranchName:    d.BranchName,
		AccountName:   d.AccountName,
		AccountNumber: d.AccountNo,
	}
}

type mobileAccountDTO struct {
	ID          flexInt `json:"ma_id"`
	AccountName string  `json:"accountName"`
	AccountNo   string  `json:"accountNo"`
}

func (d mobileAccountDTO) toDomain() domain.MobileAccount {
	return domain.MobileAccount{ID: int64(d.ID), AccountName: d.AccountName, AccountNumber: d.AccountNo}
}

type committedSaleDTO struct {
	SaleID       flexInt     `json:"saleID"`
	InvoiceNo    string      `json:"invoice_no"`
	SaleDate     string      `json:"saleDate"`
	CustomerName string      `json:"customerName"`
	TotalAmount  flexDecimal `json:"totalAmount"`
	PaidAmount   flexDecimal `json:"pAmount"`
	DueAmount    flexDecimal `json:"dueamount"`
}

func (d committedSaleDTO) toDomain() domain.CommittedSale {
	return domain.CommittedSale{
		ID:           int64(d.SaleID),
		InvoiceNo:    d.InvoiceNo,
		Date:         d.SaleDate,
		CustomerName: d.CustomerName,
		Total:        d.TotalAmount.Decimal(),
		Paid:         d.PaidAmount.Decimal(),
		Due:          d.DueAmount.Decimal(),
	}
}

// saleRequest is the create-sale body. Field names and the string encoding of
// ids follow the backend's form-post heritage.
type saleRequest struct {
	Sale           saleHeaderDTO `json:"sale"`
	Products       []lineItemDTO `json:"products"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

type saleHeaderDTO struct {
	SaleDate    string          `json:"saDate"`
	Customer    string          `json:"customer"`
	TotalAmount decimal.Decimal `json:"tAmount"`
	PaidAmount  decimal.Decimal `json:"pAmount"`
	DueAmount   decimal.Decimal `json:"dAmount"`
	AccountType string          `json:"acType"`
	AccountNo   string          `json:"acNo"`
	Note        string          `json:"note"`
	CompanyID   int64           `json:"compid,string"`
	RegBy       int64           `json:"regby,string"`
	CompanyName string          `json:"compname"`
}

type lineItemDTO struct {
	Product   int64           `json:"product,string"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"uprice"`
	Total     decimal.Decimal `json:"tprice"`
}

func newSaleRequest(sale domain.PendingSale) saleRequest {
	header := sale.Sale
	req := saleRequest{
		Sale: saleHeaderDTO{
			SaleDate:    header.Date,
			Customer:    optionalID(header.CustomerID),
			TotalAmount: header.Total,
			PaidAmount:  header.Paid,
			DueAmount:   header.Due,
			AccountType: string(header.AccountKind),
			AccountNo:   optionalID(header.AccountID),
			Note:        header.Note,
			CompanyID:   header.CompanyID,
			RegBy:       header.UserID,
			CompanyName: header.CompanyName,
		},
		Products:       make([]lineItemDTO, 0, len(sale.Products)),
		IdempotencyKey: sale.IdempotencyKey,
	}
	for _, item := range sale.Products {
		req.Products = append(req.Products, lineItemDTO{
			Product:   item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.LineTotal,
		})
	}
	return req
}

func optionalID(id int64) string {
	if id <= 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

type customerRequest struct {
	CustName    string `json:"custName"`
	CustCompany string `json:"custCompany"`
	CustMobile  string `json:"custMobile"`
	CustEmail   string `json:"custEmail"`
	CustAddress string `json:"custAddress"`
	OpBalance   string `json:"opbalance"`
	CompanyID   int64  `json:"compid,string"`
	RegBy       int64  `json:"regby,string"`
	CompanyName string `json:"compname"`
}

type customerResponse struct {
	Message string `json:"message"`
	Data    struct {
		CustomerID flexInt `json:"customerID"`
	} `json:"data"`
}

type messageResponse struct {
	Status  any    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (m messageResponse) text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Error
}
