package domain

import (
	"fmt"
	"strings"
)

type AccountKind string

const (
	AccountCash   AccountKind = "Cash"
	AccountBank   AccountKind = "Bank"
	AccountMobile AccountKind = "Mobile"
)

func ParseAccountKind(raw string) (AccountKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cash":
		return AccountCash, nil
	case "bank":
		return AccountBank, nil
	case "mobile":
		return AccountMobile, nil
	}
	return "", fmt.Errorf("unknown account type %q", raw)
}

// Account is the unified display shape of the three backend account kinds.
// Source ids are only unique per kind, so identity is the (Kind, ID) pair.
type Account struct {
	Kind  AccountKind `json:"type"`
	ID    int64       `json:"id"`
	Label string      `json:"label"`
}

func (a Account) Key() string {
	return fmt.Sprintf("%s:%d", a.Kind, a.ID)
}

type AccountSource interface {
	Kind() AccountKind
	SourceID() int64
	Label() string
}

type CashAccount struct {
	ID   int64
	Name string
}

func (a CashAccount) Kind() AccountKind { return AccountCash }
func (a CashAccount) SourceID() int64   { return a.ID }
func (a CashAccount) Label() string     { return strings.TrimSpace(a.Name) }

type BankAccount struct {
	ID            int64
	BankName      string
	BranchName    string
	AccountName   string
	AccountNumber string
}

func (a BankAccount) Kind() AccountKind { return AccountBank }
func (a BankAccount) SourceID() int64   { return a.ID }
func (a BankAccount) Label() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s %s",
		strings.TrimSpace(a.BankName), strings.TrimSpace(a.BranchName), strings.TrimSpace(a.AccountName)))
}

type MobileAccount struct {
	ID            int64
	AccountName   string
	AccountNumber string
}

func (a MobileAccount) Kind() AccountKind { return AccountMobile }
func (a MobileAccount) SourceID() int64   { return a.ID }
func (a MobileAccount) Label() string {
	return fmt.Sprintf("%s (%s)", strings.TrimSpace(a.AccountName), strings.TrimSpace(a.AccountNumber))
}

func NormalizeAccount(src AccountSource) Account {
	return Account{Kind: src.Kind(), ID: src.SourceID(), Label: src.Label()}
}

// MergeAccounts normalizes every source and rejects duplicate (kind, id) keys.
func MergeAccounts(sources []AccountSource) ([]Account, error) {
	merged := make([]Account, 0, len(sources))
	seen := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		account := NormalizeAccount(src)
		if _, dup := seen[account.Key()]; dup {
			return nil, fmt.Errorf("duplicate account %s", account.Key())
		}
		seen[account.Key()] = struct{}{}
		merged = append(merged, account)
	}
	return merged, nil
}
