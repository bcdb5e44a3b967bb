package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"offlinepos/client/internal/domain"
	"offlinepos/client/internal/store"
)

type Store struct {
	mu sync.RWMutex
	db *sql.DB
	// writeMu serializes writers so concurrent goroutines queue here instead
	// of failing with SQLITE_BUSY.
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database file at path and upgrades its
// schema to the current version.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	db, err := sql.Open("sqlite3", fileDSN(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// fileDSN builds a file: URI for path. Each segment is percent-escaped so
// '?' and '#' in a directory or file name stay part of the path.
func fileDSN(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return "file:" + strings.Join(segments, "/") + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

func newWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return store.ErrNotOpen
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) conn() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, store.ErrNotOpen
	}
	return s.db, nil
}

func (s *Store) ReplaceMasterData(ctx context.Context, data domain.MasterData) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"customers", "products", "accounts", "online_sales"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if err := insertCustomers(ctx, tx, data.Customers); err != nil {
		return err
	}
	if err := insertProducts(ctx, tx, data.Products); err != nil {
		return err
	}
	if err := insertAccounts(ctx, tx, data.Accounts); err != nil {
		return err
	}
	if err := insertCommittedSales(ctx, tx, data.CommittedSales); err != nil {
		return err
	}

	return tx.Commit()
}

func insertCustomers(ctx context.Context, tx *sql.Tx, customers []domain.Customer) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO customers (customer_id, name, mobile, email, address)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range customers {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Mobile, c.Email, c.Address); err != nil {
			return fmt.Errorf("insert customer %d: %w", c.ID, mapConstraint(err))
		}
	}
	return nil
}

func insertProducts(ctx context.Context, tx *sql.Tx, products []domain.Product) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (product_id, name, code, category, stock, sale_price)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Code, p.Category, p.Stock.String(), p.SalePrice.String()); err != nil {
			return fmt.Errorf("insert product %d: %w", p.ID, mapConstraint(err))
		}
	}
	return nil
}

func insertAccounts(ctx context.Context, tx *sql.Tx, accounts []domain.Account) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accounts (kind, source_id, label)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range accounts {
		if _, err := stmt.ExecContext(ctx, string(a.Kind), a.ID, a.Label); err != nil {
			return fmt.Errorf("insert account %s: %w", a.Key(), mapConstraint(err))
		}
	}
	return nil
}

func insertCommittedSales(ctx context.Context, tx *sql.Tx, sales []domain.CommittedSale) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO online_sales (sale_id, invoice_no, sale_date, customer_name, total, paid, due)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sale := range sales {
		_, err := stmt.ExecContext(ctx, sale.ID, sale.InvoiceNo, sale.Date, sale.CustomerName,
			sale.Total.String(), sale.Paid.String(), sale.Due.String())
		if err != nil {
			return fmt.Errorf("insert online sale %d: %w", sale.ID, mapConstraint(err))
		}
	}
	return nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT customer_id, name, mobile, email, address
		FROM customers
		ORDER BY name, customer_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Mobile, &c.Email, &c.Address); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var c domain.Customer
	err = db.QueryRowContext(ctx, `
		SELECT customer_id, name, mobile, email, address
		FROM customers
		WHERE customer_id = ?
	`, id).Scan(&c.ID, &c.Name, &c.Mobile, &c.Email, &c.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) PutCustomer(ctx context.Context, customer domain.Customer) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = db.ExecContext(ctx, `
		INSERT INTO customers (customer_id, name, mobile, email, address)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO UPDATE SET
			name = excluded.name,
			mobile = excluded.mobile,
			email = excluded.email,
			address = excluded.address
	`, customer.ID, customer.Name, customer.Mobile, customer.Email, customer.Address)
	return err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT product_id, name, code, category, stock, sale_price
		FROM products
		ORDER BY name, product_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Category, &p.Stock, &p.SalePrice); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var p domain.Product
	err = db.QueryRowContext(ctx, `
		SELECT product_id, name, code, category, stock, sale_price
		FROM products
		WHERE product_id = ?
	`, id).Scan(&p.ID, &p.Name, &p.Code, &p.Category, &p.Stock, &p.SalePrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return s.queryAccounts(ctx, `
		SELECT kind, source_id, label
		FROM accounts
		ORDER BY kind, label, source_id
	`)
}

func (s *Store) ListAccountsByKind(ctx context.Context, kind domain.AccountKind) ([]domain.Account, error) {
	return s.queryAccounts(ctx, `
		SELECT kind, source_id, label
		FROM accounts
		WHERE kind = ?
		ORDER BY label, source_id
	`, string(kind))
}

func (s *Store) queryAccounts(ctx context.Context, query string, args ...any) ([]domain.Account, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0, 16)
	for rows.Next() {
		var (
			a    domain.Account
			kind string
		)
		if err := rows.Scan(&kind, &a.ID, &a.Label); err != nil {
			return nil, err
		}
		a.Kind = domain.AccountKind(kind)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) ListCommittedSales(ctx context.Context) ([]domain.CommittedSale, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT sale_id, invoice_no, sale_date, customer_name, total, paid, due
		FROM online_sales
		ORDER BY sale_date DESC, sale_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.CommittedSale, 0, 128)
	for rows.Next() {
		var sale domain.CommittedSale
		if err := rows.Scan(&sale.ID, &sale.InvoiceNo, &sale.Date, &sale.CustomerName, &sale.Total, &sale.Paid, &sale.Due); err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) AppendPendingSale(ctx context.Context, sale domain.PendingSale) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	saleJSON, err := json.Marshal(sale.Sale)
	if err != nil {
		return 0, err
	}
	productsJSON, err := json.Marshal(sale.Products)
	if err != nil {
		return 0, err
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := db.ExecContext(ctx, `
		INSERT INTO sales (idempotency_key, sale_json, products_json, created_at)
		VALUES (?, ?, ?, ?)
	`, sale.IdempotencyKey, string(saleJSON), string(productsJSON), sale.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, mapConstraint(err)
	}
	return res.LastInsertId()
}

func (s *Store) GetPendingSale(ctx context.Context, id int64) (*domain.PendingSale, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, sale_json, products_json, created_at
		FROM sales
		WHERE id = ?
	`, id)
	sale, err := scanPendingSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return sale, nil
}

func (s *Store) ListPendingSales(ctx context.Context) ([]domain.PendingSale, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, idempotency_key, sale_json, products_json, created_at
		FROM sales
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.PendingSale, 0, 16)
	for rows.Next() {
		sale, err := scanPendingSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPendingSale(row rowScanner) (*domain.PendingSale, error) {
	var (
		sale         domain.PendingSale
		saleJSON     string
		productsJSON string
		createdAt    string
	)
	if err := row.Scan(&sale.ID, &sale.IdempotencyKey, &saleJSON, &productsJSON, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(saleJSON), &sale.Sale); err != nil {
		return nil, fmt.Errorf("decode pending sale %d header: %w", sale.ID, err)
	}
	if err := json.Unmarshal([]byte(productsJSON), &sale.Products); err != nil {
		return nil, fmt.Errorf("decode pending sale %d products: %w", sale.ID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		sale.CreatedAt = ts
	}
	return &sale, nil
}

func (s *Store) DeletePendingSale(ctx context.Context, id int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountPendingSales(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) Stats(ctx context.Context) (domain.CollectionStats, error) {
	db, err := s.conn()
	if err != nil {
		return domain.CollectionStats{}, err
	}

	// One read transaction so the counts come from the same snapshot.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	defer tx.Rollback()

	var stats domain.CollectionStats
	counts := []struct {
		table string
		dest  *int
	}{
		{"customers", &stats.Customers},
		{"products", &stats.Products},
		{"accounts", &stats.Accounts},
		{"online_sales", &stats.CommittedSales},
		{"sales", &stats.PendingSales},
	}
	for _, c := range counts {
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return domain.CollectionStats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
	}
	return stats, tx.Commit()
}

func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	return err
}
