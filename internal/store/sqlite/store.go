// Package sqlite persists orders, positions, and balances to a local SQLite
// database so a paper-trading session survives restarts.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/papertrader.db"
}

// Store is a single-writer SQLite store for the trading session state.
type Store struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// New opens the database, enables WAL mode, and initializes the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id          TEXT PRIMARY KEY,
			account     TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			order_type  TEXT NOT NULL,
			qty         REAL NOT NULL,
			price       REAL,
			stop_price  REAL,
			tif         TEXT,
			status      TEXT NOT NULL,
			filled_qty  REAL NOT NULL DEFAULT 0,
			avg_price   REAL NOT NULL DEFAULT 0,
			fee         REAL NOT NULL DEFAULT 0,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account);
		CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);

		CREATE TABLE IF NOT EXISTS positions (
			id            TEXT PRIMARY KEY,
			account       TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			side          TEXT NOT NULL,
			qty           REAL NOT NULL,
			entry_price   REAL NOT NULL,
			current_price REAL NOT NULL DEFAULT 0,
			status        TEXT NOT NULL,
			realized_pnl  REAL NOT NULL DEFAULT 0,
			entry_time    TEXT NOT NULL,
			exit_time     TEXT,
			exit_price    REAL,
			exit_reason   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_positions_account ON positions(account, status);
		CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol);

		CREATE TABLE IF NOT EXISTS balances (
			account    TEXT NOT NULL,
			currency   TEXT NOT NULL,
			balance    REAL NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (account, currency)
		);
	`)
	return err
}

// SaveOrder upserts an order row.
func (s *Store) SaveOrder(o *model.Order) error {
	_, err := s.db.Exec(`
		INSERT INTO orders (id, account, symbol, side, order_type, qty, price, stop_price, tif,
			status, filled_qty, avg_price, fee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			filled_qty = excluded.filled_qty,
			avg_price = excluded.avg_price,
			fee = excluded.fee,
			updated_at = excluded.updated_at`,
		o.ID, o.Account, o.Symbol, string(o.Side), string(o.Type), o.Qty, o.Price, o.StopPrice,
		string(o.TIF), string(o.Status), o.FilledQty, o.AvgPrice, o.Fee,
		o.CreatedAt.Format(time.RFC3339Nano), o.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// SavePosition upserts a position row.
func (s *Store) SavePosition(p *model.Position) error {
	var exitTime any
	if !p.ExitTime.IsZero() {
		exitTime = p.ExitTime.Format(time.RFC3339Nano)
	}
	_, err := s.db.Exec(`
		INSERT INTO positions (id, account, symbol, side, qty, entry_price, current_price,
			status, realized_pnl, entry_time, exit_time, exit_price, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			qty = excluded.qty,
			entry_price = excluded.entry_price,
			current_price = excluded.current_price,
			status = excluded.status,
			realized_pnl = excluded.realized_pnl,
			exit_time = excluded.exit_time,
			exit_price = excluded.exit_price,
			exit_reason = excluded.exit_reason`,
		p.ID, p.Account, p.Symbol, string(p.Side), p.Qty, p.EntryPrice, p.CurrentPrice,
		string(p.Status), p.RealizedPnL, p.EntryTime.Format(time.RFC3339Nano),
		exitTime, p.ExitPrice, p.ExitReason)
	return err
}

// SaveBalance upserts a balance row.
func (s *Store) SaveBalance(account, currency string, amount float64) error {
	_, err := s.db.Exec(`
		INSERT INTO balances (account, currency, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account, currency) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at`,
		account, currency, amount, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

// Orders returns all orders for an account, newest first.
func (s *Store) Orders(account string, limit int) ([]model.Order, error) {
	rows, err := s.db.Query(`
		SELECT id, account, symbol, side, order_type, qty, price, stop_price, tif,
			status, filled_qty, avg_price, fee, created_at, updated_at
		FROM orders WHERE account = ? ORDER BY created_at DESC LIMIT ?`, account, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var side, otype, tif, status, created, updated string
		if err := rows.Scan(&o.ID, &o.Account, &o.Symbol, &side, &otype, &o.Qty, &o.Price,
			&o.StopPrice, &tif, &status, &o.FilledQty, &o.AvgPrice, &o.Fee, &created, &updated); err != nil {
			return nil, err
		}
		o.Side = model.Side(side)
		o.Type = model.OrderType(otype)
		o.TIF = model.TimeInForce(tif)
		o.Status = model.OrderStatus(status)
		o.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		o.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Positions returns an account's positions filtered by status.
func (s *Store) Positions(account string, status model.PositionStatus) ([]model.Position, error) {
	rows, err := s.db.Query(`
		SELECT id, account, symbol, side, qty, entry_price, current_price,
			status, realized_pnl, entry_time, exit_time, exit_price, exit_reason
		FROM positions WHERE account = ? AND status = ? ORDER BY entry_time`, account, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var side, pstatus, entry string
		var exitTime, exitReason sql.NullString
		var exitPrice sql.NullFloat64
		if err := rows.Scan(&p.ID, &p.Account, &p.Symbol, &side, &p.Qty, &p.EntryPrice,
			&p.CurrentPrice, &pstatus, &p.RealizedPnL, &entry, &exitTime, &exitPrice, &exitReason); err != nil {
			return nil, err
		}
		p.Side = model.PositionSide(side)
		p.Status = model.PositionStatus(pstatus)
		p.EntryTime, _ = time.Parse(time.RFC3339Nano, entry)
		if exitTime.Valid {
			p.ExitTime, _ = time.Parse(time.RFC3339Nano, exitTime.String)
		}
		p.ExitPrice = exitPrice.Float64
		p.ExitReason = exitReason.String
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Balances returns all balances for an account as currency → amount.
func (s *Store) Balances(account string) (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT currency, balance FROM balances WHERE account = ?`, account)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make(map[string]float64)
	for rows.Next() {
		var currency string
		var amount float64
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, err
		}
		balances[currency] = amount
	}
	return balances, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
