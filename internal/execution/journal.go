package execution

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"papertrader/internal/model"
)

// Journal persists order fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		account     TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		order_type  TEXT NOT NULL,
		qty         REAL NOT NULL,
		price       REAL NOT NULL,
		fee         REAL DEFAULT 0,
		filled_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_account ON fills(account);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// RecordFill persists a filled order to the journal.
func (j *Journal) RecordFill(o model.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO fills (order_id, account, symbol, side, order_type, qty, price, fee, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID,
		o.Account,
		o.Symbol,
		string(o.Side),
		string(o.Type),
		o.FilledQty,
		o.AvgPrice,
		o.Fee,
		o.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

// FillRecord represents a row from the fills table.
type FillRecord struct {
	ID       int64   `json:"id"`
	OrderID  string  `json:"order_id"`
	Account  string  `json:"account"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Type     string  `json:"order_type"`
	Qty      float64 `json:"qty"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
	FilledAt string  `json:"filled_at"`
}

// GetFills returns the last N fills, newest first.
func (j *Journal) GetFills(limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, account, symbol, side, order_type, qty, price, fee, filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []FillRecord
	for rows.Next() {
		var f FillRecord
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Account, &f.Symbol, &f.Side,
			&f.Type, &f.Qty, &f.Price, &f.Fee, &f.FilledAt); err != nil {
			continue
		}
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
