// Package record persists the trade and position audit trail in SQLite and
// keeps a bounded in-memory buffer of recent trades for the API.
package record

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const recentBufferCap = 1000

type TradeRecord struct {
	ID         int64     `db:"id" json:"id"`
	Venue      string    `db:"venue" json:"venue"`
	Symbol     string    `db:"symbol" json:"symbol"`
	Market     string    `db:"market" json:"market"`
	Side       string    `db:"side" json:"side"`
	OrderType  string    `db:"order_type" json:"order_type"`
	Qty        float64   `db:"qty" json:"qty"`
	Price      float64   `db:"price" json:"price"`
	ExecutedAt time.Time `db:"executed_at" json:"executed_at"`
}

type PositionRecord struct {
	ID            int64      `db:"id" json:"id"`
	Key           string     `db:"key" json:"key"`
	Direction     string     `db:"direction" json:"direction"`
	SpotQty       float64    `db:"spot_qty" json:"spot_qty"`
	FutQty        float64    `db:"fut_qty" json:"fut_qty"`
	OpenBasisBps  float64    `db:"open_basis_bps" json:"open_basis_bps"`
	CloseBasisBps *float64   `db:"close_basis_bps" json:"close_basis_bps,omitempty"`
	OpenedAt      time.Time  `db:"opened_at" json:"opened_at"`
	ClosedAt      *time.Time `db:"closed_at" json:"closed_at,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS trade_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	venue TEXT NOT NULL,
	symbol TEXT NOT NULL,
	market TEXT NOT NULL,
	side TEXT NOT NULL,
	order_type TEXT NOT NULL,
	qty REAL NOT NULL,
	price REAL NOT NULL,
	executed_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS position_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	key TEXT NOT NULL,
	direction TEXT NOT NULL,
	spot_qty REAL NOT NULL,
	fut_qty REAL NOT NULL,
	open_basis_bps REAL NOT NULL,
	close_basis_bps REAL,
	opened_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP
);
`

type Repository struct {
	db *sqlx.DB

	mu     sync.Mutex
	recent []TradeRecord
}

// Open creates or opens the SQLite database at path. ":memory:" works for
// tests.
func Open(path string) (*Repository, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open record db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create record schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// InsertTrade appends one executed order to the audit trail.
func (r *Repository) InsertTrade(t TradeRecord) error {
	res, err := r.db.NamedExec(`INSERT INTO trade_records
		(venue, symbol, market, side, order_type, qty, price, executed_at)
		VALUES (:venue, :symbol, :market, :side, :order_type, :qty, :price, :executed_at)`, t)
	if err != nil {
		return fmt.Errorf("insert trade record: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		t.ID = id
	}

	r.mu.Lock()
	r.recent = append(r.recent, t)
	if len(r.recent) > recentBufferCap {
		r.recent = r.recent[len(r.recent)-recentBufferCap:]
	}
	r.mu.Unlock()
	return nil
}

// InsertPosition records a freshly opened position and returns its id.
func (r *Repository) InsertPosition(p PositionRecord) (int64, error) {
	res, err := r.db.NamedExec(`INSERT INTO position_records
		(key, direction, spot_qty, fut_qty, open_basis_bps, opened_at)
		VALUES (:key, :direction, :spot_qty, :fut_qty, :open_basis_bps, :opened_at)`, p)
	if err != nil {
		return 0, fmt.Errorf("insert position record: %w", err)
	}
	return res.LastInsertId()
}

// ClosePosition marks the most recent open record for key as closed.
func (r *Repository) ClosePosition(key string, closeBasisBps float64, closedAt time.Time) error {
	_, err := r.db.Exec(`UPDATE position_records
		SET close_basis_bps = ?, closed_at = ?
		WHERE id = (SELECT id FROM position_records WHERE key = ? AND closed_at IS NULL ORDER BY id DESC LIMIT 1)`,
		closeBasisBps, closedAt, key)
	if err != nil {
		return fmt.Errorf("close position record: %w", err)
	}
	return nil
}

// Trades returns up to limit records, newest first.
func (r *Repository) Trades(limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []TradeRecord
	err := r.db.Select(&out, `SELECT * FROM trade_records ORDER BY id DESC LIMIT ?`, limit)
	return out, err
}

// Positions returns up to limit records, newest first.
func (r *Repository) Positions(limit int) ([]PositionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []PositionRecord
	err := r.db.Select(&out, `SELECT * FROM position_records ORDER BY id DESC LIMIT ?`, limit)
	return out, err
}

// Recent returns the in-memory FIFO buffer of recent trades.
func (r *Repository) Recent() []TradeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TradeRecord, len(r.recent))
	copy(out, r.recent)
	return out
}
