package main

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// ErrAuctionNotFound is returned when no auction exists under the given ID.
var ErrAuctionNotFound = errors.New("auction not found")

const schema = `
CREATE TABLE IF NOT EXISTS auctions (
	id               TEXT PRIMARY KEY,
	record           BLOB NOT NULL,
	beneficiary_kind TEXT NOT NULL,
	beneficiary_addr TEXT NOT NULL,
	escrowed         TEXT NOT NULL,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	address    TEXT PRIMARY KEY,
	balance    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// auctionRow is one persisted auction: the CBOR-encoded record plus the
// host-owned fields the core treats as external (beneficiary, escrow).
type auctionRow struct {
	ID              string
	Record          []byte
	BeneficiaryKind string
	BeneficiaryAddr string
	Escrowed        decimal.Decimal
}

// Store persists auction records and account balances in SQLite. All writer
// operations run inside a transaction so a record update and its fund
// movements commit or roll back together.
type Store struct {
	db *sql.DB
}

// OpenStore opens the SQLite database at path and creates the schema.
func OpenStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin starts a transaction covering one state-machine operation.
func (s *Store) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

// InsertAuction stores a freshly created auction.
func (s *Store) InsertAuction(tx *sql.Tx, row auctionRow) error {
	now := nowMillis()
	_, err := tx.Exec(
		`INSERT INTO auctions (id, record, beneficiary_kind, beneficiary_addr, escrowed, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.Record, row.BeneficiaryKind, row.BeneficiaryAddr, row.Escrowed.String(), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert auction %s: %w", row.ID, err)
	}
	return nil
}

// GetAuction loads one auction row inside the transaction.
func (s *Store) GetAuction(tx *sql.Tx, id string) (auctionRow, error) {
	var row auctionRow
	var escrowed string
	err := tx.QueryRow(
		`SELECT id, record, beneficiary_kind, beneficiary_addr, escrowed FROM auctions WHERE id = ?`, id,
	).Scan(&row.ID, &row.Record, &row.BeneficiaryKind, &row.BeneficiaryAddr, &escrowed)
	if errors.Is(err, sql.ErrNoRows) {
		return auctionRow{}, ErrAuctionNotFound
	}
	if err != nil {
		return auctionRow{}, fmt.Errorf("load auction %s: %w", id, err)
	}
	row.Escrowed, err = decimal.NewFromString(escrowed)
	if err != nil {
		return auctionRow{}, fmt.Errorf("parse escrowed balance for auction %s: %w", id, err)
	}
	return row, nil
}

// UpdateAuction writes back the record and escrowed balance of one auction.
func (s *Store) UpdateAuction(tx *sql.Tx, row auctionRow) error {
	res, err := tx.Exec(
		`UPDATE auctions SET record = ?, escrowed = ?, updated_at = ? WHERE id = ?`,
		row.Record, row.Escrowed.String(), nowMillis(), row.ID,
	)
	if err != nil {
		return fmt.Errorf("update auction %s: %w", row.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update auction %s: %w", row.ID, err)
	}
	if affected == 0 {
		return ErrAuctionNotFound
	}
	return nil
}

// AccountBalance returns the balance of an account, zero if it has never
// received a transfer.
func (s *Store) AccountBalance(tx *sql.Tx, address string) (decimal.Decimal, error) {
	var balance string
	err := tx.QueryRow(`SELECT balance FROM accounts WHERE address = ?`, address).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load account %s: %w", address, err)
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse balance for account %s: %w", address, err)
	}
	return parsed, nil
}

// CreditAccount adds amount to an account balance, creating the account on
// first credit.
func (s *Store) CreditAccount(tx *sql.Tx, address string, amount decimal.Decimal) error {
	balance, err := s.AccountBalance(tx, address)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO accounts (address, balance, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		address, balance.Add(amount).String(), nowMillis(),
	)
	if err != nil {
		return fmt.Errorf("credit account %s: %w", address, err)
	}
	return nil
}
