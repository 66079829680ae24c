package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
)

const schema = `CREATE TABLE IF NOT EXISTS signature_registry (
	sig_hash      TEXT PRIMARY KEY,
	cancelled     BOOLEAN NOT NULL DEFAULT FALSE,
	amount_filled NUMERIC(78, 0) NOT NULL DEFAULT 0,
	fully_spent   BOOLEAN NOT NULL DEFAULT FALSE
)`

const (
	selectStateSQL = `SELECT cancelled, amount_filled::text, fully_spent FROM signature_registry WHERE sig_hash = $1`

	upsertCancelledSQL = `INSERT INTO signature_registry (sig_hash, cancelled) VALUES ($1, TRUE)
ON CONFLICT (sig_hash) DO UPDATE SET cancelled = TRUE`

	upsertFillSQL = `INSERT INTO signature_registry (sig_hash, amount_filled, fully_spent) VALUES ($1, $2, $3)
ON CONFLICT (sig_hash) DO UPDATE SET amount_filled = EXCLUDED.amount_filled, fully_spent = EXCLUDED.fully_spent`
)

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SQLStore persists the registry in a Postgres table. Each settlement runs
// inside one SQL transaction.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// OpenPostgres connects to dsn with the lib/pq driver.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewSQLStore(db), nil
}

// Migrate creates the registry table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate signature_registry: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) IsCancelled(ctx context.Context, sigHash common.Hash) (bool, error) {
	cancelled, _, err := loadState(ctx, s.db, sigHash)
	return cancelled, err
}

func (s *SQLStore) Fill(ctx context.Context, sigHash common.Hash) (FillState, error) {
	_, state, err := loadState(ctx, s.db, sigHash)
	return state, err
}

func (s *SQLStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin registry tx: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) IsCancelled(ctx context.Context, sigHash common.Hash) (bool, error) {
	cancelled, _, err := loadState(ctx, t.tx, sigHash)
	return cancelled, err
}

func (t *sqlTx) Fill(ctx context.Context, sigHash common.Hash) (FillState, error) {
	_, state, err := loadState(ctx, t.tx, sigHash)
	return state, err
}

func (t *sqlTx) SetCancelled(ctx context.Context, sigHash common.Hash) error {
	if _, err := t.tx.ExecContext(ctx, upsertCancelledSQL, sigHash.Hex()); err != nil {
		return fmt.Errorf("mark %s cancelled: %w", sigHash.Hex(), err)
	}
	return nil
}

func (t *sqlTx) SetFill(ctx context.Context, sigHash common.Hash, state FillState) error {
	if _, err := t.tx.ExecContext(ctx, upsertFillSQL, sigHash.Hex(), state.filled().String(), state.FullySpent); err != nil {
		return fmt.Errorf("record fill of %s: %w", sigHash.Hex(), err)
	}
	return nil
}

func (t *sqlTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit registry tx: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback registry tx: %w", err)
	}
	return nil
}

func loadState(ctx context.Context, q querier, sigHash common.Hash) (bool, FillState, error) {
	var (
		cancelled bool
		filled    string
		spent     bool
	)
	err := q.QueryRowContext(ctx, selectStateSQL, sigHash.Hex()).Scan(&cancelled, &filled, &spent)
	if errors.Is(err, sql.ErrNoRows) {
		return false, FillState{AmountFilled: new(big.Int)}, nil
	}
	if err != nil {
		return false, FillState{}, fmt.Errorf("load %s: %w", sigHash.Hex(), err)
	}

	amount, ok := new(big.Int).SetString(filled, 10)
	if !ok {
		return false, FillState{}, fmt.Errorf("load %s: malformed amount_filled %q", sigHash.Hex(), filled)
	}
	return cancelled, FillState{AmountFilled: amount, FullySpent: spent}, nil
}
