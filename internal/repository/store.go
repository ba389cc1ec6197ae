package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Lierre03/bcp-ems-sub000/internal/model"
)

// Store is the MySQL implementation of the workflow storage contract.
// Every method runs on the transaction carried in ctx when there is one,
// and on the pool otherwise.
type Store struct {
	db *sql.DB
}

// NewStore constructs a Store with the given DB handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying sql.DB for health checks and migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

type txKey struct{}

// WithTx runs fn inside a READ COMMITTED transaction.  Locking reads
// (FOR UPDATE) serialize the writers; the committed-read isolation makes
// the in_use sums taken after an item lock see every commitment made by
// the previous lock holder.  Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) q(ctx context.Context) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// LockVenues takes the per-venue row locks in sorted order.  Rows are
// created on first use so any venue name can be locked.
func (s *Store) LockVenues(ctx context.Context, venues ...string) error {
	// venue_locks.venue uses a case-insensitive collation, so lock on the
	// folded name and in folded order.
	uniq := make(map[string]struct{}, len(venues))
	for _, v := range venues {
		uniq[strings.ToLower(model.NormalizeVenue(v))] = struct{}{}
	}
	sorted := make([]string, 0, len(uniq))
	for v := range uniq {
		sorted = append(sorted, v)
	}
	sort.Strings(sorted)

	q := s.q(ctx)
	for _, v := range sorted {
		if _, err := q.ExecContext(ctx, `INSERT IGNORE INTO venue_locks (venue) VALUES (?)`, v); err != nil {
			return err
		}
		var got string
		if err := q.QueryRowContext(ctx, `SELECT venue FROM venue_locks WHERE venue = ? FOR UPDATE`, v).Scan(&got); err != nil {
			return err
		}
	}
	return nil
}

func toJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}

func fromJSON(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
