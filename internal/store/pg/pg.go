// Package pg is the durable Postgres store behind the catalog, reviews,
// wishlists and loans. It speaks database/sql through the pgx stdlib driver,
// with sqlx for row scanning and goqu for the dynamic browse query.
package pg

import (
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"openshelf.org/internal/borrow"
	"openshelf.org/internal/catalog"
	"openshelf.org/internal/review"
	"openshelf.org/internal/wishlist"
)

var builder = goqu.Dialect("postgres")

type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

var (
	_ catalog.Service  = (*Store)(nil)
	_ review.Service   = (*Store)(nil)
	_ wishlist.Service = (*Store)(nil)
	_ borrow.Store     = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return NewStore(db), nil
}

// NewStore wraps an already-open handle; tests hand in sqlmock this way.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for components that share the pool, such as the
// auth store, the activity recorder and the migration manager.
func (s *Store) DB() *sqlx.DB { return s.db }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
