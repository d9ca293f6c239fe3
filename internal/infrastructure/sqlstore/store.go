// Package sqlstore is the relational storage collaborator. It speaks to MySQL
// through go-sql-driver/mysql or to PostgreSQL through pgx's database/sql driver.
//
// Expected schema (owned elsewhere):
//
//	categories(category_id, name)
//	products(product_id, category_id, name, description, price, stock, barcode)
//	orders(order_id, user_id, total, status, created_at)
//	order_items(order_id, product_id, quantity, price)
//	payments(order_id, amount, method)
package sqlstore

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements the order unit of work, the catalog and analysis readers and
// stock adjustment over one connection pool.
type Store struct {
	db        *sqlx.DB
	returning bool
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver, err := driverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := normalizeDSN(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: open %s", cfg.Driver)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "sqlstore: ping %s", cfg.Driver)
	}
	return New(db), nil
}

// New wraps an existing handle. The bind style and id retrieval follow db.DriverName().
func New(db *sqlx.DB) *Store {
	return &Store{
		db:        db,
		returning: sqlx.BindType(db.DriverName()) == sqlx.DOLLAR,
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// normalizeDSN makes MySQL return DATETIME columns as time.Time in UTC; the
// sales readers scan created_at straight into time.Time.
func normalizeDSN(driver, dsn string) (string, error) {
	if driver != DriverMySQL {
		return dsn, nil
	}
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "sqlstore: parse mysql dsn")
	}
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

func driverName(driver string) (string, error) {
	switch driver {
	case DriverMySQL:
		return "mysql", nil
	case DriverPostgres, "pgx":
		return "pgx", nil
	default:
		return "", errors.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// inTx runs fn in a transaction, rolling back on error or panic.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "sqlstore: begin")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = errors.Wrap(cerr, "sqlstore: commit")
		}
	}()
	return fn(tx)
}
