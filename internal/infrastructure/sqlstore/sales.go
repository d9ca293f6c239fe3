package sqlstore

import (
	"context"
	"database/sql"

	"github.com/Zhima-Mochi/supershop/internal/domain/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	_ analysis.Reader    = (*Store)(nil)
	_ inventory.Adjuster = (*Store)(nil)
)

const (
	qCompletedPairs = `
SELECT o.order_id, oi.product_id
FROM orders o
JOIN order_items oi ON oi.order_id = o.order_id
WHERE o.status = ?
ORDER BY o.order_id`

	qCompletedPairsWith = `
SELECT o.order_id, oi.product_id
FROM orders o
JOIN order_items oi ON oi.order_id = o.order_id
WHERE o.status = ?
  AND o.order_id IN (SELECT order_id FROM order_items WHERE product_id = ?)
ORDER BY o.order_id`

	qCompletedSales = `
SELECT o.order_id, oi.quantity, oi.price, o.created_at
FROM orders o
JOIN order_items oi ON oi.order_id = o.order_id
WHERE oi.product_id = ? AND o.status = ?
ORDER BY o.created_at DESC`

	qTopSellers = `
SELECT p.product_id, p.name, p.price, p.stock,
       COALESCE(SUM(s.quantity), 0) AS total_sold,
       COALESCE(SUM(s.quantity * s.price), 0) AS revenue
FROM products p
LEFT JOIN (
    SELECT oi.product_id, oi.quantity, oi.price
    FROM order_items oi
    JOIN orders o ON o.order_id = oi.order_id
    WHERE o.status = ?
) s ON s.product_id = p.product_id
GROUP BY p.product_id, p.name, p.price, p.stock
ORDER BY total_sold DESC, p.product_id
LIMIT ?`

	qTotals = `
SELECT
    (SELECT COUNT(*) FROM products) AS products,
    (SELECT COUNT(*) FROM orders) AS orders,
    (SELECT COALESCE(SUM(stock), 0) FROM products) AS stock,
    (SELECT COALESCE(SUM(oi.quantity * oi.price), 0)
       FROM order_items oi
       JOIN orders o ON o.order_id = oi.order_id
      WHERE o.status = ?) AS revenue`

	qAdjustStock  = `UPDATE products SET stock = stock + ? WHERE product_id = ? AND stock + ? >= 0`
	qCurrentStock = `SELECT stock FROM products WHERE product_id = ?`
)

func (s *Store) CompletedOrderProducts(ctx context.Context) ([]analysis.OrderProduct, error) {
	var rows []analysis.OrderProduct
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(qCompletedPairs), string(domain.StatusCompleted)); err != nil {
		return nil, errors.Wrap(err, "sqlstore: completed order products")
	}
	return rows, nil
}

func (s *Store) CompletedOrderProductsWith(ctx context.Context, productID int64) ([]analysis.OrderProduct, error) {
	var rows []analysis.OrderProduct
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(qCompletedPairsWith), string(domain.StatusCompleted), productID)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: completed order products with %d", productID)
	}
	return rows, nil
}

func (s *Store) CompletedSales(ctx context.Context, productID int64) ([]analysis.Sale, error) {
	var rows []analysis.Sale
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(qCompletedSales), productID, string(domain.StatusCompleted))
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: completed sales for %d", productID)
	}
	return rows, nil
}

func (s *Store) TopSellers(ctx context.Context, limit int) ([]analysis.ProductSales, error) {
	var rows []analysis.ProductSales
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(qTopSellers), string(domain.StatusCompleted), limit)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: top sellers")
	}
	return rows, nil
}

type totalsRow struct {
	Products int             `db:"products"`
	Orders   int             `db:"orders"`
	Stock    int             `db:"stock"`
	Revenue  decimal.Decimal `db:"revenue"`
}

func (s *Store) Totals(ctx context.Context) (analysis.Totals, error) {
	var row totalsRow
	if err := s.db.GetContext(ctx, &row, s.db.Rebind(qTotals), string(domain.StatusCompleted)); err != nil {
		return analysis.Totals{}, errors.Wrap(err, "sqlstore: totals")
	}
	return analysis.Totals{
		Products: row.Products,
		Orders:   row.Orders,
		Revenue:  row.Revenue,
		Stock:    row.Stock,
	}, nil
}

// AdjustStock applies delta with a conditional update and reads the result back
// in the same transaction.
func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	if delta == 0 {
		return 0, inventory.ErrInvalidAdjustment
	}
	var stock int
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, tx.Rebind(qAdjustStock), delta, productID, delta)
		if err != nil {
			return errors.Wrapf(err, "sqlstore: adjust stock %d", productID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "sqlstore: adjust rows affected")
		}

		err = tx.QueryRowxContext(ctx, tx.Rebind(qCurrentStock), productID).Scan(&stock)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(catalog.ErrNotFound, "product %d", productID)
		}
		if err != nil {
			return errors.Wrapf(err, "sqlstore: read stock %d", productID)
		}
		if n == 0 {
			return &inventory.InsufficientStockError{ProductID: productID, Requested: -delta, Available: stock}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stock, nil
}
