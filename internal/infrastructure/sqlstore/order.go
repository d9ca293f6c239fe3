package sqlstore

import (
	"context"
	"database/sql"

	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var _ domain.UnitOfWork = (*Store)(nil)

const (
	qLockStock      = `SELECT stock FROM products WHERE product_id = ? FOR UPDATE`
	qDecrementStock = `UPDATE products SET stock = stock - ? WHERE product_id = ? AND stock >= ?`
	qInsertOrder    = `INSERT INTO orders (user_id, total, status, created_at) VALUES (?, ?, ?, ?)`
	qInsertLine     = `INSERT INTO order_items (order_id, product_id, quantity, price) VALUES (?, ?, ?, ?)`
	qInsertPayment  = `INSERT INTO payments (order_id, amount, method) VALUES (?, ?, ?)`
)

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		return fn(ctx, &orderTx{tx: tx, returning: s.returning})
	})
}

type orderTx struct {
	tx        *sqlx.Tx
	returning bool
}

func (t *orderTx) LockStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := t.tx.QueryRowxContext(ctx, t.tx.Rebind(qLockStock), productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(catalog.ErrNotFound, "product %d", productID)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "sqlstore: lock stock %d", productID)
	}
	return stock, nil
}

func (t *orderTx) DecrementStock(ctx context.Context, productID int64, quantity int) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(qDecrementStock), quantity, productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "sqlstore: decrement stock %d", productID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "sqlstore: decrement rows affected")
	}
	if n == 0 {
		return &inventory.InsufficientStockError{ProductID: productID, Requested: quantity, Available: -1}
	}
	return nil
}

func (t *orderTx) InsertOrder(ctx context.Context, o *domain.Order) (int64, error) {
	args := []any{o.UserID, o.Total, string(o.Status), o.CreatedAt}
	if t.returning {
		var id int64
		q := t.tx.Rebind(qInsertOrder + ` RETURNING order_id`)
		if err := t.tx.QueryRowxContext(ctx, q, args...).Scan(&id); err != nil {
			return 0, errors.Wrap(err, "sqlstore: insert order")
		}
		return id, nil
	}
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(qInsertOrder), args...)
	if err != nil {
		return 0, errors.Wrap(err, "sqlstore: insert order")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "sqlstore: order id")
	}
	return id, nil
}

func (t *orderTx) InsertLine(ctx context.Context, orderID int64, l domain.Line) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(qInsertLine), orderID, l.ProductID, l.Quantity, l.UnitPrice)
	return errors.Wrapf(err, "sqlstore: insert line for product %d", l.ProductID)
}

func (t *orderTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(qInsertPayment), p.OrderID, p.Amount, p.Method)
	return errors.Wrap(err, "sqlstore: insert payment")
}
