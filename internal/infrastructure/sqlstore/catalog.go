package sqlstore

import (
	"context"
	"database/sql"

	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var _ catalog.Reader = (*Store)(nil)

const productColumns = `
	p.product_id, p.name, p.description, p.barcode, p.price, p.stock,
	p.category_id, c.name AS category
FROM products p
LEFT JOIN categories c ON c.category_id = p.category_id`

type productRow struct {
	ID          int64           `db:"product_id"`
	Name        string          `db:"name"`
	Description sql.NullString  `db:"description"`
	Barcode     sql.NullString  `db:"barcode"`
	Price       decimal.Decimal `db:"price"`
	Stock       int             `db:"stock"`
	CategoryID  sql.NullInt64   `db:"category_id"`
	Category    sql.NullString  `db:"category"`
}

func (r productRow) toDomain() catalog.Product {
	return catalog.Product{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Barcode:     r.Barcode.String,
		Price:       r.Price,
		Stock:       r.Stock,
		CategoryID:  r.CategoryID.Int64,
		Category:    r.Category.String,
	}
}

func (s *Store) FindProduct(ctx context.Context, id int64) (*catalog.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT`+productColumns+` WHERE p.product_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(catalog.ErrNotFound, "product %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "sqlstore: find product %d", id)
	}
	p := row.toDomain()
	return &p, nil
}

func (s *Store) ProductsByID(ctx context.Context, ids []int64) (map[int64]catalog.Product, error) {
	out := make(map[int64]catalog.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT`+productColumns+` WHERE p.product_id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "sqlstore: expand product ids")
	}
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "sqlstore: products by id")
	}
	for _, r := range rows {
		out[r.ID] = r.toDomain()
	}
	return out, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT`+productColumns+` ORDER BY p.name, p.product_id`); err != nil {
		return nil, errors.Wrap(err, "sqlstore: list products")
	}
	out := make([]catalog.Product, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}
