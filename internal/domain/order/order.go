package order

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Zhima-Mochi/supershop/internal/domain/money"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidOrder    = errors.New("order: invalid order")
	ErrInvalidUser     = fmt.Errorf("%w: user id is required", ErrInvalidOrder)
	ErrEmptyCart       = fmt.Errorf("%w: at least one item is required", ErrInvalidOrder)
	ErrInvalidProduct  = fmt.Errorf("%w: product id is required", ErrInvalidOrder)
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be greater than zero", ErrInvalidOrder)
	ErrInvalidPrice    = fmt.Errorf("%w: price must be zero or greater", ErrInvalidOrder)
	ErrPricePrecision  = fmt.Errorf("%w: price must have at most %d decimal places", ErrInvalidOrder, money.Scale)
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// DefaultPaymentMethod is recorded when the caller does not name one.
const DefaultPaymentMethod = "card"

// Line is one cart entry. UnitPrice is the price the caller saw at order time
// and is stored as-is, never re-read from the catalog.
type Line struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return money.LineTotal(l.UnitPrice, l.Quantity)
}

type Order struct {
	ID            int64
	UserID        int64
	Lines         []Line
	Total         decimal.Decimal
	Status        Status
	PaymentMethod string
	CreatedAt     time.Time
}

type Payment struct {
	OrderID int64
	Amount  decimal.Decimal
	Method  string
}

// ProductQuantity is the combined quantity requested for one product across all lines.
type ProductQuantity struct {
	ProductID int64
	Quantity  int
}

// New validates the cart and builds a completed order whose total is the exact
// sum of the line subtotals.
func New(userID int64, lines []Line, paymentMethod string) (*Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidUser
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	total := decimal.Zero
	copied := make([]Line, len(lines))
	for i, l := range lines {
		if l.ProductID <= 0 {
			return nil, fmt.Errorf("%w (line %d)", ErrInvalidProduct, i)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w (line %d)", ErrInvalidQuantity, i)
		}
		if l.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w (line %d)", ErrInvalidPrice, i)
		}
		if !l.UnitPrice.Equal(money.Round(l.UnitPrice)) {
			return nil, fmt.Errorf("%w (line %d)", ErrPricePrecision, i)
		}
		copied[i] = l
		total = total.Add(l.Subtotal())
	}

	if paymentMethod == "" {
		paymentMethod = DefaultPaymentMethod
	}

	return &Order{
		UserID:        userID,
		Lines:         copied,
		Total:         total,
		Status:        StatusCompleted,
		PaymentMethod: paymentMethod,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Quantities aggregates the lines per product, ordered by product id so stock
// rows are always locked in the same order.
func (o *Order) Quantities() []ProductQuantity {
	byProduct := make(map[int64]int, len(o.Lines))
	for _, l := range o.Lines {
		byProduct[l.ProductID] += l.Quantity
	}
	out := make([]ProductQuantity, 0, len(byProduct))
	for id, q := range byProduct {
		out = append(out, ProductQuantity{ProductID: id, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Payment is the single payment row recorded with the order.
func (o *Order) Payment() Payment {
	return Payment{OrderID: o.ID, Amount: o.Total, Method: o.PaymentMethod}
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.Lines = append([]Line(nil), o.Lines...)
	return &c
}
