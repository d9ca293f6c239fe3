package httppresentation

import (
	"strconv"

	appanalysis "github.com/Zhima-Mochi/supershop/internal/application/analysis"
	apporder "github.com/Zhima-Mochi/supershop/internal/application/order"
	"github.com/Zhima-Mochi/supershop/internal/domain/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/domain/money"
	domain "github.com/Zhima-Mochi/supershop/internal/domain/order"

	"github.com/shopspring/decimal"
)

// amount renders a currency value as a JSON number with two decimals.
type amount decimal.Decimal

func (a amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(a).StringFixed(money.Scale)), nil
}

type orderItemRequest struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type placeOrderRequest struct {
	UserID        int64              `json:"user_id"`
	Items         []orderItemRequest `json:"items"`
	PaymentMethod string             `json:"payment_method,omitempty"`
}

func (r placeOrderRequest) toInput(idempotencyKey string) apporder.PlaceOrderInput {
	lines := make([]domain.Line, len(r.Items))
	for i, it := range r.Items {
		lines[i] = domain.Line{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.Price}
	}
	return apporder.PlaceOrderInput{
		IdempotencyKey: idempotencyKey,
		UserID:         r.UserID,
		Lines:          lines,
		PaymentMethod:  r.PaymentMethod,
	}
}

type placeOrderResponse struct {
	Success bool   `json:"success"`
	OrderID int64  `json:"order_id"`
	Total   amount `json:"total"`
	Message string `json:"message"`
}

type adjustStockRequest struct {
	StockChange *int `json:"stock_change"`
}

type adjustStockResponse struct {
	Success  bool   `json:"success"`
	NewStock int    `json:"new_stock"`
	Message  string `json:"message"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type productDTO struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       amount `json:"price"`
	Stock       int    `json:"stock"`
	Category    string `json:"category,omitempty"`
}

func newProductDTO(p catalog.Product) productDTO {
	return productDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       amount(p.Price),
		Stock:       p.Stock,
		Category:    p.Category,
	}
}

type globalAssociationsResponse struct {
	Success      bool                          `json:"success"`
	Associations map[string]map[string]float64 `json:"associations"`
	Products     []productDTO                  `json:"products"`
}

func newGlobalAssociationsResponse(g *appanalysis.GlobalAssociations) globalAssociationsResponse {
	assoc := make(map[string]map[string]float64, len(g.Associations))
	for a, row := range g.Associations {
		out := make(map[string]float64, len(row))
		for b, pct := range row {
			out[strconv.FormatInt(b, 10)] = pct
		}
		assoc[strconv.FormatInt(a, 10)] = out
	}
	products := make([]productDTO, len(g.Products))
	for i, p := range g.Products {
		products[i] = newProductDTO(p)
	}
	return globalAssociationsResponse{Success: true, Associations: assoc, Products: products}
}

type associatedDTO struct {
	ID              int64   `json:"id"`
	Name            string  `json:"name"`
	Price           amount  `json:"price"`
	CoPurchaseCount int     `json:"co_purchase_count"`
	Percentage      float64 `json:"percentage"`
}

type statsDTO struct {
	TotalOrders         int    `json:"total_orders"`
	TotalSold           int    `json:"total_sold"`
	TotalRevenue        amount `json:"total_revenue"`
	AvgQuantityPerOrder amount `json:"avg_quantity_per_order"`
}

type trendDTO struct {
	Month          string `json:"month"`
	MonthlySold    int    `json:"monthly_sold"`
	MonthlyRevenue amount `json:"monthly_revenue"`
}

type productAnalysisResponse struct {
	Success            bool            `json:"success"`
	Product            productDTO      `json:"product"`
	AssociatedProducts []associatedDTO `json:"associated_products"`
	Stats              statsDTO        `json:"stats"`
	MonthlyTrend       []trendDTO      `json:"monthly_trend"`
}

func newProductAnalysisResponse(p *appanalysis.ProductAnalysis) productAnalysisResponse {
	assoc := make([]associatedDTO, len(p.Associated))
	for i, a := range p.Associated {
		assoc[i] = associatedDTO{
			ID:              a.ProductID,
			Name:            a.Name,
			Price:           amount(a.Price),
			CoPurchaseCount: a.Count,
			Percentage:      a.Percentage,
		}
	}
	trend := make([]trendDTO, len(p.Trend))
	for i, t := range p.Trend {
		trend[i] = trendDTO{Month: t.Month, MonthlySold: t.Sold, MonthlyRevenue: amount(t.Revenue)}
	}
	return productAnalysisResponse{
		Success:            true,
		Product:            newProductDTO(p.Product),
		AssociatedProducts: assoc,
		Stats:              newStatsDTO(p.Stats),
		MonthlyTrend:       trend,
	}
}

func newStatsDTO(s analysis.Stats) statsDTO {
	return statsDTO{
		TotalOrders:         s.TotalOrders,
		TotalSold:           s.TotalSold,
		TotalRevenue:        amount(s.TotalRevenue),
		AvgQuantityPerOrder: amount(s.AvgQuantityPerOrder),
	}
}

type topProductDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Price     amount `json:"price"`
	Stock     int    `json:"stock"`
	TotalSold int    `json:"total_sold"`
	Revenue   amount `json:"revenue"`
}

type overviewStatsDTO struct {
	TotalProducts int    `json:"total_products"`
	TotalOrders   int    `json:"total_orders"`
	TotalRevenue  amount `json:"total_revenue"`
	TotalStock    int    `json:"total_stock"`
}

type analyticsDTO struct {
	TopProducts []topProductDTO  `json:"top_products"`
	Stats       overviewStatsDTO `json:"stats"`
}

type salesOverviewResponse struct {
	Success   bool         `json:"success"`
	Analytics analyticsDTO `json:"analytics"`
}

func newSalesOverviewResponse(o *appanalysis.SalesOverview) salesOverviewResponse {
	var resp salesOverviewResponse
	resp.Success = true
	resp.Analytics.TopProducts = make([]topProductDTO, len(o.TopProducts))
	for i, p := range o.TopProducts {
		resp.Analytics.TopProducts[i] = topProductDTO{
			ID:        p.ProductID,
			Name:      p.Name,
			Price:     amount(p.Price),
			Stock:     p.Stock,
			TotalSold: p.TotalSold,
			Revenue:   amount(p.Revenue),
		}
	}
	resp.Analytics.Stats = overviewStatsDTO{
		TotalProducts: o.Totals.Products,
		TotalOrders:   o.Totals.Orders,
		TotalRevenue:  amount(o.Totals.Revenue),
		TotalStock:    o.Totals.Stock,
	}
	return resp
}
