// Package analysis exposes the co-purchase analyzer and sales overview as use cases.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/supershop/internal/application"
	"github.com/Zhima-Mochi/supershop/internal/domain/analysis"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	"github.com/Zhima-Mochi/supershop/internal/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	analysisService      = "analysis-service"
	useCaseGlobal        = "analysis.global_associations"
	useCaseProduct       = "analysis.product"
	useCaseSalesOverview = "analysis.sales_overview"
	relatedLimit         = 5
	trendMonths          = 6
	topSellersLimit      = 10
)

// GlobalAssociations is the full affinity matrix plus the catalog it refers to.
type GlobalAssociations struct {
	Associations map[int64]map[int64]float64
	Products     []catalog.Product
}

// ProductAnalysis is the per-product rollup. Never-sold products get zero stats
// and empty Associated/Trend slices.
type ProductAnalysis struct {
	Product    catalog.Product
	Associated []AssociatedProduct
	Stats      analysis.Stats
	Trend      []analysis.MonthlyPoint
}

type AssociatedProduct struct {
	analysis.Related
	Name  string
	Price decimal.Decimal
}

type SalesOverview struct {
	TopProducts []analysis.ProductSales
	Totals      analysis.Totals
}

// Service runs the analyzer against the storage collaborator. It holds no state
// between calls; every result is recomputed.
type Service struct {
	sales   analysis.Reader
	catalog catalog.Reader
	inst    *application.Instruments
}

func NewService(sales analysis.Reader, products catalog.Reader, tel observability.Observability) *Service {
	return &Service{
		sales:   sales,
		catalog: products,
		inst:    application.NewInstruments(tel, analysisService),
	}
}

// GlobalAssociations computes the affinity of every purchased product to each
// product it was bought with.
func (s *Service) GlobalAssociations(ctx context.Context) (_ *GlobalAssociations, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseGlobal, "GlobalAssociations")
	defer func() { run.End(err) }()

	var (
		rows     []analysis.OrderProduct
		products []catalog.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.sales.CompletedOrderProducts(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		products, err = s.catalog.ListProducts(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		run.Fail("REPO_READ_FAILED")
		return nil, application.WrapStorage(err)
	}

	m := analysis.BuildMatrix(rows)
	run.With(
		observability.F("pairs", len(rows)),
		observability.F("products", len(m.Products())),
	)
	return &GlobalAssociations{Associations: m.Affinities(), Products: products}, nil
}

// ProductAnalysis builds the rollup for one product. Metadata and sales are
// read concurrently; the two reads need not observe the same snapshot.
func (s *Service) ProductAnalysis(ctx context.Context, productID int64) (_ *ProductAnalysis, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseProduct, "ProductAnalysis",
		attribute.Int64("product.id", productID),
	)
	defer func() { run.End(err) }()

	if productID <= 0 {
		run.Fail("PRODUCT_ID_INVALID")
		return nil, application.NewValidation("product id must be positive")
	}

	var (
		product *catalog.Product
		rows    []analysis.OrderProduct
		sales   []analysis.Sale
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		product, err = s.catalog.FindProduct(gctx, productID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.sales.CompletedOrderProductsWith(gctx, productID)
		return err
	})
	g.Go(func() error {
		var err error
		sales, err = s.sales.CompletedSales(gctx, productID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			run.Fail("PRODUCT_NOT_FOUND")
		} else {
			run.Fail("REPO_READ_FAILED")
		}
		return nil, application.WrapStorage(err)
	}

	related := analysis.BuildMatrix(rows).Related(productID, relatedLimit)
	associated, err := s.describe(ctx, related)
	if err != nil {
		run.Fail("REPO_READ_FAILED")
		return nil, err
	}

	out := &ProductAnalysis{
		Product:    *product,
		Associated: associated,
		Stats:      analysis.Summarize(sales),
		Trend:      analysis.MonthlyTrend(sales, trendMonths),
	}
	run.With(
		observability.F("associated", len(out.Associated)),
		observability.F("total_orders", out.Stats.TotalOrders),
	)
	return out, nil
}

// describe attaches catalog names and prices to related products. Products
// deleted from the catalog since they were sold keep their id with no name.
func (s *Service) describe(ctx context.Context, related []analysis.Related) ([]AssociatedProduct, error) {
	out := make([]AssociatedProduct, 0, len(related))
	if len(related) == 0 {
		return out, nil
	}
	ids := make([]int64, len(related))
	for i, r := range related {
		ids[i] = r.ProductID
	}
	meta, err := s.catalog.ProductsByID(ctx, ids)
	if err != nil {
		return nil, application.WrapStorage(fmt.Errorf("describe related products: %w", err))
	}
	for _, r := range related {
		ap := AssociatedProduct{Related: r, Price: decimal.Zero}
		if p, ok := meta[r.ProductID]; ok {
			ap.Name = p.Name
			ap.Price = p.Price
		}
		out = append(out, ap)
	}
	return out, nil
}

// SalesOverview ranks the best sellers and reports store-wide totals.
func (s *Service) SalesOverview(ctx context.Context) (_ *SalesOverview, err error) {
	ctx, run := s.inst.Begin(ctx, useCaseSalesOverview, "SalesOverview")
	defer func() { run.End(err) }()

	var out SalesOverview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.TopProducts, err = s.sales.TopSellers(gctx, topSellersLimit)
		return err
	})
	g.Go(func() error {
		var err error
		out.Totals, err = s.sales.Totals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		run.Fail("REPO_READ_FAILED")
		return nil, application.WrapStorage(err)
	}
	return &out, nil
}
