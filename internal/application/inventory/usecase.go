package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/supershop/internal/application"
	"github.com/Zhima-Mochi/supershop/internal/domain/catalog"
	dominv "github.com/Zhima-Mochi/supershop/internal/domain/inventory"
	"github.com/Zhima-Mochi/supershop/internal/observability"

	"go.opentelemetry.io/otel/attribute"
)

const (
	inventoryService   = "inventory-service"
	useCaseAdjustStock = "inventory.adjust"
)

type AdjustStockInput struct {
	ProductID int64
	Delta     int
}

type AdjustStockResult struct {
	ProductID int64
	NewStock  int
}

// AdjustStockUseCase applies an administrative stock change. Restocks are
// positive deltas; write-offs are negative and may not take stock below zero.
type AdjustStockUseCase struct {
	adjuster dominv.Adjuster
	inst     *application.Instruments
}

func NewAdjustStockUseCase(adjuster dominv.Adjuster, tel observability.Observability) *AdjustStockUseCase {
	return &AdjustStockUseCase{
		adjuster: adjuster,
		inst:     application.NewInstruments(tel, inventoryService),
	}
}

var _ application.UseCase[AdjustStockInput, *AdjustStockResult] = (*AdjustStockUseCase)(nil)

func (uc *AdjustStockUseCase) Execute(ctx context.Context, cmd AdjustStockInput) (_ *AdjustStockResult, err error) {
	ctx, run := uc.inst.Begin(ctx, useCaseAdjustStock, "AdjustStock",
		attribute.Int64("product.id", cmd.ProductID),
		attribute.Int("stock.delta", cmd.Delta),
	)
	defer func() { run.End(err) }()

	if cmd.ProductID <= 0 {
		run.Fail("PRODUCT_ID_INVALID")
		return nil, application.NewValidation("product id must be positive")
	}
	if cmd.Delta == 0 {
		run.Fail("DELTA_ZERO")
		return nil, fmt.Errorf("%w: %w", application.ErrValidation, dominv.ErrInvalidAdjustment)
	}

	stock, aerr := uc.adjuster.AdjustStock(ctx, cmd.ProductID, cmd.Delta)
	if aerr != nil {
		switch {
		case errors.Is(aerr, catalog.ErrNotFound):
			run.Fail("PRODUCT_NOT_FOUND")
		case errors.Is(aerr, dominv.ErrInsufficientStock):
			run.Fail("INSUFFICIENT_STOCK")
		default:
			run.Fail("REPO_UPDATE_FAILED")
		}
		return nil, application.WrapStorage(aerr)
	}

	run.With(observability.F("new_stock", stock))
	return &AdjustStockResult{ProductID: cmd.ProductID, NewStock: stock}, nil
}
