// Package broker holds the order-execution contract and the batch-atomic
// implementation of it. A batch is the atomicity boundary: operations
// sharing a batch id either all commit or are reverted by compensating
// trades.
package broker

import (
	"context"

	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Market is the price source the broker executes against. The broker
// treats it as opaque.
type Market interface {
	PriceOf(symbol string) (decimal.Decimal, error)
	Has(symbol string) bool
}

// Broker executes buy/sell orders. Operations carrying a batch id are
// recorded per-operation in the broker's batch table; operations without
// one are stand-alone and leave no residual state. Primitives are
// idempotent relative to the operation id within a still-live batch.
type Broker interface {
	BuyByAmount(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error)
	BuyByQuantity(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error)
	SellByAmount(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error)
	SellByQuantity(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error)

	// RollbackBatch reverses every successful, not-yet-reversed operation
	// of the batch with quantity-based inverse trades. Returns true when
	// nothing remains to undo, false when at least one reversal failed
	// after the configured attempts.
	RollbackBatch(ctx context.Context, batchID uuid.UUID) bool

	// DiscardBatch drops a committed batch from the table.
	DiscardBatch(batchID uuid.UUID)
}
