package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OperationState is the lifecycle of a single operation within a batch:
// pending -> success -> rolled_back, or pending -> error.
type OperationState string

const (
	OperationPending    OperationState = "PENDING"
	OperationSuccess    OperationState = "SUCCESS"
	OperationError      OperationState = "ERROR"
	OperationRolledBack OperationState = "ROLLED_BACK"
)

// OrderRequest describes one buy or sell sent to the broker. Amount is set
// for by-amount orders, Quantity for by-quantity orders. BatchID is
// uuid.Nil for stand-alone operations, which leave no state in the broker.
// An OrderRequest carries no outcome; outcomes live in the batch table.
type OrderRequest struct {
	OperationID uuid.UUID
	BatchID     uuid.UUID
	Symbol      string
	Side        Side
	ByAmount    bool
	Amount      decimal.Decimal
	Quantity    decimal.Decimal
	Rollback    bool
	CreatedAt   time.Time
}

func NewBuyByAmount(symbol string, amount decimal.Decimal, batchID uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        SideBuy,
		ByAmount:    true,
		Amount:      amount,
		CreatedAt:   time.Now(),
	}
}

func NewBuyByQuantity(symbol string, quantity decimal.Decimal, batchID uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        SideBuy,
		Quantity:    quantity,
		CreatedAt:   time.Now(),
	}
}

func NewSellByAmount(symbol string, amount decimal.Decimal, batchID uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        SideSell,
		ByAmount:    true,
		Amount:      amount,
		CreatedAt:   time.Now(),
	}
}

func NewSellByQuantity(symbol string, quantity decimal.Decimal, batchID uuid.UUID) OrderRequest {
	return OrderRequest{
		OperationID: uuid.New(),
		BatchID:     batchID,
		Symbol:      symbol,
		Side:        SideSell,
		Quantity:    quantity,
		CreatedAt:   time.Now(),
	}
}

// OrderOutcome records what the broker did with one request: the execution
// price, the realized quantity at the 9-decimal scale and the realized cash
// amount. RolledBack is set once a successful operation has been reversed
// by a compensating trade and never transitions back.
type OrderOutcome struct {
	Request    OrderRequest
	Status     OperationState
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Amount     decimal.Decimal
	RolledBack bool
	ExecutedAt time.Time
	ErrContext string
}

// InverseRequest derives the compensating operation for a successful
// outcome: a buy becomes a sell of the realized quantity, a sell becomes a
// buy of the realized quantity. Quantity-based so the share count reverses
// exactly; any cash drift from a moved price is accepted.
func (o OrderOutcome) InverseRequest() OrderRequest {
	req := OrderRequest{
		OperationID: uuid.New(),
		BatchID:     o.Request.BatchID,
		Symbol:      o.Request.Symbol,
		Quantity:    o.Quantity,
		Rollback:    true,
		CreatedAt:   time.Now(),
	}
	if o.Request.Side == SideBuy {
		req.Side = SideSell
	} else {
		req.Side = SideBuy
	}
	return req
}

// OperationFailure is the contextual payload a failed operation contributes
// to portfolio-level errors.
type OperationFailure struct {
	OperationID uuid.UUID
	BatchID     uuid.UUID
	Symbol      string
	Side        Side
	Reason      string
}
