package broker

import (
	"fmt"

	"github.com/google/uuid"
)

// StockNotFoundError is returned when the market has no such symbol.
type StockNotFoundError struct {
	Symbol string
}

func (e *StockNotFoundError) Error() string {
	return fmt.Sprintf("stock %s not found in market", e.Symbol)
}

// ConnectionError is a transport-layer failure. Retriable.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("broker connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// BuyError wraps any failure of a buy primitive with the identifiers the
// portfolio needs to build its failure list.
type BuyError struct {
	Symbol      string
	OperationID uuid.UUID
	BatchID     uuid.UUID
	Err         error
}

func (e *BuyError) Error() string {
	return fmt.Sprintf("buy %s failed (operation %s): %v", e.Symbol, e.OperationID, e.Err)
}

func (e *BuyError) Unwrap() error {
	return e.Err
}

// SellError is the sell-side counterpart of BuyError.
type SellError struct {
	Symbol      string
	OperationID uuid.UUID
	BatchID     uuid.UUID
	Err         error
}

func (e *SellError) Error() string {
	return fmt.Sprintf("sell %s failed (operation %s): %v", e.Symbol, e.OperationID, e.Err)
}

func (e *SellError) Unwrap() error {
	return e.Err
}

// InvalidOrderError reports a request that fails broker-side validation
// (non-positive amount or quantity, quantity above MAX_QUANTITY).
type InvalidOrderError struct {
	Symbol string
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order for %s: %s", e.Symbol, e.Reason)
}
