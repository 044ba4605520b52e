package portfolio

import (
	"fmt"

	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
)

// ValidationError reports an invalid portfolio configuration. Validation
// fails at the boundary and never propagates into the rebalance engine.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid portfolio config: %s", e.Reason)
}

// InitializationError means one or more opening orders failed and the
// rollback succeeded.
type InitializationError struct {
	PortfolioName string
	Failed        []model.OperationFailure
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("portfolio %q initialization failed: %d operations failed, rollback succeeded", e.PortfolioName, len(e.Failed))
}

// RetryError means a rebalance failed and the rollback succeeded; the
// portfolio is consistent and a later price change may retry.
type RetryError struct {
	PortfolioName string
	Failed        []model.OperationFailure
	Attempt       int
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("portfolio %q rebalance failed (attempt %d): %d operations failed, rollback succeeded", e.PortfolioName, e.Attempt, len(e.Failed))
}

// StaleError means a rollback also failed: holdings and broker state are
// known to be inconsistent and every mutating operation is rejected until
// operator intervention.
type StaleError struct {
	PortfolioName string
	Failed        []model.OperationFailure
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("portfolio %q is stale: manual recovery required", e.PortfolioName)
}
