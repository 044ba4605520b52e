package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/KotFed0t/portfolio_rebalancer/config"
	"github.com/KotFed0t/portfolio_rebalancer/internal/decimalutil"
	"github.com/KotFed0t/portfolio_rebalancer/internal/model"
	"github.com/KotFed0t/portfolio_rebalancer/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExecHook runs before an order executes. Deployments use it for real or
// simulated transport latency; tests use it for fault injection. Returning
// an error fails the operation.
type ExecHook func(ctx context.Context, req model.OrderRequest) error

type operationEntry struct {
	outcome          model.OrderOutcome
	err              error
	rollbackAttempts int
}

type batch struct {
	createdAt time.Time
	order     []uuid.UUID
	ops       map[uuid.UUID]*operationEntry
}

// BatchBroker implements Broker over a Market. Its batch table is the only
// process-wide shared mutable structure of the engine; the mutex guards
// table mutations only and is never held across order execution.
type BatchBroker struct {
	market Market
	cfg    *config.Config
	hook   ExecHook

	mu      sync.Mutex
	batches map[uuid.UUID]*batch
}

type Option func(*BatchBroker)

func WithExecHook(hook ExecHook) Option {
	return func(b *BatchBroker) { b.hook = hook }
}

func New(market Market, cfg *config.Config, opts ...Option) *BatchBroker {
	b := &BatchBroker{
		market:  market,
		cfg:     cfg,
		batches: make(map[uuid.UUID]*batch),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BatchBroker) BuyByAmount(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error) {
	req.Side = model.SideBuy
	req.ByAmount = true
	return b.execute(ctx, req)
}

func (b *BatchBroker) BuyByQuantity(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error) {
	req.Side = model.SideBuy
	req.ByAmount = false
	return b.execute(ctx, req)
}

func (b *BatchBroker) SellByAmount(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error) {
	req.Side = model.SideSell
	req.ByAmount = true
	return b.execute(ctx, req)
}

func (b *BatchBroker) SellByQuantity(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error) {
	req.Side = model.SideSell
	req.ByAmount = false
	return b.execute(ctx, req)
}

func (b *BatchBroker) execute(ctx context.Context, req model.OrderRequest) (model.OrderOutcome, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	if entry, ok := b.recorded(req); ok {
		slog.Debug(
			"returning recorded outcome for re-issued operation",
			slog.String("rqID", rqID),
			slog.String("operationID", req.OperationID.String()),
			slog.String("batchID", req.BatchID.String()),
		)
		return entry.outcome, entry.err
	}

	b.registerPending(req)

	if err := b.validate(req); err != nil {
		return b.fail(ctx, req, err)
	}

	price, err := b.market.PriceOf(req.Symbol)
	if err != nil {
		return b.fail(ctx, req, &StockNotFoundError{Symbol: req.Symbol})
	}

	if b.hook != nil {
		if err := b.hook(ctx, req); err != nil {
			var connErr *ConnectionError
			if !errors.As(err, &connErr) {
				err = &ConnectionError{Err: err}
			}
			return b.fail(ctx, req, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return b.fail(ctx, req, &ConnectionError{Err: err})
	}

	var quantity, amount decimal.Decimal
	if req.ByAmount {
		quantity = decimalutil.QuantizeQuantity(req.Amount.Div(price))
		amount = decimalutil.QuantizeMoney(req.Amount)
	} else {
		quantity = decimalutil.QuantizeQuantity(req.Quantity)
		amount = decimalutil.QuantizeMoney(price.Mul(req.Quantity))
	}

	outcome := model.OrderOutcome{
		Request:    req,
		Status:     model.OperationSuccess,
		Price:      price,
		Quantity:   quantity,
		Amount:     amount,
		ExecutedAt: time.Now(),
	}

	b.record(req, outcome, nil)

	slog.Debug(
		"order executed",
		slog.String("rqID", rqID),
		slog.String("side", string(req.Side)),
		slog.String("symbol", req.Symbol),
		slog.String("price", price.String()),
		slog.String("quantity", quantity.String()),
		slog.String("operationID", req.OperationID.String()),
	)

	return outcome, nil
}

func (b *BatchBroker) validate(req model.OrderRequest) error {
	if req.ByAmount {
		if !req.Amount.IsPositive() {
			return &InvalidOrderError{Symbol: req.Symbol, Reason: "amount must be positive"}
		}
		return nil
	}
	if !req.Quantity.IsPositive() {
		return &InvalidOrderError{Symbol: req.Symbol, Reason: "quantity must be positive"}
	}
	if req.Quantity.GreaterThan(b.cfg.Broker.MaxQuantity) {
		return &InvalidOrderError{Symbol: req.Symbol, Reason: "quantity exceeds per-order ceiling"}
	}
	return nil
}

// fail wraps the cause in the side-specific error, records it under the
// batch id if one was supplied, and returns it.
func (b *BatchBroker) fail(ctx context.Context, req model.OrderRequest, cause error) (model.OrderOutcome, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	var err error
	if req.Side == model.SideBuy {
		err = &BuyError{Symbol: req.Symbol, OperationID: req.OperationID, BatchID: req.BatchID, Err: cause}
	} else {
		err = &SellError{Symbol: req.Symbol, OperationID: req.OperationID, BatchID: req.BatchID, Err: cause}
	}

	outcome := model.OrderOutcome{
		Request:    req,
		Status:     model.OperationError,
		ExecutedAt: time.Now(),
		ErrContext: cause.Error(),
	}

	b.record(req, outcome, err)

	slog.Error(
		"order failed",
		slog.String("rqID", rqID),
		slog.String("side", string(req.Side)),
		slog.String("symbol", req.Symbol),
		slog.String("operationID", req.OperationID.String()),
		slog.String("err", cause.Error()),
	)

	return outcome, err
}

// recorded returns the previously stored outcome for a re-issued
// (batchID, operationID) pair. The underlying side effect is not
// duplicated.
func (b *BatchBroker) recorded(req model.OrderRequest) (operationEntry, bool) {
	if req.BatchID == uuid.Nil {
		return operationEntry{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bt, ok := b.batches[req.BatchID]
	if !ok {
		return operationEntry{}, false
	}
	entry, ok := bt.ops[req.OperationID]
	if !ok {
		return operationEntry{}, false
	}
	return *entry, true
}

func (b *BatchBroker) registerPending(req model.OrderRequest) {
	if req.BatchID == uuid.Nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bt, ok := b.batches[req.BatchID]
	if !ok {
		bt = &batch{createdAt: time.Now(), ops: make(map[uuid.UUID]*operationEntry)}
		b.batches[req.BatchID] = bt
	}
	bt.order = append(bt.order, req.OperationID)
	bt.ops[req.OperationID] = &operationEntry{
		outcome: model.OrderOutcome{Request: req, Status: model.OperationPending},
	}
}

func (b *BatchBroker) record(req model.OrderRequest, outcome model.OrderOutcome, err error) {
	if req.BatchID == uuid.Nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	bt, ok := b.batches[req.BatchID]
	if !ok {
		return
	}
	entry, ok := bt.ops[req.OperationID]
	if !ok {
		return
	}
	entry.outcome = outcome
	entry.err = err
}

// RollbackBatch enumerates the batch's successful operations that have not
// been reversed yet and executes a quantity-based inverse for each, with up
// to RollbackMaxAttempts attempts per operation. A fully reversed batch is
// consumed; a second call is a no-op returning true. An unknown batch id
// means nothing to undo.
func (b *BatchBroker) RollbackBatch(ctx context.Context, batchID uuid.UUID) bool {
	rqID := utils.GetRequestIDFromCtx(ctx)

	b.mu.Lock()
	bt, ok := b.batches[batchID]
	if !ok {
		b.mu.Unlock()
		return true
	}

	var reverseIDs []uuid.UUID
	for _, opID := range bt.order {
		entry := bt.ops[opID]
		if entry.outcome.Status == model.OperationSuccess && !entry.outcome.RolledBack && !entry.outcome.Request.Rollback {
			reverseIDs = append(reverseIDs, opID)
		}
	}
	b.mu.Unlock()

	allReversed := true

	for _, opID := range reverseIDs {
		b.mu.Lock()
		entry := bt.ops[opID]
		original := entry.outcome
		b.mu.Unlock()

		reversed := false

		for attempt := 1; attempt <= b.cfg.Broker.RollbackMaxAttempts; attempt++ {
			// Fresh inverse per attempt so a failed attempt's recorded
			// error is not replayed by the idempotency check.
			inverse := original.InverseRequest()

			var err error
			if inverse.Side == model.SideSell {
				_, err = b.SellByQuantity(ctx, inverse)
			} else {
				_, err = b.BuyByQuantity(ctx, inverse)
			}

			b.mu.Lock()
			entry.rollbackAttempts = attempt
			b.mu.Unlock()

			if err == nil {
				reversed = true
				break
			}

			slog.Warn(
				"rollback attempt failed",
				slog.String("rqID", rqID),
				slog.String("batchID", batchID.String()),
				slog.String("operationID", opID.String()),
				slog.Int("attempt", attempt),
				slog.String("err", err.Error()),
			)

			if attempt < b.cfg.Broker.RollbackMaxAttempts {
				if err := sleepCtx(ctx, b.cfg.Broker.RollbackRetryDelay); err != nil {
					break
				}
			}
		}

		if !reversed {
			allReversed = false
			slog.Error(
				"operation could not be rolled back",
				slog.String("rqID", rqID),
				slog.String("batchID", batchID.String()),
				slog.String("operationID", opID.String()),
				slog.Int("attempts", b.cfg.Broker.RollbackMaxAttempts),
			)
			continue
		}

		b.mu.Lock()
		entry.outcome.Status = model.OperationRolledBack
		entry.outcome.RolledBack = true
		b.mu.Unlock()
	}

	if allReversed {
		b.mu.Lock()
		delete(b.batches, batchID)
		b.mu.Unlock()
		slog.Debug("batch fully rolled back", slog.String("rqID", rqID), slog.String("batchID", batchID.String()))
	}

	return allReversed
}

// DiscardBatch drops a batch from the table. Portfolios call it after a
// fully successful commit.
func (b *BatchBroker) DiscardBatch(batchID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.batches, batchID)
}

// BatchOutcomes returns a copy of the batch's recorded outcomes in
// registration order, or nil for an unknown batch.
func (b *BatchBroker) BatchOutcomes(batchID uuid.UUID) []model.OrderOutcome {
	b.mu.Lock()
	defer b.mu.Unlock()

	bt, ok := b.batches[batchID]
	if !ok {
		return nil
	}
	outcomes := make([]model.OrderOutcome, 0, len(bt.order))
	for _, opID := range bt.order {
		outcomes = append(outcomes, bt.ops[opID].outcome)
	}
	return outcomes
}

// SweepBatches removes batches older than maxAge so an abandoned caller
// cannot leak table entries. Returns the number of batches removed.
func (b *BatchBroker) SweepBatches(maxAge time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, bt := range b.batches {
		if bt.createdAt.Before(cutoff) {
			delete(b.batches, id)
			removed++
		}
	}
	return removed
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
