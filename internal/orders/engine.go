package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultTxTimeout   = 10 * time.Second
	defaultBackoff     = 20 * time.Millisecond
)

// ItemRequest is one requested line: a product and how many units of it.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// InventoryStore reads and writes products inside the order transaction.
// Get returns a nil product when the id does not exist.
type InventoryStore interface {
	Get(ctx context.Context, productID string) (*domain.Product, error)
	Save(ctx context.Context, product *domain.Product) error
}

type OrderLedger interface {
	Insert(ctx context.Context, order *domain.Order) error
}

// Tx exposes the stores bound to one open transaction.
type Tx interface {
	Inventory() InventoryStore
	Ledger() OrderLedger
}

// Transactor runs fn in a single atomic unit of work. Any error from fn rolls
// everything back. Implementations report lost serialization races as
// ErrConcurrencyConflict.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CacheInvalidator drops cached copies of products whose stock changed.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, productIDs ...string) error
}

type EngineOption func(*Engine)

func WithMaxAttempts(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func WithTxTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.txTimeout = d
		}
	}
}

func WithBackoff(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.backoff = d
	}
}

func WithCacheInvalidator(c CacheInvalidator) EngineOption {
	return func(e *Engine) {
		e.invalidator = c
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine places orders: it checks and decrements stock for every line,
// snapshots prices and records the order, all in one transaction.
type Engine struct {
	tx          Transactor
	invalidator CacheInvalidator
	logger      *slog.Logger
	metrics     *engineMetrics
	maxAttempts int
	txTimeout   time.Duration
	backoff     time.Duration
	now         func() time.Time
	newID       func() string
}

func NewEngine(tx Transactor, logger *slog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		tx:          tx,
		logger:      logger,
		metrics:     mustEngineMetrics(),
		maxAttempts: DefaultMaxAttempts,
		txTimeout:   DefaultTxTimeout,
		backoff:     defaultBackoff,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceOrder validates items, then atomically reserves stock and records a
// Pending order for buyerID. Either the whole order commits or nothing does.
//
// The transaction is detached from ctx cancellation and bounded by the
// engine's tx timeout instead, so a caller that goes away never leaves the
// outcome undecided.
func (e *Engine) PlaceOrder(ctx context.Context, buyerID string, items []ItemRequest) (*domain.Order, error) {
	start := time.Now()

	if err := validateItems(buyerID, items); err != nil {
		e.metrics.recordFailure(ctx, err)
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "orders.PlaceOrder",
		trace.WithAttributes(
			attribute.String("buyer.id", buyerID),
			attribute.Int("order.items", len(items)),
		),
	)
	defer span.End()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.txTimeout)
	defer cancel()

	var (
		order *domain.Order
		err   error
	)
	for attempt := 1; ; attempt++ {
		order, err = e.placeOnce(txCtx, buyerID, items)
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= e.maxAttempts {
			break
		}

		e.metrics.retries.Add(ctx, 1)
		span.AddEvent("retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
		e.logger.Warn("order transaction conflicted, retrying", "buyer_id", buyerID, "attempt", attempt)

		if waitErr := sleep(txCtx, time.Duration(attempt)*e.backoff); waitErr != nil {
			break
		}
	}

	e.metrics.latency.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		e.metrics.recordFailure(ctx, err)
		span.SetAttributes(attribute.String("order.failure", failureReason(err)))
		var storageErr *StorageError
		if errors.As(err, &storageErr) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	e.metrics.placed.Add(ctx, 1, metric.WithAttributes(attribute.Int("items", len(order.Items))))
	e.invalidate(txCtx, order)

	return order, nil
}

func (e *Engine) placeOnce(ctx context.Context, buyerID string, items []ItemRequest) (*domain.Order, error) {
	var order *domain.Order

	err := e.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		lines := make([]domain.OrderItem, 0, len(items))
		total := decimal.Zero

		for _, item := range items {
			product, err := tx.Inventory().Get(ctx, item.ProductID)
			if err != nil {
				return &StorageError{Op: "get product", Err: err}
			}
			if product == nil {
				return &NotFoundError{ProductID: item.ProductID}
			}
			if product.Stock < item.Quantity {
				return &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Requested:   item.Quantity,
					Available:   product.Stock,
				}
			}

			product.Stock -= item.Quantity
			if err := tx.Inventory().Save(ctx, product); err != nil {
				return &StorageError{Op: "save product", Err: err}
			}

			line := domain.OrderItem{
				ProductID:       product.ID,
				Quantity:        item.Quantity,
				PriceAtPurchase: product.Price,
			}
			total = total.Add(line.Subtotal())
			lines = append(lines, line)
		}

		o := &domain.Order{
			ID:         e.newID(),
			BuyerID:    buyerID,
			Items:      lines,
			TotalPrice: total,
			Status:     domain.OrderStatusPending,
			CreatedAt:  e.now().UTC(),
		}
		if err := tx.Ledger().Insert(ctx, o); err != nil {
			return &StorageError{Op: "insert order", Err: err}
		}

		order = o
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return order, nil
}

// classify keeps business errors and the conflict sentinel as they are and
// turns anything else into a StorageError.
func classify(err error) error {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		stockErr      *InsufficientStockError
		storageErr    *StorageError
	)
	switch {
	case errors.Is(err, ErrConcurrencyConflict),
		errors.As(err, &validationErr), errors.As(err, &notFoundErr), errors.As(err, &stockErr):
		return err
	case errors.As(err, &storageErr):
		return storageErr
	default:
		return &StorageError{Op: "commit order", Err: err}
	}
}

func (e *Engine) invalidate(ctx context.Context, order *domain.Order) {
	if e.invalidator == nil {
		return
	}

	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}

	if err := e.invalidator.Invalidate(ctx, ids...); err != nil {
		e.logger.Warn("failed to invalidate product cache", "order_id", order.ID, "error", err)
	}
}

func validateItems(buyerID string, items []ItemRequest) error {
	var problems []string

	if strings.TrimSpace(buyerID) == "" {
		problems = append(problems, "buyer is required")
	}

	if len(items) == 0 {
		problems = append(problems, "order must be a non-empty array")
	}

	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			problems = append(problems, fmt.Sprintf("items[%d]: productId is required", i))
		}
		if item.Quantity <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d]: quantity must be a positive integer", i))
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
