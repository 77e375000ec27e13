package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

// Buyer identifies the authenticated caller.
type Buyer struct {
	ID    string
	Email string
	Admin bool
}

// Response is an envelope together with the HTTP status it maps to.
type Response struct {
	Status int
	Body   httpx.Envelope
}

const publishTimeout = 5 * time.Second

// EventPublisher delivers domain events keyed for partitioning.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type orderPlacer interface {
	PlaceOrder(ctx context.Context, buyerID string, items []ItemRequest) (*domain.Order, error)
}

type orderReader interface {
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
}

// Service maps raw requests onto the engine and ledger and their outcomes
// onto response envelopes.
type Service struct {
	engine    orderPlacer
	ledger    orderReader
	publisher EventPublisher
	logger    *slog.Logger
}

// NewService builds a Service. publisher may be nil, in which case no events
// are emitted.
func NewService(engine orderPlacer, ledger orderReader, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		engine:    engine,
		ledger:    ledger,
		publisher: publisher,
		logger:    logger,
	}
}

// OrderView is the wire shape of an order.
type OrderView struct {
	OrderID    string             `json:"order_id"`
	Status     domain.OrderStatus `json:"status"`
	TotalPrice decimal.Decimal    `json:"total_price"`
	LineItems  []domain.OrderItem `json:"line_items"`
	CreatedAt  time.Time          `json:"created_at"`
}

func viewOf(o domain.Order) OrderView {
	items := o.Items
	if items == nil {
		items = []domain.OrderItem{}
	}
	return OrderView{
		OrderID:    o.ID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		LineItems:  items,
		CreatedAt:  o.CreatedAt,
	}
}

func (s *Service) PlaceOrder(ctx context.Context, buyer Buyer, payload json.RawMessage) Response {
	items, err := decodeItems(payload)
	if err != nil {
		return s.failure(err)
	}

	order, err := s.engine.PlaceOrder(ctx, buyer.ID, items)
	if err != nil {
		return s.failure(err)
	}

	s.logger.Info("order placed", "order_id", order.ID, "buyer_id", buyer.ID, "total_price", order.TotalPrice.String())
	s.publishPlaced(ctx, buyer, order)

	return Response{Status: http.StatusCreated, Body: httpx.Success("Order placed successfully", viewOf(*order))}
}

func (s *Service) ListOrders(ctx context.Context, buyer Buyer) Response {
	orders, err := s.ledger.ListByBuyer(ctx, buyer.ID)
	if err != nil {
		return s.failure(&StorageError{Op: "list orders", Err: err})
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, viewOf(o))
	}

	return Response{Status: http.StatusOK, Body: httpx.Success("Orders fetched", views)}
}

// GetOrder returns the order when buyer owns it or is an admin. Orders owned
// by someone else are reported as missing.
func (s *Service) GetOrder(ctx context.Context, buyer Buyer, id string) Response {
	order, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return s.failure(&StorageError{Op: "get order", Err: err})
	}

	if order == nil || (!buyer.Admin && order.BuyerID != buyer.ID) {
		return orderNotFound()
	}

	return Response{Status: http.StatusOK, Body: httpx.Success("Order fetched", viewOf(*order))}
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (s *Service) UpdateStatus(ctx context.Context, id string, payload json.RawMessage) Response {
	var req statusRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return s.failure(&ValidationError{Problems: []string{"invalid request body"}})
	}

	if !req.Status.Valid() {
		names := make([]string, 0, len(domain.OrderStatuses))
		for _, st := range domain.OrderStatuses {
			names = append(names, string(st))
		}
		return s.failure(&ValidationError{Problems: []string{"status must be one of " + strings.Join(names, ", ")}})
	}

	order, err := s.ledger.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		var transitionErr *TransitionError
		if errors.As(err, &transitionErr) {
			return s.failure(&ValidationError{Problems: []string{transitionErr.Error()}})
		}
		return s.failure(&StorageError{Op: "update order status", Err: err})
	}

	if order == nil {
		return orderNotFound()
	}

	s.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	return Response{Status: http.StatusOK, Body: httpx.Success("Order status updated", viewOf(*order))}
}

func (s *Service) publishPlaced(ctx context.Context, buyer Buyer, order *domain.Order) {
	if s.publisher == nil {
		return
	}

	event := domain.OrderPlacedEvent{
		OrderID:    order.ID,
		BuyerID:    order.BuyerID,
		BuyerEmail: buyer.Email,
		Items:      order.Items,
		TotalPrice: order.TotalPrice,
		Timestamp:  order.CreatedAt,
	}

	// The order is committed, so the event must not depend on the caller
	// staying connected.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, order.ID, event); err != nil {
		s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
	}
}

func (s *Service) failure(err error) Response {
	var (
		validationErr *ValidationError
		notFoundErr   *NotFoundError
		stockErr      *InsufficientStockError
	)

	switch {
	case errors.As(err, &validationErr):
		return Response{Status: http.StatusBadRequest, Body: httpx.Failure("Validation error", validationErr.Problems...)}
	case errors.As(err, &notFoundErr):
		return Response{Status: http.StatusNotFound, Body: httpx.Failure("Product not found", notFoundErr.Error())}
	case errors.As(err, &stockErr):
		return Response{Status: http.StatusBadRequest, Body: httpx.Failure("Insufficient stock", "Insufficient stock for "+stockErr.ProductName)}
	case errors.Is(err, ErrConcurrencyConflict):
		s.logger.Warn("order gave up after repeated conflicts", "error", err)
		return Response{Status: http.StatusConflict, Body: httpx.Failure("Concurrent update conflict", "the order conflicted with other orders, please retry")}
	default:
		s.logger.Error("order request failed", "error", err)
		return Response{Status: http.StatusInternalServerError, Body: httpx.Failure("Internal server error", "internal server error")}
	}
}

func orderNotFound() Response {
	return Response{Status: http.StatusNotFound, Body: httpx.Failure("Order not found", "order not found")}
}

var maxQuantity = decimal.NewFromInt(math.MaxInt32)

type rawItem struct {
	ProductID json.RawMessage `json:"productId"`
	Quantity  json.RawMessage `json:"quantity"`
}

// decodeItems accepts either a bare array of items or an object with an
// "items" array. Fields of the wrong type decode as their zero value so the
// engine reports them with the per-item rules.
func decodeItems(payload json.RawMessage) ([]ItemRequest, error) {
	payload = bytes.TrimSpace(payload)
	invalid := &ValidationError{Problems: []string{"order must be a non-empty array"}}

	var raw []rawItem
	switch {
	case len(payload) == 0:
		return nil, invalid
	case payload[0] == '[':
		if err := json.Unmarshal(payload, &raw); err != nil {
			return nil, invalid
		}
	case payload[0] == '{':
		var body struct {
			Items []rawItem `json:"items"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, invalid
		}
		raw = body.Items
	default:
		return nil, invalid
	}

	items := make([]ItemRequest, 0, len(raw))
	for _, r := range raw {
		var productID string
		_ = json.Unmarshal(r.ProductID, &productID)
		items = append(items, ItemRequest{
			ProductID: strings.TrimSpace(productID),
			Quantity:  parseQuantity(r.Quantity),
		})
	}

	return items, nil
}

// parseQuantity accepts JSON numbers and numeric strings with an integral
// value, so 2, "2", 2.0 and 2e0 are all 2. Anything else is 0.
func parseQuantity(raw json.RawMessage) int {
	s := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	if s == "" {
		return 0
	}

	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsInteger() || d.Abs().GreaterThan(maxQuantity) {
		return 0
	}
	return int(d.IntPart())
}
