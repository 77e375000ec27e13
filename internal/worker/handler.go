package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/messaging"
)

// NotificationHandler emails buyers a confirmation for every placed order.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: strings.TrimRight(emailServiceURL, "/"),
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, msg messaging.Message) error {
	if msg.EventType != "" && msg.EventType != domain.EventOrderPlaced {
		h.logger.Debug("ignoring event", "event_type", msg.EventType, "key", msg.Key)
		return nil
	}

	var event domain.OrderPlacedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// Malformed payloads will never decode, retrying is pointless.
		h.logger.Error("discarding malformed order placed event", "error", err, "key", msg.Key)
		return nil
	}

	h.logger.Info("processing order placed event", "order_id", event.OrderID, "buyer_id", event.BuyerID)

	if event.BuyerEmail == "" {
		h.logger.Warn("order has no buyer email, skipping confirmation", "order_id", event.OrderID)
		return nil
	}

	if err := h.sendEmail(ctx, confirmationEmail(event)); err != nil {
		h.logger.Error("failed to send confirmation email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send confirmation email: %w", err)
	}

	h.logger.Info("order confirmation sent", "order_id", event.OrderID)
	return nil
}

type emailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func confirmationEmail(event domain.OrderPlacedEvent) emailRequest {
	var b strings.Builder
	fmt.Fprintf(&b, "Thanks for your order %s.\n\n", event.OrderID)
	for _, item := range event.Items {
		fmt.Fprintf(&b, "- %d x %s @ %s\n", item.Quantity, item.ProductID, item.PriceAtPurchase.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", event.TotalPrice.StringFixed(2))

	return emailRequest{
		To:      event.BuyerEmail,
		Subject: "Order Confirmation: " + event.OrderID,
		Body:    b.String(),
	}
}

func (h *NotificationHandler) sendEmail(ctx context.Context, email emailRequest) error {
	data, err := json.Marshal(email)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
