package email

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Handler struct {
	logger *slog.Logger
	sent   metric.Int64Counter
}

func NewHandler(logger *slog.Logger) (*Handler, error) {
	sent, err := otel.Meter("github.com/joao-fontenele/shopflow/internal/email").Int64Counter("emails.sent",
		metric.WithDescription("Emails accepted for delivery"),
	)
	if err != nil {
		return nil, err
	}

	return &Handler{
		logger: logger,
		sent:   sent,
	}, nil
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (r sendRequest) validate() []string {
	var problems []string
	if _, err := mail.ParseAddress(r.To); err != nil {
		problems = append(problems, "to must be a valid email address")
	}
	if strings.TrimSpace(r.Subject) == "" {
		problems = append(problems, "subject is required")
	}
	if strings.TrimSpace(r.Body) == "" {
		problems = append(problems, "body is required")
	}
	return problems
}

type sendResponse struct {
	Status string `json:"status"`
}

// HandleSend accepts an email for delivery. Delivery itself is a log line.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if problems := req.validate(); len(problems) > 0 {
		h.writeError(w, http.StatusBadRequest, strings.Join(problems, "; "))
		return
	}

	h.sent.Add(r.Context(), 1)
	h.logger.Info("email sent", "to", req.To, "subject", req.Subject, "bytes", len(req.Body))

	h.writeJSON(w, http.StatusOK, sendResponse{Status: "sent"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
