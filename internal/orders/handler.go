package orders

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandlePlace(w http.ResponseWriter, r *http.Request) {
	buyer, ok := h.buyer(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", "invalid request body"))
		return
	}

	h.write(w, h.service.PlaceOrder(r.Context(), buyer, body))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	buyer, ok := h.buyer(w, r)
	if !ok {
		return
	}

	h.write(w, h.service.ListOrders(r.Context(), buyer))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	buyer, ok := h.buyer(w, r)
	if !ok {
		return
	}

	h.write(w, h.service.GetOrder(r.Context(), buyer, r.PathValue("id")))
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", "invalid request body"))
		return
	}

	h.write(w, h.service.UpdateStatus(r.Context(), r.PathValue("id"), body))
}

func (h *Handler) buyer(w http.ResponseWriter, r *http.Request) (Buyer, bool) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, httpx.Failure("Unauthorized", "missing token"))
		return Buyer{}, false
	}

	return Buyer{ID: claims.UserID(), Email: claims.Email, Admin: claims.IsAdmin()}, true
}

func (h *Handler) write(w http.ResponseWriter, resp Response) {
	h.writeJSON(w, resp.Status, resp.Body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := httpx.WriteJSON(w, status, data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
