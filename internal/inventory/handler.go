package inventory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

type Handler struct {
	catalog *Catalog
	logger  *slog.Logger
}

func NewHandler(catalog *Catalog, logger *slog.Logger) *Handler {
	return &Handler{
		catalog: catalog,
		logger:  logger,
	}
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeInternalError(w)
		return
	}

	h.logger.Info("products listed", "count", len(products))
	h.writeJSON(w, http.StatusOK, httpx.Success("Products fetched", products))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	product, err := h.catalog.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeInternalError(w)
		return
	}

	if product == nil {
		h.writeJSON(w, http.StatusNotFound, httpx.Failure("Product not found", "product not found"))
		return
	}

	h.writeJSON(w, http.StatusOK, httpx.Success("Product fetched", product))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", "invalid request body"))
		return
	}

	if problems := in.ValidateCreate(); len(problems) > 0 {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", problems...))
		return
	}

	patch := in.Patch()
	product := &domain.Product{
		Name:        *patch.Name,
		Description: *patch.Description,
		Price:       *patch.Price,
		Stock:       *patch.Stock,
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}

	if err := h.catalog.Create(r.Context(), product); err != nil {
		if errors.Is(err, ErrNameTaken) {
			h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", ErrNameTaken.Error()))
			return
		}
		h.logger.Error("failed to create product", "error", err)
		h.writeInternalError(w)
		return
	}

	h.logger.Info("product created", "product_id", product.ID)
	h.writeJSON(w, http.StatusCreated, httpx.Success("Product created", product))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", "invalid request body"))
		return
	}

	if problems := in.ValidateUpdate(); len(problems) > 0 {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", problems...))
		return
	}

	product, err := h.catalog.Update(r.Context(), id, in.Patch())
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", ErrNameTaken.Error()))
			return
		}
		h.logger.Error("failed to update product", "error", err, "product_id", id)
		h.writeInternalError(w)
		return
	}

	if product == nil {
		h.writeJSON(w, http.StatusNotFound, httpx.Failure("Product not found", "product not found"))
		return
	}

	h.logger.Info("product updated", "product_id", id)
	h.writeJSON(w, http.StatusOK, httpx.Success("Product updated", product))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.catalog.Delete(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to delete product", "error", err, "product_id", id)
		h.writeInternalError(w)
		return
	}

	if !deleted {
		h.writeJSON(w, http.StatusNotFound, httpx.Failure("Product not found", "product not found"))
		return
	}

	h.logger.Info("product deleted", "product_id", id)
	h.writeJSON(w, http.StatusOK, httpx.Success("Product deleted successfully", nil))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := httpx.WriteJSON(w, status, data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeInternalError(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusInternalServerError, httpx.Failure("Internal server error", "internal server error"))
}
