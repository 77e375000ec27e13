package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type Handler struct {
	users      userStore
	issuer     *TokenIssuer
	bcryptCost int
	logger     *slog.Logger
}

func NewHandler(users userStore, issuer *TokenIssuer, bcryptCost int, logger *slog.Logger) *Handler {
	return &Handler{
		users:      users,
		issuer:     issuer,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

type registeredUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", "invalid request body"))
		return
	}

	req.Normalize()
	if problems := req.Validate(); len(problems) > 0 {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", problems...))
		return
	}

	hash, err := HashPassword(req.Password, h.bcryptCost)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		h.writeInternalError(w)
		return
	}

	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}

	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", err.Error()))
			return
		}
		h.logger.Error("failed to create user", "error", err)
		h.writeInternalError(w)
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	h.writeJSON(w, http.StatusCreated, httpx.Success("User registered", registeredUser{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}))
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", "invalid request body"))
		return
	}

	req.Normalize()
	if problems := req.Validate(); len(problems) > 0 {
		h.writeJSON(w, http.StatusBadRequest, httpx.Failure("Validation error", problems...))
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("failed to look up user", "error", err)
		h.writeInternalError(w)
		return
	}

	if user == nil {
		h.writeInvalidCredentials(w)
		return
	}

	ok, err := CheckPassword(user.PasswordHash, req.Password)
	if err != nil {
		h.logger.Error("failed to check password", "error", err, "user_id", user.ID)
		h.writeInternalError(w)
		return
	}
	if !ok {
		h.writeInvalidCredentials(w)
		return
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err, "user_id", user.ID)
		h.writeInternalError(w)
		return
	}

	h.logger.Info("user logged in", "user_id", user.ID)
	h.writeJSON(w, http.StatusOK, httpx.Success("Login successful", map[string]string{"token": token}))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := httpx.WriteJSON(w, status, data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeInvalidCredentials(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusUnauthorized, httpx.Failure("Invalid credentials", "invalid credentials"))
}

func (h *Handler) writeInternalError(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusInternalServerError, httpx.Failure("Internal server error", "internal server error"))
}
