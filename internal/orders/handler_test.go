package orders

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/joao-fontenele/shopflow/internal/auth"
	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

func newOrdersMux(engine *Engine, ledger orderReader) *http.ServeMux {
	h := NewHandler(NewService(engine, ledger, nil, testLogger()), testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", h.HandlePlace)
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("GET /orders/{id}", h.HandleGet)
	mux.HandleFunc("PATCH /orders/{id}/status", h.HandleUpdateStatus)
	return mux
}

func asBuyer(r *http.Request, id string, role domain.Role) *http.Request {
	claims := &auth.Claims{
		Email:            id + "@example.com",
		Role:             role,
		RegisteredClaims: jwt.RegisteredClaims{Subject: id},
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) httpx.Envelope {
	t.Helper()
	var env httpx.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return env
}

func TestHandler_HandlePlace(t *testing.T) {
	tx := newMemTransactor(product("p1", "Widget", "4.00", 3))
	mux := newOrdersMux(newTestEngine(tx), &stubLedger{})

	t.Run("requires an authenticated buyer", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`[]`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected status 401, got %d", rec.Code)
		}
	})

	t.Run("places the order", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`[{"productId":"p1","quantity":2}]`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, asBuyer(req, "b1", domain.RoleUser))

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %s", ct)
		}

		env := decodeEnvelope(t, rec)
		object := env.Object.(map[string]any)
		if object["total_price"] != "8" {
			t.Errorf("expected total_price 8, got %v", object["total_price"])
		}
		if object["status"] != "Pending" {
			t.Errorf("expected status Pending, got %v", object["status"])
		}
		if tx.stock("p1") != 1 {
			t.Errorf("expected stock 1, got %d", tx.stock("p1"))
		}
	})

	t.Run("reports insufficient stock", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":[{"productId":"p1","quantity":2}]}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, asBuyer(req, "b1", domain.RoleUser))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		env := decodeEnvelope(t, rec)
		if env.Message != "Insufficient stock" || len(env.Errors) != 1 || env.Errors[0] != "Insufficient stock for Widget" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	})
}

func TestHandler_HandleGet(t *testing.T) {
	ledger := &stubLedger{orders: map[string]*domain.Order{"o1": placedOrder()}}
	mux := newOrdersMux(newTestEngine(newMemTransactor()), ledger)

	req := httptest.NewRequest(http.MethodGet, "/orders/o1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, asBuyer(req, "b1", domain.RoleUser))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for owner, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/orders/o1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, asBuyer(req, "intruder", domain.RoleUser))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for another buyer, got %d", rec.Code)
	}
}

func TestHandler_HandleUpdateStatus(t *testing.T) {
	ledger := &stubLedger{orders: map[string]*domain.Order{"o1": placedOrder()}}
	mux := newOrdersMux(newTestEngine(newMemTransactor()), ledger)

	req := httptest.NewRequest(http.MethodPatch, "/orders/o1/status", strings.NewReader(`{"status":"Paid"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ledger.orders["o1"].Status != domain.OrderStatusPaid {
		t.Errorf("expected status Paid, got %s", ledger.orders["o1"].Status)
	}
}
