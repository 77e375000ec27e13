package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteJSON(t *testing.T) {
	t.Run("success envelope has null errors", func(t *testing.T) {
		rec := httptest.NewRecorder()

		if err := WriteJSON(rec, http.StatusCreated, Success("Order placed", map[string]string{"id": "o-1"})); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
		if rec.Header().Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got %s", rec.Header().Get("Content-Type"))
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["success"] != true {
			t.Errorf("expected success true, got %v", body["success"])
		}
		if body["errors"] != nil {
			t.Errorf("expected null errors, got %v", body["errors"])
		}
		if body["message"] != "Order placed" {
			t.Errorf("unexpected message: %v", body["message"])
		}
	})

	t.Run("failure envelope has null object and error list", func(t *testing.T) {
		rec := httptest.NewRecorder()

		if err := WriteJSON(rec, http.StatusBadRequest, Failure("Validation error")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body["object"] != nil {
			t.Errorf("expected null object, got %v", body["object"])
		}
		errs, ok := body["errors"].([]any)
		if !ok {
			t.Fatalf("expected errors array, got %T", body["errors"])
		}
		if len(errs) != 0 {
			t.Errorf("expected empty errors, got %v", errs)
		}
	})
}
