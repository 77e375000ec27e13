package email

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler_HandleSend(t *testing.T) {
	h, err := NewHandler(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		body   string
		status int
		errMsg string
	}{
		{
			name:   "valid email",
			body:   `{"to":"buyer@example.com","subject":"Order Confirmation: o1","body":"Thanks"}`,
			status: http.StatusOK,
		},
		{
			name:   "malformed json",
			body:   `{`,
			status: http.StatusBadRequest,
			errMsg: "invalid request body",
		},
		{
			name:   "missing fields",
			body:   `{"to":"nope"}`,
			status: http.StatusBadRequest,
			errMsg: "to must be a valid email address; subject is required; body is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleSend(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(tt.body)))

			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}

			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if tt.errMsg == "" && resp["status"] != "sent" {
				t.Errorf("expected status sent, got %v", resp)
			}
			if tt.errMsg != "" && resp["error"] != tt.errMsg {
				t.Errorf("expected error %q, got %q", tt.errMsg, resp["error"])
			}
		})
	}
}
