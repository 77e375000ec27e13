package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Object  any      `json:"object"`
	Errors  []string `json:"errors"`
}

func Success(message string, object any) Envelope {
	return Envelope{Success: true, Message: message, Object: object}
}

// Failure builds a failed envelope. Errors is never null on failure.
func Failure(message string, errs ...string) Envelope {
	if errs == nil {
		errs = []string{}
	}
	return Envelope{Success: false, Message: message, Errors: errs}
}

func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}
