// Package api provides HTTP response utilities for the chatbot API.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// internalErrorBody is marshaled once at startup so a failing encoder can
// never leave a client without a JSON body.
var internalErrorBody []byte

func init() {
	body, err := json.Marshal(models.TriggerError("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("marshaling the static error response failed: %v", err))
	}
	internalErrorBody = body
}

// writeJSONResponse marshals response and writes it with the given status
// code. Marshal failures degrade to a 500 carrying the pre-marshaled body;
// headers are only written once the payload is known good.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	body, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: response marshaling failed", "error", err, "status", statusCode)
		body = internalErrorBody
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		slog.Error("Server.writeJSONResponse: response write failed", "error", err)
	}
}
