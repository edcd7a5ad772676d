package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
)

// manualMessageHandler sends an operator-written message to an existing
// contact outside the automated flow (POST /api/enviar_mensagem_manual).
func (s *Server) manualMessageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.manualMessageHandler: processing manual send", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.manualMessageHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.ManualMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.manualMessageHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError("JSON inválido."))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.manualMessageHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError(err.Error()))
		return
	}

	contact, err := s.st.GetContact(req.ContactID)
	if err != nil {
		slog.Error("Server.manualMessageHandler: failed to load contact", "error", err, "contact", req.ContactID)
		writeJSONResponse(w, http.StatusInternalServerError, models.TriggerError("Falha ao consultar o contato."))
		return
	}
	if contact == nil {
		slog.Debug("Server.manualMessageHandler: contact not found", "contact", req.ContactID)
		writeJSONResponse(w, http.StatusNotFound, models.TriggerError("Contato não encontrado."))
		return
	}

	sid, err := s.msgService.SendText(r.Context(), contact.Phone, req.Text)
	if err != nil {
		slog.Error("Server.manualMessageHandler: send failed", "error", err, "contact", contact.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.TriggerError(err.Error()))
		return
	}

	now := time.Now().UTC()
	msg := models.Message{
		ID:             util.GenerateMessageID(),
		ContactID:      contact.ID,
		Sender:         models.SenderOperator,
		Text:           req.Text,
		Timestamp:      now,
		ProviderSid:    sid,
		DeliveryStatus: models.MessageStatusQueued,
	}
	// The message went out; persistence failures after the send degrade
	// to a warning so the operator still gets the record back.
	if err := s.st.AddMessage(msg); err != nil {
		slog.Warn("Server.manualMessageHandler: failed to log message", "error", err, "contact", contact.ID)
	}
	// Narrow write: a concurrent status change must not be overwritten by
	// the snapshot read above.
	if err := s.st.UpdateContactActivity(contact.ID, req.Text, now, false); err != nil {
		slog.Warn("Server.manualMessageHandler: failed to update contact", "error", err, "contact", contact.ID)
	}

	slog.Info("Server.manualMessageHandler: manual message sent", "contact", contact.ID, "sid", sid)
	writeJSONResponse(w, http.StatusCreated, msg)
}

// termFileHandler serves the representation-term document as a download
// (GET /static/termo). Links in the flow replies point here.
func (s *Server) termFileHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.termFileHandler: processing term download", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.termFile == "" {
		slog.Warn("Server.termFileHandler: no term file configured")
		http.NotFound(w, r)
		return
	}
	if _, err := os.Stat(s.termFile); err != nil {
		slog.Error("Server.termFileHandler: term file unavailable", "error", err, "path", s.termFile)
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename=\""+filepath.Base(s.termFile)+"\"")
	http.ServeFile(w, r, s.termFile)
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Contact count doubles as a store liveness probe.
	if contacts, err := s.st.ListContacts(); err != nil {
		slog.Warn("Health check: failed to list contacts", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to fetch contact metrics"
	} else {
		healthData["contacts"] = len(contacts)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
