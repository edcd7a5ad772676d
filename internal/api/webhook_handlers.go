package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// webhookHandler receives inbound WhatsApp messages from Twilio
// (POST /webhook). The provider retries on non-2xx, so after the method
// check every outcome is acknowledged with 200 "OK"; processing errors
// are logged, never surfaced.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing webhook", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		writeWebhookOK(w)
		return
	}

	from := r.PostFormValue("From")
	if from == "" {
		slog.Warn("Server.webhookHandler: missing From field")
		writeWebhookOK(w)
		return
	}

	in := models.InboundMessage{
		From:        from,
		ProfileName: r.PostFormValue("ProfileName"),
		Body:        r.PostFormValue("Body"),
		MessageSid:  r.PostFormValue("MessageSid"),
		ReceivedAt:  time.Now().UTC(),
	}
	if err := s.processor.ProcessInbound(r.Context(), in); err != nil {
		slog.Error("Server.webhookHandler: inbound processing failed", "error", err, "from", from)
	}
	writeWebhookOK(w)
}

// statusCallbackHandler receives delivery-status updates from Twilio
// (POST /webhook/status). Unknown sids are ignored; the response is
// always 204 so the provider does not retry.
func (s *Server) statusCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.statusCallbackHandler: processing status callback", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.statusCallbackHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.statusCallbackHandler: failed to parse form", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	sid := r.PostFormValue("MessageSid")
	status := r.PostFormValue("MessageStatus")
	if sid == "" || status == "" {
		slog.Warn("Server.statusCallbackHandler: missing MessageSid or MessageStatus")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	found, err := s.st.UpdateMessageStatusBySid(sid, models.MessageStatus(status))
	if err != nil {
		slog.Error("Server.statusCallbackHandler: failed to update delivery status", "error", err, "sid", sid)
	} else if !found {
		slog.Debug("Server.statusCallbackHandler: no message for sid", "sid", sid, "status", status)
	} else {
		slog.Debug("Server.statusCallbackHandler: delivery status updated", "sid", sid, "status", status)
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeWebhookOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Server.webhookHandler: failed to write response", "error", err)
	}
}
