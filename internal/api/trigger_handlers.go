package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/dispatch"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/util"
)

// triggerTemplateHandler opens a conversation with a single number using
// the pre-approved template (POST /api/disparar_template).
func (s *Server) triggerTemplateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.triggerTemplateHandler: processing trigger request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.triggerTemplateHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.triggerTemplateHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError("JSON inválido."))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.triggerTemplateHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError("Número de telefone ausente."))
		return
	}

	// Validate the recipient up front so bad numbers report as client
	// errors; Dispatch re-canonicalizes (idempotent).
	if _, err := s.msgService.ValidateAndCanonicalizeRecipient(req.Numero); err != nil {
		slog.Warn("Server.triggerTemplateHandler: recipient validation failed", "error", err, "numero", req.Numero)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError(err.Error()))
		return
	}

	sid, err := s.trigger.Dispatch(r.Context(), req.Numero, req.Nome)
	if err != nil {
		slog.Error("Server.triggerTemplateHandler: dispatch failed", "error", err, "numero", req.Numero)
		writeJSONResponse(w, http.StatusInternalServerError, models.TriggerError(err.Error()))
		return
	}

	slog.Info("Server.triggerTemplateHandler: template dispatched", "numero", req.Numero, "sid", sid)
	writeJSONResponse(w, http.StatusOK, models.TriggerSuccess(sid))
}

// batchTriggerHandler enqueues a batch of first-contact triggers
// (POST /api/disparar_lote). The batch is drained asynchronously by the
// dispatch runner; progress is read from the status endpoint.
func (s *Server) batchTriggerHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.batchTriggerHandler: processing batch request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.batchTriggerHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.batchTriggerHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError("A lista de 'contatos' é inválida ou ausente."))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.batchTriggerHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.TriggerError("A lista de 'contatos' é inválida ou ausente."))
		return
	}

	id := util.GenerateBatchID()
	b, items := dispatch.BuildBatch(id, req.Contatos)
	if err := s.batches.CreateBatch(b, items); err != nil {
		slog.Error("Server.batchTriggerHandler: failed to enqueue batch", "error", err, "lote_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.TriggerError("Falha ao enfileirar o lote."))
		return
	}

	slog.Info("Server.batchTriggerHandler: batch accepted", "lote_id", id, "total", b.Total, "pending", b.Pending)
	writeJSONResponse(w, http.StatusAccepted, models.BatchAcceptedResponse{
		Status: models.APIStatusAccepted,
		LoteID: id,
		Total:  b.Total,
	})
}

// batchStatusHandler reports batch progress and the per-item partition
// (GET /api/disparar_lote/{id}).
func (s *Server) batchStatusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.batchStatusHandler: processing batch status request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.batchStatusHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/disparar_lote/")
	if id == "" || strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.TriggerError("Lote não encontrado."))
		return
	}

	b, err := s.batches.GetBatch(id)
	if err != nil {
		slog.Error("Server.batchStatusHandler: failed to load batch", "error", err, "lote_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.TriggerError("Falha ao consultar o lote."))
		return
	}
	if b == nil {
		slog.Debug("Server.batchStatusHandler: batch not found", "lote_id", id)
		writeJSONResponse(w, http.StatusNotFound, models.TriggerError("Lote não encontrado."))
		return
	}

	items, err := s.batches.ListBatchItems(id)
	if err != nil {
		slog.Error("Server.batchStatusHandler: failed to load batch items", "error", err, "lote_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.TriggerError("Falha ao consultar o lote."))
		return
	}

	resp := models.BatchStatusResponse{
		Status:    string(b.Status),
		Total:     b.Total,
		Pendentes: b.Pending,
		Sucessos:  make([]models.BatchSuccess, 0, len(items)),
		Falhas:    make([]models.BatchFailure, 0),
	}
	// Items are ordered by idx, so each list preserves the input order.
	for _, it := range items {
		switch it.Status {
		case store.ItemStatusSent:
			resp.Sucessos = append(resp.Sucessos, models.BatchSuccess{Numero: it.Numero, Nome: it.Nome, Sid: it.Sid})
		case store.ItemStatusFailed:
			resp.Falhas = append(resp.Falhas, models.BatchFailure{Numero: it.Numero, Nome: it.Nome, Motivo: it.Reason})
		}
	}

	slog.Debug("Server.batchStatusHandler: batch status", "lote_id", id, "status", b.Status, "pending", b.Pending)
	writeJSONResponse(w, http.StatusOK, resp)
}
