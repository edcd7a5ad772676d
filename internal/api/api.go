// Package api provides the HTTP surface of the chatbot: the Twilio
// webhooks, the operator trigger endpoints, manual sends, the term
// document download, and a health check.
//
// Handlers are thin: they parse and validate, then delegate to the flow
// engine, the dispatch trigger, the store, and the messaging service.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/dispatch"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/messaging"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/store"
)

// Constants for API server configuration
const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds how long Run waits for in-flight
	// requests once the root context is cancelled.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds header reads to shed slow clients.
	DefaultReadHeaderTimeout = 10 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr     string // listen address, e.g. ":8080"
	TermFile string // path of the term document served at /static/termo
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address for the API server.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithTermFile sets the term document served at /static/termo.
func WithTermFile(path string) Option {
	return func(o *Opts) {
		o.TermFile = path
	}
}

// Server wires the HTTP handlers to the modules they drive.
type Server struct {
	st         store.Store
	batches    store.BatchRepo
	msgService messaging.Service
	processor  messaging.InboundProcessor
	trigger    *dispatch.Trigger
	addr       string
	termFile   string
}

// NewServer creates an API server, applying any provided options.
func NewServer(st store.Store, batches store.BatchRepo, msgService messaging.Service, processor messaging.InboundProcessor, trigger *dispatch.Trigger, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	slog.Debug("Server.NewServer: configured", "addr", cfg.Addr, "term_file_set", cfg.TermFile != "")
	return &Server{
		st:         st,
		batches:    batches,
		msgService: msgService,
		processor:  processor,
		trigger:    trigger,
		addr:       cfg.Addr,
		termFile:   cfg.TermFile,
	}
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/webhook/status", s.statusCallbackHandler)
	mux.HandleFunc("/api/disparar_template", s.triggerTemplateHandler)
	mux.HandleFunc("/api/disparar_lote", s.batchTriggerHandler)
	mux.HandleFunc("/api/disparar_lote/", s.batchStatusHandler)
	mux.HandleFunc("/api/enviar_mensagem_manual", s.manualMessageHandler)
	mux.HandleFunc("/static/termo", s.termFileHandler)
	mux.HandleFunc("/health", s.healthHandler)
	return mux
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully, draining in-flight requests up to DefaultShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("Server.Run: API listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server.Run: graceful shutdown failed", "error", err)
			return err
		}
		slog.Info("Server.Run: API stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listener failed", "error", err)
		return err
	}
}
