package messaging

import (
	"context"
	"log/slog"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
)

// InboundProcessor handles one normalized inbound message. The flow engine
// implements it.
type InboundProcessor interface {
	ProcessInbound(ctx context.Context, in models.InboundMessage) error
}

// ReceiptStore applies a delivery-status update to the message log.
type ReceiptStore interface {
	UpdateMessageStatusBySid(sid string, status models.MessageStatus) (bool, error)
}

// Consumer drains a Service's event channels: inbound messages go to the
// flow engine, receipts update the message log. Each channel gets a single
// goroutine, so per-service event order is preserved.
type Consumer struct {
	svc       Service
	processor InboundProcessor
	receipts  ReceiptStore
}

// NewConsumer creates a Consumer over the given service.
func NewConsumer(svc Service, processor InboundProcessor, receipts ReceiptStore) *Consumer {
	return &Consumer{svc: svc, processor: processor, receipts: receipts}
}

// Start launches the consumer loops. They run until the context is
// cancelled or the service channels close.
func (c *Consumer) Start(ctx context.Context) {
	slog.Info("Consumer starting event processing")

	go func() {
		defer slog.Info("Consumer stopped response processing")

		for {
			select {
			case inbound, ok := <-c.svc.Responses():
				if !ok {
					slog.Debug("Consumer responses channel closed")
					return
				}
				if err := c.processor.ProcessInbound(ctx, inbound); err != nil {
					slog.Error("Consumer failed to process inbound message", "error", err, "from", inbound.From)
				}

			case <-ctx.Done():
				slog.Debug("Consumer response loop stopping due to context cancellation")
				return
			}
		}
	}()

	go func() {
		defer slog.Info("Consumer stopped receipt processing")

		for {
			select {
			case receipt, ok := <-c.svc.Receipts():
				if !ok {
					slog.Debug("Consumer receipts channel closed")
					return
				}
				updated, err := c.receipts.UpdateMessageStatusBySid(receipt.Sid, receipt.Status)
				if err != nil {
					slog.Error("Consumer failed to update delivery status", "error", err, "sid", receipt.Sid)
					continue
				}
				if !updated {
					slog.Debug("Consumer receipt for unknown sid", "sid", receipt.Sid, "status", receipt.Status)
				}

			case <-ctx.Done():
				slog.Debug("Consumer receipt loop stopping due to context cancellation")
				return
			}
		}
	}()
}
