package messaging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/AndersonPaulo/chatbot-precatorios/internal/models"
	"github.com/AndersonPaulo/chatbot-precatorios/internal/whatsapp"
)

// DefaultTemplateBody is the first-contact greeting rendered locally when
// the WhatsApp channel has no content API to resolve a template sid.
const DefaultTemplateBody = "Olá, {{1}}! Somos da Winston Serviços Corporativos. " +
	"Identificamos um precatório em seu nome e temos uma proposta para a compra do seu crédito. " +
	"Podemos enviar o termo de representação para iniciar a negociação? Responda *SIM* ou *NÃO*."

// WhatsAppService implements Service using the whatsmeow-based whatsapp
// client. Message and receipt events from the live session are converted
// into the same inbound shapes the Twilio webhook produces.
type WhatsAppService struct {
	client       whatsapp.WhatsAppSender
	waClient     *whatsapp.Client // underlying client for event handling, nil for mocks
	templateBody string
	receipts     chan models.Receipt
	responses    chan models.InboundMessage
	done         chan struct{}
	mu           sync.RWMutex
	stopped      bool
}

// NewWhatsAppService creates a new WhatsAppService wrapping the given
// sender. templateBody overrides the first-contact greeting; empty keeps
// the default.
func NewWhatsAppService(client whatsapp.WhatsAppSender, templateBody string) *WhatsAppService {
	if templateBody == "" {
		templateBody = DefaultTemplateBody
	}
	service := &WhatsAppService{
		client:       client,
		templateBody: templateBody,
		receipts:     make(chan models.Receipt, DefaultChannelBufferSize),
		responses:    make(chan models.InboundMessage, DefaultChannelBufferSize),
		done:         make(chan struct{}),
	}

	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

// ValidateAndCanonicalizeRecipient validates and canonicalizes a WhatsApp
// phone number into the canonical "whatsapp:+<digits>" form.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical, err := CanonicalRecipient(recipient)
	if err != nil {
		return "", err
	}
	if canonical != recipient {
		slog.Debug("WhatsAppService canonicalized recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start begins background event processing when a full client is available.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil {
		slog.Debug("WhatsAppService.Start: no full client available, skipping event handling")
		return nil
	}
	go s.handleEvents(ctx)
	slog.Debug("WhatsAppService.Start: event handler started")
	return nil
}

// Stop stops background processing and closes the event channels.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(s.receipts)
		close(s.responses)
	}()

	slog.Info("WhatsAppService stopped")
	return nil
}

// SendText sends a message over the live session and emits a sent receipt.
func (s *WhatsAppService) SendText(ctx context.Context, to string, body string) (string, error) {
	s.mu.RLock()
	if s.stopped {
		s.mu.RUnlock()
		return "", ErrServiceStopped
	}
	s.mu.RUnlock()

	canonicalTo, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("WhatsAppService.SendText: validation error", "error", err, "to", to)
		return "", err
	}

	id, err := s.client.SendMessage(ctx, BareNumber(canonicalTo), body)
	if err != nil {
		slog.Error("WhatsAppService.SendText: send error", "error", err, "to", canonicalTo)
		return "", err
	}

	s.safeEmitReceipt(models.Receipt{Sid: id, Status: models.MessageStatusSent, Time: time.Now().Unix()})
	return id, nil
}

// SendTemplate renders the configured template body with the given
// variables and sends it as a plain message. The templateID is ignored;
// there is no content API on this channel.
func (s *WhatsAppService) SendTemplate(ctx context.Context, to string, templateID string, variables map[string]string) (string, error) {
	body := RenderTemplate(s.templateBody, variables)
	return s.SendText(ctx, to, body)
}

// Receipts returns a channel of receipt events.
func (s *WhatsAppService) Receipts() <-chan models.Receipt {
	return s.receipts
}

// Responses returns a channel of incoming message events.
func (s *WhatsAppService) Responses() <-chan models.InboundMessage {
	return s.responses
}

// RenderTemplate substitutes {{key}} placeholders with variable values.
func RenderTemplate(body string, variables map[string]string) string {
	if len(variables) == 0 {
		return body
	}
	pairs := make([]string, 0, len(variables)*2)
	for key, value := range variables {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(body)
}

// handleEvents registers the whatsmeow event handler and keeps it running
// until the context is cancelled.
func (s *WhatsAppService) handleEvents(ctx context.Context) {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Error("WhatsAppService.handleEvents: no client available")
		return
	}

	s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Receipt:
			s.handleMessageReceipt(v)
		default:
			slog.Debug("WhatsAppService ignoring event type", "type", getEventType(v))
		}
	})

	slog.Debug("WhatsAppService.handleEvents: event handler registered")
	<-ctx.Done()
	slog.Debug("WhatsAppService.handleEvents: stopping due to context cancellation")
}

// handleIncomingMessage converts an incoming text message into the inbound
// shape the flow engine consumes.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Message == nil {
		return
	}

	var messageText string
	if evt.Message.Conversation != nil {
		messageText = *evt.Message.Conversation
	} else if evt.Message.ExtendedTextMessage != nil && evt.Message.ExtendedTextMessage.Text != nil {
		messageText = *evt.Message.ExtendedTextMessage.Text
	} else {
		// Skip non-text messages (images, audio, etc.).
		slog.Debug("WhatsAppService ignoring non-text message", "from", evt.Info.Sender.String())
		return
	}

	inbound := models.InboundMessage{
		From:        RecipientPrefix + "+" + evt.Info.Sender.User,
		ProfileName: evt.Info.PushName,
		Body:        messageText,
		MessageSid:  string(evt.Info.ID),
		ReceivedAt:  evt.Info.Timestamp,
	}

	s.safeEmitResponse(inbound)
}

// handleMessageReceipt converts delivery and read receipts, one per
// acknowledged message id.
func (s *WhatsAppService) handleMessageReceipt(evt *events.Receipt) {
	var status models.MessageStatus
	switch evt.Type {
	case events.ReceiptTypeDelivered:
		status = models.MessageStatusDelivered
	case events.ReceiptTypeRead:
		status = models.MessageStatusRead
	case events.ReceiptTypeReadSelf:
		return
	default:
		slog.Debug("WhatsAppService ignoring receipt type", "type", evt.Type)
		return
	}

	for _, id := range evt.MessageIDs {
		s.safeEmitReceipt(models.Receipt{Sid: string(id), Status: status, Time: evt.Timestamp.Unix()})
	}
}

func (s *WhatsAppService) safeEmitResponse(inbound models.InboundMessage) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		slog.Warn("WhatsAppService dropping inbound message (service stopped)", "from", inbound.From)
		return
	}

	select {
	case s.responses <- inbound:
		slog.Debug("WhatsAppService emitted inbound message", "from", inbound.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService responses channel blocked, dropping message", "from", inbound.From)
	}
}

func (s *WhatsAppService) safeEmitReceipt(receipt models.Receipt) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}

	select {
	case s.receipts <- receipt:
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppService receipts channel blocked, dropping receipt", "sid", receipt.Sid)
	}
}

// getEventType returns a string representation of the event type for logging.
func getEventType(evt interface{}) string {
	switch evt.(type) {
	case *events.Message:
		return "Message"
	case *events.Receipt:
		return "Receipt"
	case *events.Presence:
		return "Presence"
	case *events.Connected:
		return "Connected"
	case *events.Disconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}
