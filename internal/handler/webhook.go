package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/drivechat/internal/chat"
	"github.com/jun/drivechat/internal/dispatch"
	"github.com/jun/drivechat/internal/reply"
	"go.uber.org/zap"
)

// Controller turns one inbound message into a reply.
type Controller interface {
	Handle(ctx context.Context, in dispatch.Inbound) reply.Message
}

// WebhookHandler receives inbound WhatsApp messages from Twilio.
type WebhookHandler struct {
	controller Controller
	sender     chat.Sender
	validator  *chat.SignatureValidator
	webhookURL string
	log        *zap.Logger
}

// NewWebhookHandler creates the handler. A nil validator disables the
// signature check (dev mode).
func NewWebhookHandler(c Controller, sender chat.Sender, validator *chat.SignatureValidator, webhookURL string, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{
		controller: c,
		sender:     sender,
		validator:  validator,
		webhookURL: webhookURL,
		log:        log,
	}
}

// Message handles POST /whatsapp/message. The reply is delivered through
// the sender before the empty TwiML acknowledgement is returned.
func (h *WebhookHandler) Message(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	in, err := chat.ParseTwilioForm(req.Body, req.IsBase64Encoded)
	if err != nil {
		h.log.Warn("bad webhook form", zap.Error(err))
		return textResponse(http.StatusBadRequest, "Bad Request"), nil
	}

	if h.validator != nil && !h.validator.Valid(h.webhookURL, in.Params, header(req, "X-Twilio-Signature")) {
		h.log.Warn("webhook signature rejected", zap.String("identity", in.From))
		return textResponse(http.StatusForbidden, "Forbidden"), nil
	}

	msg := h.controller.Handle(ctx, dispatch.Inbound{
		Identity: in.From,
		Body:     in.Body,
		Media:    in.Media,
	})
	if err := chat.Deliver(ctx, h.sender, in.From, msg); err != nil {
		h.log.Error("reply delivery failed", zap.String("identity", in.From), zap.Error(err))
	}
	return twimlResponse(), nil
}
