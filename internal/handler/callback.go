package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/drivechat/internal/apperr"
	"github.com/jun/drivechat/internal/auth"
	"github.com/jun/drivechat/internal/chat"
	"github.com/jun/drivechat/internal/reply"
	"go.uber.org/zap"
)

// Completer finishes a grant started by SETUP.
type Completer interface {
	CompleteAuthorization(ctx context.Context, state, code string) (*auth.Completion, error)
}

// CallbackHandler receives the browser redirect from Google's consent screen.
type CallbackHandler struct {
	auth   Completer
	sender chat.Sender
	log    *zap.Logger
}

func NewCallbackHandler(a Completer, sender chat.Sender, log *zap.Logger) *CallbackHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CallbackHandler{auth: a, sender: sender, log: log}
}

// Callback handles GET /oauth/callback.
func (h *CallbackHandler) Callback(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	q := req.QueryStringParameters
	if e := q["error"]; e != "" {
		h.log.Info("consent declined", zap.String("reason", e))
		return htmlResponse(http.StatusBadRequest, "Authorization was cancelled. Send SETUP on WhatsApp to try again."), nil
	}

	done, err := h.auth.CompleteAuthorization(ctx, q["state"], q["code"])
	if err != nil {
		h.log.Warn("authorization callback failed", zap.Stringer("kind", apperr.KindOf(err)), zap.Error(err))
		switch apperr.KindOf(err) {
		case apperr.KindParse, apperr.KindForbidden:
			return htmlResponse(http.StatusBadRequest, "This authorization link is invalid or was already used. Send SETUP on WhatsApp for a new one."), nil
		case apperr.KindUnavailable, apperr.KindAuthorizationRequired:
			return htmlResponse(http.StatusBadGateway, "Google could not complete the authorization. Send SETUP on WhatsApp to try again."), nil
		}
		return htmlResponse(http.StatusInternalServerError, "Something went wrong. Please try again later."), nil
	}

	if err := h.sender.Send(ctx, done.Identity, reply.Connected(done.AccountEmail)); err != nil {
		h.log.Error("connection notice failed", zap.String("identity", done.Identity), zap.Error(err))
	}
	return htmlResponse(http.StatusOK, "Google Drive connected. You can return to WhatsApp."), nil
}
