package chat

import (
	"context"
	"fmt"

	"github.com/jun/drivechat/internal/reply"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Sender delivers one text message to a chat identity.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Deliver sends every chunk of msg in order and stops at the first failure.
// There is no acknowledgement from the transport beyond the API call.
func Deliver(ctx context.Context, s Sender, to string, msg reply.Message) error {
	for i, text := range msg.Texts() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Send(ctx, to, text); err != nil {
			return fmt.Errorf("send chunk %d of %d: %w", i+1, len(msg.Chunks), err)
		}
	}
	return nil
}

type messageAPI interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender sends through the Twilio Messages API.
type TwilioSender struct {
	api  messageAPI
	from string
	log  *zap.Logger
}

// NewTwilioSender creates a sender for the account. from is the WhatsApp
// sender, e.g. "whatsapp:+14155238886".
func NewTwilioSender(accountSID, authToken, from string, log *zap.Logger) *TwilioSender {
	c := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newTwilioSender(c.Api, from, log)
}

func newTwilioSender(api messageAPI, from string, log *zap.Logger) *TwilioSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &TwilioSender{api: api, from: from, log: log}
}

func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	s.log.Debug("message sent", zap.String("identity", to), zap.String("sid", sid))
	return nil
}

// LogSender only logs. Dev mode uses it in place of Twilio.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.log.Info("outbound message", zap.String("identity", to), zap.String("body", body))
	return nil
}
