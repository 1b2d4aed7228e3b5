// Package chat talks to the WhatsApp side through Twilio: it parses inbound
// webhook forms, fetches attached media and sends replies.
package chat

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/jun/drivechat/internal/command"
	twclient "github.com/twilio/twilio-go/client"
)

// Inbound is one parsed webhook delivery.
type Inbound struct {
	From  string
	To    string
	Body  string
	Media *command.Media
	// Params holds every form field, as the signature covers all of them.
	Params map[string]string
}

// ParseTwilioForm decodes the urlencoded webhook body.
func ParseTwilioForm(body string, isBase64 bool) (*Inbound, error) {
	if isBase64 {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("decode webhook body: %w", err)
		}
		body = string(raw)
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, fmt.Errorf("parse webhook form: %w", err)
	}

	in := &Inbound{
		From:   values.Get("From"),
		To:     values.Get("To"),
		Body:   strings.TrimSpace(values.Get("Body")),
		Params: make(map[string]string, len(values)),
	}
	for k := range values {
		in.Params[k] = values.Get(k)
	}
	if in.From == "" {
		return nil, fmt.Errorf("parse webhook form: missing From")
	}

	if n, _ := strconv.Atoi(values.Get("NumMedia")); n > 0 {
		if u := values.Get("MediaUrl0"); u != "" {
			in.Media = &command.Media{URL: u, ContentType: values.Get("MediaContentType0")}
		}
	}
	return in, nil
}

// SignatureValidator checks the X-Twilio-Signature header.
type SignatureValidator struct {
	rv twclient.RequestValidator
}

func NewSignatureValidator(authToken string) *SignatureValidator {
	return &SignatureValidator{rv: twclient.NewRequestValidator(authToken)}
}

// Valid reports whether signature matches the public url and form params.
func (v *SignatureValidator) Valid(url string, params map[string]string, signature string) bool {
	if signature == "" {
		return false
	}
	return v.rv.Validate(url, params, signature)
}
