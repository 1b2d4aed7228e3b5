package handler

import (
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// emptyTwiML tells Twilio there is nothing to send inline; replies go out
// through the REST API instead.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// header is a case-insensitive lookup; API Gateway keeps client casing.
func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func textResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       body,
	}
}

func htmlResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/html; charset=utf-8"},
		Body:       "<!DOCTYPE html><html><body><p>" + body + "</p></body></html>",
	}
}

func twimlResponse() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers:    map[string]string{"Content-Type": "text/xml"},
		Body:       emptyTwiML,
	}
}

// Health answers liveness probes.
func Health() events.APIGatewayProxyResponse {
	return textResponse(http.StatusOK, "ok")
}
