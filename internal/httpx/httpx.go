// Package httpx provides helper functions for creating HTTP responses.
package httpx

import (
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
)

// JSON creates a JSON HTTP response with the given status code and value.
func JSON(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
		Body: string(b),
	}, nil
}

// JSONWithCookies is JSON plus Set-Cookie headers.
func JSONWithCookies(status int, v any, cookies []string) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := JSON(status, v)
	resp.Cookies = cookies
	return resp, err
}

// Error creates a JSON HTTP error response with the given status code and message.
func Error(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return JSON(status, map[string]string{"error": msg})
}

// FieldError creates a 422-style error response carrying per-field messages,
// matching the shape clients expect from form validation failures.
func FieldError(status int, msg, field, detail string) (events.APIGatewayV2HTTPResponse, error) {
	return JSON(status, map[string]any{
		"error":  msg,
		"errors": map[string][]string{field: {detail}},
	})
}
