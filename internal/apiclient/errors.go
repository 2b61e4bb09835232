package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/plandesk/plandesk/internal/cache"
)

// Kind classifies request failures.
type Kind int

const (
	// KindServer is a non-2xx response from the server.
	KindServer Kind = iota + 1
	// KindAuth is a 401 response: the credentials were rejected.
	KindAuth
	// KindNetwork means the request was sent but no response arrived.
	KindNetwork
	// KindSetup means the request could not be built or sent.
	KindSetup
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// Error is the uniform failure shape carried by a Result.
type Error struct {
	Kind    Kind   `json:"-"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

const noResponseMessage = "no response received from server"

// serverError builds the error for a non-2xx response. The message joins the
// status with the server-provided message, which may be a list.
func serverError(status int, body []byte) *Error {
	kind := KindServer
	if status == http.StatusUnauthorized {
		kind = KindAuth
	}

	e := &Error{
		Kind:    kind,
		Message: fmt.Sprintf("request failed with status code %d", status),
		Code:    statusCode(status),
	}

	details, err := cache.Decode(body)
	if err != nil {
		// not JSON: keep the text as it is
		if text := strings.TrimSpace(string(body)); text != "" {
			e.Details = text
		}
		return e
	}
	e.Details = details

	payload, ok := details.(map[string]any)
	if !ok {
		return e
	}

	if message := serverMessage(payload["message"]); message != "" {
		e.Message += ": " + message
	}
	if code, ok := payload["code"].(string); ok && code != "" {
		e.Code = code
	}

	return e
}

func serverMessage(v any) string {
	switch message := v.(type) {
	case string:
		return message
	case []any:
		parts := make([]string, 0, len(message))
		for _, m := range message {
			if s, ok := m.(string); ok {
				parts = append(parts, s)
			} else if m != nil {
				parts = append(parts, fmt.Sprint(m))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func statusCode(status int) string {
	if status >= 500 {
		return "ERR_BAD_RESPONSE"
	}
	return "ERR_BAD_REQUEST"
}

func networkError(err error) *Error {
	code := "ERR_NETWORK"

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		code = "ETIMEDOUT"
	}

	return &Error{
		Kind:    KindNetwork,
		Message: noResponseMessage,
		Code:    code,
		Details: err.Error(),
	}
}

func setupError(err error) *Error {
	return &Error{
		Kind:    KindSetup,
		Message: err.Error(),
	}
}
