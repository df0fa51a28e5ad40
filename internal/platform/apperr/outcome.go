package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Outcome is the JSON body written for failed requests.
type Outcome struct {
	Success bool     `json:"success"`
	Error   string   `json:"error"`
	Code    Kind     `json:"code"`
	Details []string `json:"details,omitempty"`
}

// NewOutcome builds an outcome body for err.
func NewOutcome(err error) Outcome {
	var ae *Error
	if errors.As(err, &ae) {
		return Outcome{Error: ae.Error(), Code: ae.Kind, Details: ae.Details}
	}
	return Outcome{Error: "internal server error", Code: Internal}
}

// HTTPErrorHandler renders *Error values as outcomes and falls back to
// echo's own handling for everything else.
func HTTPErrorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var ae *Error
		if errors.As(err, &ae) {
			_ = c.JSON(HTTPStatus(ae.Kind), NewOutcome(ae))
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, ok := he.Message.(string)
			if !ok {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, Outcome{Error: msg, Code: codeForStatus(he.Code)})
			return
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

// BindError converts a failed c.Bind into an InvalidArgument error. A 413
// raised by the body limit while the body was read is passed through.
func BindError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return he
	}
	return New(InvalidArgument, "invalid request body")
}

func codeForStatus(status int) Kind {
	switch {
	case status == http.StatusNotFound:
		return "NOT_FOUND"
	case status == http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case status == http.StatusForbidden:
		return "FORBIDDEN"
	case status == http.StatusTooManyRequests:
		return "RATE_LIMITED"
	case status == http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case status == http.StatusGatewayTimeout:
		return Timeout
	case status < 500:
		return InvalidArgument
	default:
		return Internal
	}
}
