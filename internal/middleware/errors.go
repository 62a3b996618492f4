package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/evms/internal/apperror"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// HTTPErrorHandler renders apperror values and echo's own errors as
// ErrorBody.  Server errors are logged with their cause and reported with
// a generic message.
func HTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := renderError(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Msg("request failed")
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn().Err(werr).Msg("write error response")
		}
	}
}

func renderError(err error) (int, ErrorBody) {
	var ae *apperror.Error
	if errors.As(err, &ae) {
		msg := ae.Message
		if ae.Kind == apperror.KindServer {
			msg = apperror.ErrServer.Message
		}
		return ae.Kind.Status(), ErrorBody{Error: ae.Code, Message: msg, Fields: ae.Fields}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		// BodyLimit fires before any handler sees the upload
		if he.Code == http.StatusRequestEntityTooLarge {
			return http.StatusBadRequest, ErrorBody{
				Error:   apperror.ErrValidation.Code,
				Message: "request body exceeds the maximum upload size",
				Fields:  map[string]string{"file": "exceeds the maximum upload size"},
			}
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, ErrorBody{Error: httpCode(he.Code), Message: msg}
	}
	return http.StatusInternalServerError, ErrorBody{Error: apperror.ErrServer.Code, Message: apperror.ErrServer.Message}
}

func httpCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return apperror.ErrValidation.Code
	case http.StatusUnauthorized:
		return apperror.ErrUnauthorized.Code
	case http.StatusForbidden:
		return apperror.ErrForbidden.Code
	case http.StatusNotFound:
		return apperror.ErrNotFound.Code
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	}
	if status >= http.StatusInternalServerError {
		return apperror.ErrServer.Code
	}
	return "HTTP_ERROR"
}
