package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cafeteria-procurement/internal/middleware"
	"github.com/iliyamo/cafeteria-procurement/internal/service"
)

// Stable error codes carried in the error envelope.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"
	CodeConflict          = "CONFLICT"
	CodeLocked            = "ACCOUNT_LOCKED"
	CodeInvalidResetToken = "INVALID_RESET_TOKEN"
	CodeRateLimited       = "RATE_LIMITED"
	CodeInternal          = "INTERNAL_ERROR"
)

const internalMessage = "Internal server error"

// timeNow stamps error envelopes.
var timeNow = time.Now

type successBody struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type errorDetail struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []fieldError `json:"fields,omitempty"`
}

type errorBody struct {
	Success   bool        `json:"success"`
	Error     errorDetail `json:"error"`
	Timestamp string      `json:"timestamp"`
}

func ok(c echo.Context, status int, data any) error {
	return c.JSON(status, successBody{Success: true, Data: data})
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, successBody{Success: true, Message: msg})
}

var kindStatus = map[service.Kind]struct {
	status int
	code   string
}{
	service.KindValidation:        {http.StatusBadRequest, CodeValidation},
	service.KindUnauthorized:      {http.StatusUnauthorized, CodeUnauthorized},
	service.KindForbidden:         {http.StatusForbidden, CodeForbidden},
	service.KindLocked:            {http.StatusLocked, CodeLocked},
	service.KindConflict:          {http.StatusConflict, CodeConflict},
	service.KindNotFound:          {http.StatusNotFound, CodeNotFound},
	service.KindInvalidResetToken: {http.StatusBadRequest, CodeInvalidResetToken},
	service.KindInternal:          {http.StatusInternalServerError, CodeInternal},
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusMethodNotAllowed:
		return CodeMethodNotAllowed
	case http.StatusConflict:
		return CodeConflict
	case http.StatusLocked:
		return CodeLocked
	case http.StatusTooManyRequests:
		return CodeRateLimited
	}
	return CodeInternal
}

// ErrorHandler renders every error returned by handlers and middleware as
// the JSON error envelope.  It replaces echo's default HTTPErrorHandler.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		detail := errorDetail{Code: CodeInternal, Message: internalMessage}

		var (
			se *service.Error
			ve *validationError
			he *echo.HTTPError
		)
		switch {
		case errors.As(err, &ve):
			status = http.StatusBadRequest
			detail = errorDetail{Code: CodeValidation, Message: ve.Error(), Fields: ve.fields}
		case errors.As(err, &se):
			m := kindStatus[se.Kind]
			status = m.status
			detail = errorDetail{Code: m.code, Message: se.Message}
			if se.Kind == service.KindLocked {
				secs := int(math.Ceil(se.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			}
		case errors.As(err, &he):
			status = he.Code
			detail.Code = codeForStatus(status)
			if status < http.StatusInternalServerError {
				if msg, isStr := he.Message.(string); isStr {
					detail.Message = msg
				} else {
					detail.Message = http.StatusText(status)
				}
			}
		}

		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.String("request_id", middleware.GetRequestID(c)))
		}

		body := errorBody{Error: detail, Timestamp: timeNow().UTC().Format(time.RFC3339)}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}
