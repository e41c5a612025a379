package httpkit

import (
	"errors"
	"net/http"

	"github.com/syed-c/standzon-sub008/platform/apperr"
	"github.com/syed-c/standzon-sub008/platform/logger"

	"github.com/gin-gonic/gin"
)

const msgInternal = "internal error"

// ErrorResponse is the body of every non-2xx response. RequestID echoes the
// X-Request-ID header so operators can find the matching log line.
type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Created(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// Error writes an ErrorResponse without a kind, for failures caught before
// the service layer such as malformed JSON or ids.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details, RequestID: requestID(c)})
}

// HandleError writes err and reports whether there was one. An *apperr.Error
// anywhere in the chain picks the status and message; anything else becomes
// a 500 whose cause is attached to the gin context for RequestLogger and
// never shown to the client.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Kind == apperr.KindInternal {
			_ = c.Error(err)
		}
		c.JSON(appErr.HTTPStatus(), ErrorResponse{
			Error:     appErr.Message,
			Kind:      appErr.Kind.String(),
			Details:   appErr.Details,
			RequestID: requestID(c),
		})
		return true
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal, RequestID: requestID(c)})
	return true
}

func requestID(c *gin.Context) string {
	if c.Request == nil {
		return ""
	}
	id, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
	return id
}
