package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrorDetails contains the error information
type ErrorDetails struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	TraceID   string                 `json:"trace_id"`
}

// CustomError represents a custom application error
type CustomError struct {
	Code       string
	Message    string
	StatusCode int
	Details    map[string]interface{}
}

func (e CustomError) Error() string {
	return e.Message
}

// Common error codes
const (
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeDatabaseError  = "DATABASE_ERROR"
)

// ErrorHandler renders errors pushed onto the gin context by handlers.
// Handlers report unexpected failures with c.Error and return; this
// middleware logs them and writes the response envelope.
func ErrorHandler(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			err := c.Errors.Last()
			handleError(c, logger, err.Err)
		}
	}
}

func handleError(c *gin.Context, logger *logrus.Logger, err error) {
	var details ErrorDetails
	var statusCode int

	traceID, exists := c.Get("trace_id")
	if !exists {
		traceID = uuid.New().String()
	}

	if customErr, ok := err.(CustomError); ok {
		statusCode = customErr.StatusCode
		details = ErrorDetails{
			Code:      customErr.Code,
			Message:   customErr.Message,
			Details:   customErr.Details,
			Timestamp: time.Now().UTC(),
			TraceID:   traceID.(string),
		}
	} else {
		statusCode = http.StatusInternalServerError
		details = ErrorDetails{
			Code:      ErrCodeInternalServer,
			Message:   "An unexpected error occurred",
			Timestamp: time.Now().UTC(),
			TraceID:   traceID.(string),
		}
	}

	logger.WithFields(logrus.Fields{
		"trace_id": details.TraceID,
		"code":     details.Code,
		"path":     c.Request.URL.Path,
		"method":   c.Request.Method,
	}).WithError(err).Error("Request failed")

	c.JSON(statusCode, gin.H{"error": details})
}

// NewDatabaseError wraps a storage failure for the error handler. The
// underlying error goes into details so the log line keeps the cause.
func NewDatabaseError(message string, err error) CustomError {
	details := map[string]interface{}{}
	if err != nil {
		details["error"] = err.Error()
	}
	return CustomError{
		Code:       ErrCodeDatabaseError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Details:    details,
	}
}
