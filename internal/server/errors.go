package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/qsubscription/internal/subscription/domain"
)

// ErrorBody is the JSON shape of every failed response.
type ErrorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

var (
	ErrInternal = errors.New("internal_error")
	ErrNotFound = errors.New("not_found")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, body := MapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// MapError converts err into a status code and error body. Every entry
// surface uses it so the same failure yields the same response.
func MapError(err error) (int, ErrorBody) {
	if err == nil {
		return http.StatusInternalServerError, ErrorBody{
			Error: "internal server error",
			Type:  ErrInternal.Error(),
		}
	}

	kind := domain.Kind(err)
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrUnsupportedOperation):
		return http.StatusBadRequest, ErrorBody{Error: err.Error(), Type: kind}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Error: err.Error(), Type: kind}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrorBody{Error: "not found", Type: ErrNotFound.Error()}
	case errors.Is(err, domain.ErrAmbiguousPrincipal):
		return http.StatusConflict, ErrorBody{Error: err.Error(), Type: kind}
	case errors.Is(err, domain.ErrPartialCompletion),
		errors.Is(err, domain.ErrUpstream):
		return http.StatusInternalServerError, ErrorBody{Error: err.Error(), Type: kind}
	default:
		return http.StatusInternalServerError, ErrorBody{
			Error: "internal server error",
			Type:  ErrInternal.Error(),
		}
	}
}

func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, body := MapError(err)
	return body.Type, http.StatusText(status)
}
