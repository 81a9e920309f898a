package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/rollup-backend/internal/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps domain error codes onto HTTP statuses so handlers
// do not hand-pick a status per call site.
func RespondDomainError(c *gin.Context, err error) {
	code := types.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case types.CodeValidation:
		status = http.StatusBadRequest
	case types.CodeNotFound:
		status = http.StatusNotFound
	case types.CodeConflict:
		status = http.StatusConflict
	case types.CodeUnauthorized:
		status = http.StatusUnauthorized
	case types.CodePreconditionFailed:
		status = http.StatusPreconditionFailed
	case types.CodeRetryable:
		status = http.StatusServiceUnavailable
	}
	if code == "" {
		code = types.CodeInternal
	}
	RespondError(c, status, string(code), err)
}
