// Package costs provides the v1 cost reporting API handlers.
package costs

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/electrolux-oss/infrawallet-sub000/internal/buildinfo"
)

// APIResponse is the standard response envelope for the v1 API.
type APIResponse struct {
	Data interface{} `json:"data"`
	Meta APIMeta     `json:"meta"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// APIError is the standard error response for the v1 API.
type APIError struct {
	Error APIErrorDetail `json:"error"`
}

// APIErrorDetail contains error details.
type APIErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Standard error codes for the v1 API.
const (
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Data: data,
		Meta: APIMeta{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   buildinfo.Version,
		},
	})
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, APIError{
		Error: APIErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

func respondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, ErrCodeNotFound, message)
}
