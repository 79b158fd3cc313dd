// Package middleware provides HTTP middleware for the cost API server.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// DefaultMaxRequestSize caps request bodies. The cost API only accepts
// short query payloads; anything bigger is a mistake or abuse.
const DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

// RequestSizeLimit returns a middleware that bounds request body size
// using http.MaxBytesReader, which answers oversized bodies with 413 and
// closes the connection.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
