package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// errorBody is the error response shape: {detail, error_code?, request_id?}.
type errorBody struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError classifies err through pkg/errors and writes the matching
// status code and body, stamping the request id the middleware attached to
// the context.
func writeError(c *gin.Context, err error) {
	code := gwerrors.CodeOf(err)
	status := gwerrors.HTTPStatus(code)

	if code == gwerrors.CodeRateLimited || code == gwerrors.CodeOverloaded {
		if retryAfter := gwerrors.RetryAfterOf(err); retryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(retryAfter))
		}
	}

	c.JSON(status, errorBody{
		Detail:    err.Error(),
		ErrorCode: string(code),
		RequestID: requestIDFrom(c),
	})
}

func requestIDFrom(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
