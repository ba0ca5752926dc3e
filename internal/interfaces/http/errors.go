package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	gwerrors "github.com/riftgate/llmgateway/pkg/errors"
)

// errorBody mirrors handlers.errorBody — duplicated rather than imported
// because handlers.errorBody is unexported; middleware writes its errors
// before routing reaches the handlers package.
type errorBody struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeHTTPError(c *gin.Context, err error) {
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
		RequestID: requestIDFromCtx(c),
	})
}
