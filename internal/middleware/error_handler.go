package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	apiError "devunity/internal/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ErrorHandler(log *zap.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // Execute the handler first

		// detect any errors
		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var apiErr *apiError.APIError
		// If it's a raw error we didn't wrap, treat as Internal
		if !errors.As(err, &apiErr) {
			apiErr = apiError.Internal(err)
		}

		fields := []zap.Field{
			zap.Int("status", apiErr.Status),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Error(apiErr.Internal),
		}
		if apiErr.Status >= http.StatusInternalServerError {
			log.Error(apiErr.Message, fields...)
		} else {
			log.Info(apiErr.Message, fields...)
		}

		body := *apiErr
		if !production && apiErr.Internal != nil {
			body.Detail = apiErr.Internal.Error()
		}

		if c.Writer.Written() {
			return
		}
		c.AbortWithStatusJSON(apiErr.Status, &body)
	}
}

// Recovery turns panics into a 500 rendered by ErrorHandler. Outside
// production the stack is carried into the response detail.
func Recovery(log *zap.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				log.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", stack),
				)
				cause := fmt.Errorf("panic: %v", r)
				if !production {
					cause = fmt.Errorf("panic: %v\n%s", r, stack)
				}
				c.Error(apiError.Internal(cause))
				c.Abort()
			}
		}()
		c.Next()
	}
}
