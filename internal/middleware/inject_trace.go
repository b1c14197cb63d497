package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kithnet/server-core/internal/utils"
)

// InjectTrace assigns every request a trace id and echoes it in the response.
func InjectTrace() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceId := utils.GenerateTraceId()
		c.Set(utils.TraceIdKey.String(), traceId)
		c.Header("X-Trace-Id", traceId)
		c.Next()
	}
}
