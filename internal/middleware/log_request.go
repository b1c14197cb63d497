package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/kithnet/server-core/internal/utils"
)

// LogRequest logs every inbound request with its trace id.
func LogRequest() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		utils.LogMessageWithFields(ctx, "info", "Request received: "+ctx.Request.Method+" "+ctx.Request.URL.Path)
		ctx.Next()
	}
}
