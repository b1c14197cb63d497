package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kithnet/server-core/internal/schemas"
)

// WriteAndLogResponse encodes the response object to JSON and writes it to the HTTP response
// with the provided status code.
func WriteAndLogResponse(ctx *gin.Context, response interface{}, statusCode int) {
	LogMessageWithFields(ctx, "debug", "Returning response")
	ctx.JSON(statusCode, response)
}

// WriteAndLogError logs the provided error and sends an error response with the specified
// status code and the user-facing error details. Internal error text never reaches the client.
func WriteAndLogError(ctx *gin.Context, customErr *schemas.CustomError, statusCode int, err error) {
	LogMessageWithFields(ctx, "error", "Error occurred: "+err.Error())
	LogMessageWithFields(ctx, "error", "Returning "+customErr.Code+" / "+customErr.Message)
	ctx.JSON(statusCode, &schemas.ErrorDTO{Success: false, Error: *customErr})
}

// WriteValidationFailure reports an expected validation failure. By API convention these are
// HTTP 200 with success=false so clients handle them on a single path.
func WriteValidationFailure(ctx *gin.Context, message string) {
	LogMessageWithFields(ctx, "info", "Validation failed: "+message)
	ctx.JSON(http.StatusOK, &schemas.Response{Success: false, Message: message})
}
