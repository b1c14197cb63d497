package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kithnet/server-core/internal/schemas"
	"github.com/kithnet/server-core/internal/utils"
)

// ValidateStruct binds the JSON body into obj, strips markup from its string
// fields and validates it. Expected validation failures answer 200 with
// success=false per the API convention; only unparseable bodies are a hard 400.
func ValidateStruct(obj func() interface{}) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload := obj()
		if err := c.ShouldBindJSON(payload); err != nil {
			utils.WriteAndLogError(c, schemas.BadRequest, http.StatusBadRequest, err)
			c.Abort()
			return
		}

		validator := utils.GetValidator()
		if err := validator.SanitizeData(payload); err != nil {
			utils.WriteAndLogError(c, schemas.BadRequest, http.StatusBadRequest, err)
			c.Abort()
			return
		}

		if err := validator.Validate.Struct(payload); err != nil {
			utils.WriteValidationFailure(c, "The submitted data is invalid. Please check your input and try again.")
			c.Abort()
			return
		}

		c.Set(utils.SanitizedPayloadKey.String(), payload)
		c.Next()
	}
}
